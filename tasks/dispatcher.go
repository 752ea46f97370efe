package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var errInactive = errors.New("dispatcher is not active")

// cronParser accepts standard five field specs, an optional leading seconds
// field and descriptors such as @daily.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Dispatcher runs queued jobs on a fixed number of workers. A job name is
// never queued twice, so a slow scheduled job does not pile up.
type Dispatcher struct {
	name       string
	maxWorkers int
	maxQueue   int

	jobQueue chan Job
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cron     *cron.Cron

	mu        sync.Mutex
	active    bool
	queue     map[string]Job
	names     map[string]string
	schedules []*Schedule
	cronIDs   map[*Schedule]cron.EntryID
}

// NewDispatcher creates a dispatcher with the given number of workers and a
// job queue buffered to maxQueue.
func NewDispatcher(name string, maxWorkers int, maxQueue int) *Dispatcher {
	return &Dispatcher{
		name:       name,
		maxWorkers: max(maxWorkers, 1),
		maxQueue:   max(maxQueue, 1),
	}
}

func (d *Dispatcher) Name() string {
	return d.name
}

// Start launches the workers and the cron scheduler.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.jobQueue = make(chan Job, d.maxQueue)
	d.queue = make(map[string]Job, d.maxQueue)
	d.names = make(map[string]string)
	d.schedules = nil
	d.cronIDs = make(map[*Schedule]cron.EntryID)
	d.cron = cron.New(cron.WithParser(cronParser))
	d.cron.Start()
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.active = true
}

// Stop ends all schedules, cancels running jobs and waits for the workers.
// Jobs still in the queue are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	for _, s := range d.schedules {
		s.Stop()
	}
	d.schedules = nil
	d.mu.Unlock()

	<-d.cron.Stop().Done()
	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	d.queue = make(map[string]Job)
	d.names = make(map[string]string)
	d.mu.Unlock()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case job := <-d.jobQueue:
			d.run(job)
		}
	}
}

func (d *Dispatcher) run(job Job) {
	d.mu.Lock()
	job.Started = time.Now()
	d.queue[job.ID] = job
	d.mu.Unlock()
	fields := logrus.Fields{"queue": d.name, "job": job.Name, "id": job.ID}
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithFields(fields).Error("Recovered from panic: ", r)
		}
		d.mu.Lock()
		delete(d.queue, job.ID)
		if d.names[job.Name] == job.ID {
			delete(d.names, job.Name)
		}
		d.mu.Unlock()
	}()
	if d.ctx.Err() != nil {
		return
	}
	logger.Log.WithFields(fields).Debug("Job started")
	if err := job.Run(d.ctx); err != nil {
		logger.Log.WithFields(fields).Error("Job failed: ", err)
		return
	}
	logger.Log.WithFields(fields).Debug("Job finished in ", time.Since(job.Started).Round(time.Millisecond))
}

// Dispatch queues a job and returns its id. A job of the same name that is
// still queued or running makes it fail with ErrAlreadyRunning.
func (d *Dispatcher) Dispatch(name string, run func(ctx context.Context) error) (string, error) {
	return d.enqueue(name, "", run)
}

func (d *Dispatcher) enqueue(name string, schedule string, run func(ctx context.Context) error) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return "", errInactive
	}
	if id, ok := d.names[name]; ok {
		return id, errors.Wrap(logger.ErrAlreadyRunning, name)
	}
	job := Job{Queue: d.name, ID: uuid.New().String(), Name: name, Schedule: schedule, Added: time.Now(), Run: run}
	select {
	case d.jobQueue <- job:
	default:
		return "", errors.Errorf("queue %s is full", d.name)
	}
	d.queue[job.ID] = job
	d.names[name] = job.ID
	return job.ID, nil
}

// DispatchIn queues the job once the duration has passed.
func (d *Dispatcher) DispatchIn(name string, run func(ctx context.Context) error, duration time.Duration) error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return errInactive
	}
	ctx := d.ctx
	d.mu.Unlock()
	go func() {
		select {
		case <-time.After(duration):
			if _, err := d.Dispatch(name, run); err != nil {
				logger.Log.WithFields(logrus.Fields{"queue": d.name, "job": name}).Warn(err)
			}
		case <-ctx.Done():
		}
	}()
	return nil
}

func (d *Dispatcher) trigger(s *Schedule, run func(ctx context.Context) error) {
	d.mu.Lock()
	s.LastRun = time.Now()
	if s.Interval > 0 {
		s.NextRun = s.LastRun.Add(s.Interval)
	}
	d.mu.Unlock()
	if _, err := d.enqueue(s.Name, s.Name, run); err != nil {
		level := logrus.WarnLevel
		if errors.Is(err, logger.ErrAlreadyRunning) {
			level = logrus.DebugLevel
		}
		logger.Log.WithFields(logrus.Fields{"queue": d.name, "job": s.Name}).Log(level, err)
	}
}

// DispatchEvery queues the job at the given interval.
func (d *Dispatcher) DispatchEvery(name string, run func(ctx context.Context) error, interval time.Duration) (*Schedule, error) {
	if interval <= 0 {
		return nil, errors.Wrapf(logger.ErrInvalidInput, "interval %s", interval)
	}
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil, errInactive
	}
	s := &Schedule{Name: name, Interval: interval, NextRun: time.Now().Add(interval), ticker: time.NewTicker(interval), quit: make(chan struct{})}
	d.schedules = append(d.schedules, s)
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.ticker.C:
				d.trigger(s, run)
			case <-s.quit:
				return
			}
		}
	}()
	return s, nil
}

// DispatchCron queues the job each time the cron spec is met.
func (d *Dispatcher) DispatchCron(name string, run func(ctx context.Context) error, spec string) (*Schedule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil, errInactive
	}
	s := &Schedule{Name: name, Cron: spec}
	id, err := d.cron.AddFunc(spec, func() { d.trigger(s, run) })
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron definition %q", spec)
	}
	d.cronIDs[s] = id
	d.schedules = append(d.schedules, s)
	return s, nil
}

// Queue lists the queued and running jobs, oldest first.
func (d *Dispatcher) Queue() []Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	jobs := make([]Job, 0, len(d.queue))
	for _, job := range d.queue {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Added.Before(jobs[j].Added) })
	return jobs
}

// Schedules lists copies of the active schedules.
func (d *Dispatcher) Schedules() []Schedule {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := make([]Schedule, 0, len(d.schedules))
	for _, s := range d.schedules {
		entry := Schedule{Name: s.Name, Cron: s.Cron, Interval: s.Interval, LastRun: s.LastRun, NextRun: s.NextRun}
		if id, ok := d.cronIDs[s]; ok {
			entry.NextRun = d.cron.Entry(id).Next
		}
		list = append(list, entry)
	}
	return list
}

func (d *Dispatcher) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("%s: workers=%d queued=%d schedules=%d", d.name, d.maxWorkers, len(d.queue), len(d.schedules))
}
