package scheduler

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/tasks"
	"github.com/Kellerman81/go_media_organizer/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// converttime reads intervals like 30m, 6h or 2d.
func converttime(interval string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(interval, "d"); ok {
		intvar, err := strconv.Atoi(days)
		if err != nil {
			return 0, errors.Wrapf(logger.ErrInvalidInput, "interval %q", interval)
		}
		return time.Duration(intvar) * 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(interval)
	if err != nil {
		return 0, errors.Wrapf(logger.ErrInvalidInput, "interval %q", interval)
	}
	return dur, nil
}

// convertcron turns a day interval into a cron spec at a random time of day,
// so daily jobs do not all start together.
func convertcron(interval string) string {
	h := strconv.Itoa(rand.Intn(24))
	m := strconv.Itoa(rand.Intn(60))
	return "0 " + m + " " + h + " */" + strings.TrimSuffix(interval, "d") + " * *"
}

// QueueFiles runs the jobs that move files, one at a time. QueueScrape runs
// the scrapers and lookups.
var (
	QueueFiles  *tasks.Dispatcher
	QueueScrape *tasks.Dispatcher
)

func queueFor(job string) *tasks.Dispatcher {
	if strings.HasPrefix(job, "scrape_") || job == "enrich" {
		return QueueScrape
	}
	return QueueFiles
}

func jobName(job string, args []string) string {
	if len(args) == 0 {
		return job
	}
	return job + " " + strings.Join(args, " ")
}

func runner(job string, args []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := utils.RunJob(ctx, job, args)
		return err
	}
}

// InitScheduler starts the queues and registers the [[scheduler]] entries.
// Invalid entries are logged and skipped.
func InitScheduler() {
	general := config.General()
	QueueFiles = tasks.NewDispatcher("Files", 1, 100)
	QueueFiles.Start()
	QueueScrape = tasks.NewDispatcher("Scrape", general.ConcurrentScheduler, 100)
	QueueScrape.Start()

	for _, schedule := range config.Get().Scheduler {
		if err := addSchedule(schedule); err != nil {
			logger.Log.WithFields(logrus.Fields{"schedule": schedule.Name, "job": schedule.Job}).Error(err)
		}
	}
}

func addSchedule(schedule config.SchedulerConfig) error {
	job := strings.ToLower(schedule.Job)
	if err := utils.ValidateJob(job); err != nil {
		return err
	}
	queue := queueFor(job)
	name := schedule.Name
	if name == "" {
		name = jobName(job, schedule.Args)
	}
	fields := logrus.Fields{"queue": queue.Name(), "schedule": name}
	switch {
	case schedule.Cron != "":
		if _, err := queue.DispatchCron(name, runner(job, schedule.Args), schedule.Cron); err != nil {
			return err
		}
		logger.Log.WithFields(fields).Debug("Added cron ", schedule.Cron)
	case strings.HasSuffix(schedule.Interval, "d"):
		if _, err := converttime(schedule.Interval); err != nil {
			return err
		}
		spec := convertcron(schedule.Interval)
		if _, err := queue.DispatchCron(name, runner(job, schedule.Args), spec); err != nil {
			return err
		}
		logger.Log.WithFields(fields).Debug("Added cron ", spec)
	case schedule.Interval != "":
		interval, err := converttime(schedule.Interval)
		if err != nil {
			return err
		}
		if _, err := queue.DispatchEvery(name, runner(job, schedule.Args), interval); err != nil {
			return err
		}
		logger.Log.WithFields(fields).Debug("Added interval ", interval)
	default:
		return errors.Wrap(logger.ErrInvalidInput, "schedule needs cron or interval")
	}
	return nil
}

// Dispatch queues a job once. A job with the same arguments that is still
// queued or running returns its id together with ErrAlreadyRunning.
func Dispatch(job string, args []string) (string, error) {
	job = strings.ToLower(job)
	if err := utils.ValidateJob(job); err != nil {
		return "", err
	}
	queue := queueFor(job)
	if queue == nil {
		return "", errors.New("scheduler not started")
	}
	return queue.Dispatch(jobName(job, args), runner(job, args))
}

// Queues returns the started dispatchers.
func Queues() []*tasks.Dispatcher {
	var queues []*tasks.Dispatcher
	for _, q := range []*tasks.Dispatcher{QueueFiles, QueueScrape} {
		if q != nil {
			queues = append(queues, q)
		}
	}
	return queues
}

// StopScheduler cancels running jobs and waits for them.
func StopScheduler() {
	for _, q := range Queues() {
		q.Stop()
	}
}
