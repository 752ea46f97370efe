package tasks

import (
	"context"
	"time"
)

// Job is one queued run of a named task. Run receives a context that is
// cancelled when the dispatcher stops.
type Job struct {
	Queue    string                          `json:"queue"`
	ID       string                          `json:"id"`
	Name     string                          `json:"name"`
	Schedule string                          `json:"schedule,omitempty"`
	Added    time.Time                       `json:"added"`
	Started  time.Time                       `json:"started,omitempty"`
	Run      func(ctx context.Context) error `json:"-"`
}

// Schedule is a recurring trigger created by DispatchEvery or DispatchCron.
type Schedule struct {
	Name     string        `json:"name"`
	Cron     string        `json:"cron,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	NextRun  time.Time     `json:"next_run,omitempty"`

	ticker *time.Ticker
	quit   chan struct{}
}

// Stop ends an interval schedule. Cron schedules stop with the dispatcher.
func (s *Schedule) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}
