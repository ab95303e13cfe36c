// Package scheduler runs recurring jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job is a named unit of recurring work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps a seconds-granularity cron runner
type Scheduler struct {
	cron *cron.Cron
}

// New creates a new Scheduler
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
	}
}

// Register adds a job on a cron schedule. Each run gets its own timeout so
// a hung job cannot block the next day's run.
func (s *Scheduler) Register(schedule string, job Job, timeout time.Duration) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		started := time.Now()
		log.Infof("Job %s starting", job.Name())
		if err := job.Run(ctx); err != nil {
			log.Errorf("Job %s failed after %s: %v", job.Name(), time.Since(started).Round(time.Millisecond), err)
			return
		}
		log.Infof("Job %s finished in %s", job.Name(), time.Since(started).Round(time.Millisecond))
	})
	return err
}

// Start launches the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
