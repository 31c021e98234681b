// Package scheduler drives the engine's periodic jobs: the dispatch sweep
// that sends due reminders and the recovery pass that requeues stuck claims.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is one named periodic task with a 5-field cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func()
}

// Scheduler runs registered jobs on their cron schedules. Jobs do not fire
// until Start is called, so registration happens before the first sweep.
type Scheduler struct {
	cron *cron.Cron
	jobs []string
}

// New creates a scheduler using the standard 5-field cron format with panic
// recovery around every job.
func New() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron: cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Register adds a job, rejecting invalid schedules before the loop starts.
func (s *Scheduler) Register(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("job %q has no task", j.Name)
	}
	if _, err := s.cron.AddFunc(j.Schedule, j.Run); err != nil {
		return fmt.Errorf("register job %q with schedule %q failed: %w", j.Name, j.Schedule, err)
	}
	s.jobs = append(s.jobs, j.Name)
	slog.Debug("Scheduler.Register", "job", j.Name, "schedule", j.Schedule)
	return nil
}

// Start begins firing registered jobs on their schedules.
func (s *Scheduler) Start() {
	slog.Info("Scheduler started", "jobs", s.jobs)
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Debug("Scheduler stopped")
}
