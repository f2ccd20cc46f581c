package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"rag-document-platform/internal/logger"
)

// Scheduler runs maintenance jobs on fixed intervals
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	// a slow sweep must not overlap with the next one
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels running jobs
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

// ScheduleInterval runs job every interval, bounded by timeout per run
func (s *Scheduler) ScheduleInterval(tag string, interval, timeout time.Duration, job func(context.Context) error) error {
	_, err := s.scheduler.Every(interval).Tag(tag).Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		if err := job(ctx); err != nil {
			logger.Error("Scheduled job failed", "job", tag, "error", err)
		}
	})
	return err
}

// ScheduleReconciler registers the store/index consistency sweep
func (s *Scheduler) ScheduleReconciler(r *Reconciler, interval time.Duration) error {
	return s.ScheduleInterval("reconcile", interval, 5*time.Minute, func(ctx context.Context) error {
		_, err := r.Run(ctx)
		return err
	})
}

// Jobs returns the number of scheduled jobs
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}
