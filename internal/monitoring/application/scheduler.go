package application

import (
	"context"
	"log"
	"time"
)

// Submitter queues a report job.
type Submitter interface {
	Submit(ctx context.Context) (string, error)
}

// Scheduler submits a report job once a day.
type Scheduler struct {
	submitter Submitter
	dailyAt   string
	logger    *log.Logger
	lastRun   time.Time
}

// NewScheduler constructs a Scheduler.
func NewScheduler(submitter Submitter, dailyAt string, logger *log.Logger) *Scheduler {
	return &Scheduler{
		submitter: submitter,
		dailyAt:   dailyAt,
		logger:    logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.submitter == nil || s.dailyAt == "" {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if !s.shouldRun(now) {
		return
	}
	s.lastRun = now.Truncate(time.Minute)
	id, err := s.submitter.Submit(ctx)
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Printf("report schedule error: %v", err)
		return
	}
	s.logger.Printf("event=report_job_scheduled report_id=%s", id)
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	if !s.lastRun.IsZero() && now.Truncate(time.Minute).Equal(s.lastRun) {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
