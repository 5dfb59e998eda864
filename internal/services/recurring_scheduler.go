package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PassRunner runs one recurrence pass for the instant now.
type PassRunner interface {
	RunPass(ctx context.Context, now time.Time) (Report, error)
}

type SchedulerConfig struct {
	// Interval between passes (default: 1h). Passes are idempotent, so a
	// short interval only costs reads.
	Interval time.Duration

	// Clock returns the current instant (default: time.Now).
	Clock func() time.Time
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: time.Hour,
		Clock:    time.Now,
	}
}

// RecurringScheduler runs recurrence passes on a ticker, starting with one
// immediate pass.
type RecurringScheduler struct {
	runner PassRunner
	config SchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringScheduler(runner PassRunner, config SchedulerConfig) *RecurringScheduler {
	defaults := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	return &RecurringScheduler{runner: runner, config: config}
}

// Start begins the loop. It returns an error if already running.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("recurring scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Recurring scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for the in-flight pass to finish or ctx to
// expire. After a timeout the loop keeps draining and Stop may be called
// again to wait for it.
func (s *RecurringScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *RecurringScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RecurringScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RecurringScheduler) runOnce(ctx context.Context) {
	if _, err := s.runner.RunPass(ctx, s.config.Clock()); err != nil {
		slog.ErrorContext(ctx, "Recurring pass failed", "error", err)
	}
}
