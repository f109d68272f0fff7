package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs reset passes on a cron schedule. Passes never overlap;
// a still-running pass causes the next trigger to be skipped.
type Scheduler struct {
	orchestrator *Orchestrator
	cron         *cron.Cron
	spec         string
	logger       *slog.Logger
	running      chan struct{}
}

// NewScheduler wires the orchestrator to a cron expression using the
// standard five-field format.
func NewScheduler(orchestrator *Orchestrator, spec string, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		orchestrator: orchestrator,
		cron:         cron.New(),
		spec:         spec,
		logger:       logger,
		running:      make(chan struct{}, 1),
	}

	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(context.Background()); err != nil {
			logger.Error("scheduled reset pass failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling. Returns immediately; passes run on the cron
// goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", slog.String("spec", s.spec))
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// RunNow triggers a reset pass immediately. Returns an error without
// running when a pass is already in flight.
func (s *Scheduler) RunNow(ctx context.Context) error {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		return fmt.Errorf("reset pass already running")
	}

	result, err := s.orchestrator.ResetAll(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("reset pass finished",
		slog.Int("total", result.Total),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
	)
	return nil
}
