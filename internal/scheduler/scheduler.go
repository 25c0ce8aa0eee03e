// Package scheduler triggers background index rebuilds on a cron schedule.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger starts a rebuild and returns its job id without waiting for it.
type Trigger func(trigger string) string

// Scheduler runs a rebuild trigger on a standard 5-field cron expression.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	spec    string
	logger  *zap.Logger
}

// New parses spec and registers trigger. Nothing runs until Start.
func New(spec string, trigger Trigger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid rebuild schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		cron:   cron.New(),
		spec:   spec,
		logger: logger,
	}
	id, err := s.cron.AddFunc(spec, func() {
		jobID := trigger("schedule")
		s.logger.Info("scheduled rebuild triggered", zap.String("job_id", jobID), zap.String("schedule", spec))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule rebuild: %w", err)
	}
	s.entryID = id
	return s, nil
}

// Start starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("rebuild scheduler started", zap.String("schedule", s.spec), zap.Time("next", s.Next()))
}

// Stop stops the cron loop and waits for a running trigger call to return.
// Rebuilds it started keep running in the background.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("rebuild scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}
