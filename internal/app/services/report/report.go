// Package report periodically logs a summary of process state so operators
// can follow the keeper without scraping metrics.
package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nebulafi/feedkeeper/internal/app/state"
	"github.com/nebulafi/feedkeeper/internal/app/system"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

var _ system.Service = (*Service)(nil)

// Service runs the state report on a cron schedule (for example
// "@every 1m").
type Service struct {
	st       *state.State
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates the report service.
func New(st *state.State, schedule string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("state-report")
	}
	return &Service{st: st, log: log, schedule: schedule}
}

func (s *Service) Name() string { return "state-report" }

// Start schedules the report job. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.report); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("state report started")
	return nil
}

// Stop cancels the report job and waits for a running report to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) report() {
	s.log.WithField("feeds", len(s.st.Feeds())).
		WithField("active_beacons", len(s.st.ActiveBeacons())).
		WithField("data_points", s.st.Points().Len()).
		WithField("signed_api_urls", len(s.st.SignedAPIURLs())).
		Info("keeper state")
}
