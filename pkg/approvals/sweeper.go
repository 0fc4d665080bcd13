package approvals

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"hivemind-hq/scribe/pkg/sharing"
)

// Sweeper expires overdue pending approvals on a cron schedule.
type Sweeper struct {
	store    sharing.Store
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper. Common schedules:
//
//	"@hourly"     - every hour
//	"*/15 * * * *" - every 15 minutes
//
// An empty schedule disables scheduled sweeping; Sweep can still be called
// directly.
func NewSweeper(store sharing.Store, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "approvals.sweeper"),
		observer: nopObserver{},
	}
}

// SetObserver installs the telemetry sink. Call before Start.
func (s *Sweeper) SetObserver(obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}
	s.observer = obs
}

// Start begins scheduled sweeping and stops it when the context ends.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("approval sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Sweep expires overdue approvals once and returns how many were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireApprovals(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for i := 0; i < expired; i++ {
		s.observer.ApprovalResolved(string(sharing.StatusExpired))
	}
	return expired, nil
}

func (s *Sweeper) runSweep(ctx context.Context) {
	expired, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Info("scheduled sweep completed", "expired_count", expired)
	} else {
		s.logger.Debug("scheduled sweep completed, nothing expired")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("approval sweeper stopped")
	}
}

// IsRunning reports whether scheduled sweeping is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
