package rift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// SweepAutoReleases releases every rift whose auto-release deadline has
// elapsed with the scheduled flag still set, and every milestone whose
// review window has elapsed. Idempotent and safe against overlapping
// invocations: the release guard and the scheduled flag make a second
// sweep (or a racing manual release) a no-op.
func (s *Service) SweepAutoReleases(ctx context.Context, now time.Time) ([]string, error) {
	observeSweepRun()

	var released []string

	due, err := s.store.ListDueForRelease(ctx, now, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to list due rifts: %w", err)
	}
	for _, r := range due {
		if _, err := s.ReleaseWhole(ctx, r.ID, "system", RoleSystem); err != nil {
			// Frozen, already released by a racing manual action, or a
			// payout problem. None of these stop the rest of the sweep.
			if !errors.Is(err, ErrFrozen) && !errors.Is(err, ErrReleaseInProgress) {
				s.logger.Warn("auto-release failed", "riftId", r.ID, "error", err)
			}
			continue
		}
		observeSweepReleased(UnitWhole)
		released = append(released, r.ID)
		s.logger.Info("auto-released rift", "riftId", r.ID, "seller", r.SellerID, "amount", r.SellerNet)
	}

	withDue, err := s.store.ListDueMilestones(ctx, now, 100)
	if err != nil {
		return released, fmt.Errorf("failed to list due milestones: %w", err)
	}
	for _, r := range withDue {
		for _, ms := range r.Milestones {
			if ms.Released || ms.AutoReleaseAt == nil || ms.AutoReleaseAt.After(now) {
				continue
			}
			outcome, err := s.ReleaseMilestone(ctx, r.ID, ms.Index, "system", RoleSystem)
			if err != nil {
				if !errors.Is(err, ErrFrozen) && !errors.Is(err, ErrReleaseInProgress) {
					s.logger.Warn("milestone auto-release failed",
						"riftId", r.ID, "milestone", ms.Index, "error", err)
				}
				continue
			}
			observeSweepReleased("milestone")
			s.logger.Info("auto-released milestone", "riftId", r.ID, "milestone", ms.Index)
			if outcome.ParentCompleted {
				released = append(released, r.ID)
			}
		}
	}

	return released, nil
}

// Timer periodically runs the auto-release sweep.
type Timer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a new auto-release sweep timer.
func NewTimer(service *Service, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Timer{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in auto-release sweep", "panic", fmt.Sprint(r))
		}
	}()

	released, err := t.service.SweepAutoReleases(ctx, time.Now())
	if err != nil {
		t.logger.Warn("auto-release sweep failed", "error", err)
		return
	}
	if len(released) > 0 {
		t.logger.Info("auto-release sweep completed", "released", len(released))
	}
}
