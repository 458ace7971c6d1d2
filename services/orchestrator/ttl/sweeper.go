// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Sweeper
// =============================================================================

// Target deletes expired entries from one store. Implemented by the
// semantic cache.
type Target interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SweeperConfig controls the sweep loop.
type SweeperConfig struct {
	// Interval between cycles.
	Interval time.Duration

	// CycleTimeout bounds one sweep.
	CycleTimeout time.Duration
}

// DefaultSweeperConfig returns production defaults: hourly sweeps, each
// bounded to a minute. Cache entries expire after 24h, so hourly granularity
// keeps the expired backlog small without hammering the store.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:     1 * time.Hour,
		CycleTimeout: 1 * time.Minute,
	}
}

// Sweeper periodically hard-deletes expired entries from the target,
// refusing to run while the clock fails sanity checks.
//
// # Thread Safety
//
// Start and Stop are safe to call from different goroutines. Start is
// one-shot; a stopped sweeper cannot be restarted.
type Sweeper struct {
	target Target
	clock  ClockChecker
	config SweeperConfig

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper builds a sweeper. A nil clock checker gets the default bounds.
func NewSweeper(target Target, clock ClockChecker, config SweeperConfig) *Sweeper {
	if clock == nil {
		clock = NewClockChecker()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = DefaultSweeperConfig().CycleTimeout
	}
	return &Sweeper{target: target, clock: clock, config: config}
}

// Start launches the sweep loop. The first cycle runs after one interval,
// not immediately, so startup is not serialized behind a store round-trip.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("sweeper already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cache TTL sweeper started", "interval", s.config.Interval)
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Cache TTL sweeper stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// RunNow executes one sweep cycle immediately. For operational tooling and
// tests.
func (s *Sweeper) RunNow(ctx context.Context) (int, error) {
	if err := s.clock.CheckClockSanity(); err != nil {
		return 0, err
	}
	return s.target.SweepExpired(ctx)
}

func (s *Sweeper) runCycle(ctx context.Context) {
	if err := s.clock.CheckClockSanity(); err != nil {
		// Skip rather than delete on a bad clock.
		slog.Warn("Skipping cache sweep, clock failed sanity check", "error", err)
		return
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.config.CycleTimeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.target.SweepExpired(cycleCtx)
	if err != nil {
		slog.Error("Cache sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Cache sweep finished",
			"deleted", deleted, "duration", time.Since(start))
	}
}
