// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ttl runs the background sweeper that hard-deletes expired
// semantic-cache entries. TTL comparisons depend on wall-clock time, so the
// sweeper refuses to run a cycle while the system clock looks wrong: with a
// clock jumped into the future every cache entry looks expired and one cycle
// would wipe the whole cache.
package ttl

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Clock Checker
// =============================================================================

// ClockChecker validates that the system clock is trustworthy enough to
// drive TTL deletions.
type ClockChecker interface {
	// CheckClockSanity returns a descriptive error when the clock is outside
	// the valid window or has jumped suspiciously since the last good check.
	CheckClockSanity() error

	// ResetJumpDetection re-baselines jump detection. Call after a
	// legitimate time change (NTP sync, resume from sleep).
	ResetJumpDetection()
}

// ClockConfig bounds the acceptable clock.
type ClockConfig struct {
	MinValidTime    time.Time
	MaxValidTime    time.Time
	MaxBackwardJump time.Duration
	MaxForwardJump  time.Duration
}

// DefaultClockConfig returns production bounds: a past floor, a ten-year
// future ceiling, and jump thresholds comfortably above NTP slew.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		MinValidTime:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxValidTime:    time.Date(2036, 12, 31, 23, 59, 59, 0, time.UTC),
		MaxBackwardJump: 1 * time.Hour,
		MaxForwardJump:  2 * time.Hour,
	}
}

type clockChecker struct {
	config   ClockConfig
	now      func() time.Time
	mu       sync.Mutex
	lastGood time.Time
	checks   int64
}

// NewClockChecker creates a checker with default bounds.
func NewClockChecker() ClockChecker {
	return NewClockCheckerWithConfig(DefaultClockConfig())
}

// NewClockCheckerWithConfig creates a checker with custom bounds.
func NewClockCheckerWithConfig(config ClockConfig) ClockChecker {
	return &clockChecker{
		config:   config,
		now:      time.Now,
		lastGood: time.Now(),
	}
}

// CheckClockSanity validates bounds, then jump size relative to the last
// good check. Jump detection is skipped on the first check after creation
// or reset.
func (c *clockChecker) CheckClockSanity() error {
	now := c.now()

	if now.Before(c.config.MinValidTime) {
		return fmt.Errorf("clock sanity: time %v is before minimum valid time %v",
			now.Format(time.RFC3339), c.config.MinValidTime.Format(time.RFC3339))
	}
	if now.After(c.config.MaxValidTime) {
		return fmt.Errorf("clock sanity: time %v is after maximum valid time %v",
			now.Format(time.RFC3339), c.config.MaxValidTime.Format(time.RFC3339))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checks > 0 {
		diff := now.Sub(c.lastGood)
		if diff < -c.config.MaxBackwardJump {
			return fmt.Errorf("clock sanity: suspicious backward jump of %v (max allowed %v)",
				-diff, c.config.MaxBackwardJump)
		}
		if diff > c.config.MaxForwardJump {
			return fmt.Errorf("clock sanity: suspicious forward jump of %v (max allowed %v)",
				diff, c.config.MaxForwardJump)
		}
	}

	c.lastGood = now
	c.checks++
	return nil
}

// ResetJumpDetection re-baselines to the current time.
func (c *clockChecker) ResetJumpDetection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastGood = c.now()
	c.checks = 0
}

// =============================================================================
// No-op Checker
// =============================================================================

type noopClockChecker struct{}

// NewNoopClockChecker returns a checker that accepts any clock. For tests
// and deployments with externally guaranteed time.
func NewNoopClockChecker() ClockChecker {
	return noopClockChecker{}
}

func (noopClockChecker) CheckClockSanity() error { return nil }

func (noopClockChecker) ResetJumpDetection() {}

var _ ClockChecker = (*clockChecker)(nil)
