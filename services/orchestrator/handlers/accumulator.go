// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
)

// =============================================================================
// Token Accumulator
// =============================================================================

const (
	// deliveredBufferSize caps the mirrored answer. Answers are a few KB;
	// the cap bounds locked memory per stream.
	deliveredBufferSize = 256 * 1024
)

// TokenAccumulator mirrors the tokens actually delivered to a client so the
// handler can log what went out on the wire.
//
// # Description
//
// Answers quote diary content, which is sensitive. The secure implementation
// holds the mirror in a memguard locked buffer (mlocked, canary-guarded,
// wiped on destroy) so delivered text never lingers in swappable heap pages.
// Finalize returns the accumulated text and a SHA-256 hex digest; on client
// disconnect the digest lets the delivered prefix be reconciled against the
// persisted answer.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type TokenAccumulator interface {
	// Write appends one delivered token. Returns an error after Destroy or
	// once the buffer cap is exceeded; the stream itself is unaffected.
	Write(token string) error

	// Finalize returns the accumulated text and its SHA-256 hex digest.
	Finalize() (string, string, error)

	// Destroy wipes the buffer. Safe to call more than once.
	Destroy()
}

// memguardInitOnce guards one-time memguard setup.
var memguardInitOnce sync.Once

// mlockAvailable records whether locked allocation worked at init.
var mlockAvailable bool

func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()

		// Probe: RLIMIT_MEMLOCK may be too small for per-stream buffers,
		// common in unprivileged containers.
		probe := memguard.NewBuffer(deliveredBufferSize)
		if probe != nil && probe.IsAlive() {
			mlockAvailable = true
			probe.Destroy()
		}
		if !mlockAvailable {
			slog.Warn("Locked memory unavailable, delivered-answer mirror falls back to plain buffers",
				"requestedBytes", deliveredBufferSize)
		}
	})
}

// NewTokenAccumulator returns a memguard-backed accumulator, or a plain
// in-heap fallback when locked memory is unavailable.
func NewTokenAccumulator() TokenAccumulator {
	initMemguard()
	if mlockAvailable {
		return &secureAccumulator{
			buffer: memguard.NewBuffer(deliveredBufferSize),
			hasher: sha256.New(),
		}
	}
	return &plainAccumulator{hasher: sha256.New()}
}

// -----------------------------------------------------------------------------
// Secure implementation
// -----------------------------------------------------------------------------

type secureAccumulator struct {
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func (a *secureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator destroyed")
	}
	b := []byte(token)
	if a.offset+len(b) > a.buffer.Size() {
		a.overflow = true
		return fmt.Errorf("accumulator capacity exceeded")
	}
	copy(a.buffer.Bytes()[a.offset:], b)
	a.offset += len(b)
	a.hasher.Write(b)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator destroyed")
	}
	if a.overflow {
		return "", "", fmt.Errorf("accumulator overflowed, answer truncated")
	}
	answer := string(a.buffer.Bytes()[:a.offset])
	digest := hex.EncodeToString(a.hasher.Sum(nil))
	return answer, digest, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.destroyed = true
	a.buffer.Destroy()
}

// -----------------------------------------------------------------------------
// Plain fallback
// -----------------------------------------------------------------------------

type plainAccumulator struct {
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	destroyed bool
}

func (a *plainAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator destroyed")
	}
	if len(a.data)+len(token) > deliveredBufferSize {
		return fmt.Errorf("accumulator capacity exceeded")
	}
	a.data = append(a.data, token...)
	a.hasher.Write([]byte(token))
	return nil
}

func (a *plainAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator destroyed")
	}
	return string(a.data), hex.EncodeToString(a.hasher.Sum(nil)), nil
}

func (a *plainAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.destroyed = true
	// Best-effort wipe; pages may already have been swapped.
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var (
	_ TokenAccumulator = (*secureAccumulator)(nil)
	_ TokenAccumulator = (*plainAccumulator)(nil)
)
