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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorRoundTrip(t *testing.T) {
	acc := NewTokenAccumulator()
	defer acc.Destroy()

	tokens := []string{"오늘도 ", "수고", "했어요."}
	for _, tok := range tokens {
		require.NoError(t, acc.Write(tok))
	}

	text, digest, err := acc.Finalize()
	require.NoError(t, err)

	joined := strings.Join(tokens, "")
	assert.Equal(t, joined, text)

	sum := sha256.Sum256([]byte(joined))
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
}

func TestAccumulatorEmptyFinalize(t *testing.T) {
	acc := NewTokenAccumulator()
	defer acc.Destroy()

	text, digest, err := acc.Finalize()
	require.NoError(t, err)
	assert.Empty(t, text)

	sum := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
}

func TestAccumulatorRejectsWritesAfterDestroy(t *testing.T) {
	acc := NewTokenAccumulator()
	acc.Destroy()

	assert.Error(t, acc.Write("late"))
	_, _, err := acc.Finalize()
	assert.Error(t, err)

	// Repeated Destroy is a no-op.
	acc.Destroy()
}

func TestAccumulatorCapacity(t *testing.T) {
	acc := NewTokenAccumulator()
	defer acc.Destroy()

	big := strings.Repeat("a", deliveredBufferSize)
	require.NoError(t, acc.Write(big))
	assert.Error(t, acc.Write("one more byte"))
}

func TestPlainAccumulatorFallback(t *testing.T) {
	acc := &plainAccumulator{hasher: sha256.New()}
	require.NoError(t, acc.Write("hello "))
	require.NoError(t, acc.Write("world"))

	text, digest, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	sum := sha256.Sum256([]byte("hello world"))
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)

	acc.Destroy()
	assert.Error(t, acc.Write("late"))
}
