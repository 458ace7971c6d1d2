// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// The gating paths below return before the Weaviate client is touched, so a
// nil client is safe.

func TestLookup_RejectsBadInput(t *testing.T) {
	cache := NewWeaviateCache(nil)

	assert.Nil(t, cache.Lookup(context.Background(), "", "query",
		make([]float32, datatypes.EmbeddingDimensions)))
	assert.Nil(t, cache.Lookup(context.Background(), "u1", "query",
		make([]float32, 3)))
}

func TestStore_SkipsTrivialEntries(t *testing.T) {
	cache := NewWeaviateCache(nil)
	vector := make([]float32, datatypes.EmbeddingDimensions)

	// Single-rune query.
	cache.Store(context.Background(), "u1", "어", "a perfectly long response here", nil, vector)

	// Response below the minimum length.
	cache.Store(context.Background(), "u1", "어제 어땠어?", "short", nil, vector)

	// Wrong embedding length.
	cache.Store(context.Background(), "u1", "어제 어땠어?", "a perfectly long response here",
		nil, make([]float32, 3))

	// Missing owner.
	cache.Store(context.Background(), "", "어제 어땠어?", "a perfectly long response here",
		nil, vector)
}

func TestInvalidateByDiaries_SkipsEmptyInput(t *testing.T) {
	cache := NewWeaviateCache(nil)

	cache.InvalidateByDiaries(context.Background(), "u1", nil)
	cache.InvalidateByDiaries(context.Background(), "", []int{1})
}

func TestSimilarityThresholdIsHigh(t *testing.T) {
	// Guard against an accidental relaxation: below 0.9 the cache starts
	// answering related-but-different questions.
	assert.GreaterOrEqual(t, SimilarityThreshold, 0.9)
}
