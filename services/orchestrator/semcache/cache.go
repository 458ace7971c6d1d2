// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package semcache caches full generated responses in Weaviate, keyed by
// query-embedding similarity. Every operation is best-effort: a Weaviate or
// embedding failure degrades to a miss or no-op, never an error for the
// caller. The cache is an optimization, not a correctness dependency.
package semcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("haru.orchestrator.semcache")

const (
	// SimilarityThreshold is the minimum certainty for a cache hit. High on
	// purpose: serving a cached answer for a merely related question is
	// worse than regenerating.
	SimilarityThreshold = 0.92

	// EntryTTL is how long an entry stays servable.
	EntryTTL = 24 * time.Hour

	// MaxEntriesPerOwner caps stored entries per owner. Oldest evicted
	// first beyond the cap.
	MaxEntriesPerOwner = 50

	// minQueryRunes and minResponseRunes gate Store. One-word queries and
	// stub responses would collide with everything.
	minQueryRunes    = 2
	minResponseRunes = 10

	// lookupCandidates bounds how many entries one lookup inspects.
	lookupCandidates = 5
)

// Hit is one successful cache lookup.
type Hit struct {
	Query      string
	Response   string
	DiaryIDs   []int
	Similarity float64
	CreatedAt  time.Time
}

// Cache is the semantic-cache boundary used by the orchestrator.
type Cache interface {
	// Lookup returns the best fresh match above the similarity threshold,
	// or nil for a miss. Failures are logged and reported as misses.
	Lookup(ctx context.Context, ownerID, query string, embedding []float32) *Hit

	// Store persists a response keyed by the query embedding. Trivially
	// short queries or responses are skipped silently.
	Store(ctx context.Context, ownerID, query, response string, diaryIDs []int, embedding []float32)

	// InvalidateByDiaries removes every entry referencing any of the given
	// diary ids.
	InvalidateByDiaries(ctx context.Context, ownerID string, diaryIDs []int)
}

// WeaviateCache implements Cache on the ResponseCache class.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateCache struct {
	client *weaviate.Client
	now    func() time.Time
}

var _ Cache = (*WeaviateCache)(nil)

// NewWeaviateCache creates a cache over an already-connected client.
func NewWeaviateCache(client *weaviate.Client) *WeaviateCache {
	return &WeaviateCache{client: client, now: time.Now}
}

// Lookup searches the owner's cache entries near the query embedding.
//
// # Description
//
// Candidates are fetched with certainty ordering from Weaviate, then
// filtered by the similarity threshold and the TTL; the best surviving match
// wins. Expired entries are skipped, not deleted here; the TTL sweeper
// handles removal.
func (c *WeaviateCache) Lookup(ctx context.Context, ownerID, query string, embedding []float32) *Hit {
	ctx, span := tracer.Start(ctx, "CacheLookup")
	defer span.End()

	if ownerID == "" || len(embedding) != datatypes.EmbeddingDimensions {
		return nil
	}

	nearVector := c.client.GraphQL().NearVectorArgBuilder().
		WithVector(embedding).
		WithCertainty(SimilarityThreshold)

	fields := []graphql.Field{
		{Name: "query"},
		{Name: "response"},
		{Name: "diary_ids"},
		{Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := c.client.GraphQL().Get().
		WithClassName(datatypes.ClassResponseCache).
		WithFields(fields...).
		WithWhere(c.ownerFilter(ownerID)).
		WithNearVector(nearVector).
		WithLimit(lookupCandidates).
		Do(ctx)
	if err != nil {
		slog.Warn("Semantic cache lookup failed, treating as miss",
			"ownerID", ownerID, "error", err)
		return nil
	}

	parsed, err := datatypes.ParseGraphQLResponse[cacheQueryResponse](result)
	if err != nil {
		slog.Warn("Semantic cache parse failed, treating as miss", "error", err)
		return nil
	}

	cutoff := c.now().Add(-EntryTTL)
	var best *Hit
	for _, entry := range parsed.Get.ResponseCache {
		createdAt := time.UnixMilli(int64(entry.CreatedAt))
		if createdAt.Before(cutoff) {
			continue
		}
		if entry.Additional.Certainty < SimilarityThreshold {
			continue
		}
		if best == nil || entry.Additional.Certainty > best.Similarity {
			best = &Hit{
				Query:      entry.Query,
				Response:   entry.Response,
				DiaryIDs:   entry.DiaryIDs,
				Similarity: entry.Additional.Certainty,
				CreatedAt:  createdAt,
			}
		}
	}

	if best != nil {
		slog.Info("Semantic cache hit",
			"ownerID", ownerID, "similarity", best.Similarity)
	}
	return best
}

// Store writes one entry and evicts beyond the per-owner cap.
func (c *WeaviateCache) Store(ctx context.Context, ownerID, query, response string, diaryIDs []int, embedding []float32) {
	ctx, span := tracer.Start(ctx, "CacheStore")
	defer span.End()

	if ownerID == "" || len(embedding) != datatypes.EmbeddingDimensions {
		return
	}
	if utf8.RuneCountInString(query) < minQueryRunes ||
		utf8.RuneCountInString(response) < minResponseRunes {
		slog.Debug("Skipping semantic cache store for trivial entry",
			"queryRunes", utf8.RuneCountInString(query),
			"responseRunes", utf8.RuneCountInString(response))
		return
	}

	if diaryIDs == nil {
		diaryIDs = []int{}
	}
	properties := map[string]interface{}{
		"user_id":    ownerID,
		"query":      query,
		"response":   response,
		"diary_ids":  diaryIDs,
		"created_at": c.now().UnixMilli(),
	}

	_, err := c.client.Data().Creator().
		WithClassName(datatypes.ClassResponseCache).
		WithProperties(properties).
		WithVector(embedding).
		Do(ctx)
	if err != nil {
		slog.Warn("Semantic cache store failed, skipping",
			"ownerID", ownerID, "error", err)
		return
	}

	c.evictBeyondCap(ctx, ownerID)
}

// InvalidateByDiaries removes entries whose diary_ids intersect the list.
// Must run whenever a referenced diary changes or is deleted; a stale cached
// answer about edited content is worse than a miss.
func (c *WeaviateCache) InvalidateByDiaries(ctx context.Context, ownerID string, diaryIDs []int) {
	ctx, span := tracer.Start(ctx, "CacheInvalidate")
	defer span.End()

	if ownerID == "" || len(diaryIDs) == 0 {
		return
	}

	idValues := make([]int64, len(diaryIDs))
	for i, id := range diaryIDs {
		idValues[i] = int64(id)
	}
	intersects := filters.Where().
		WithPath([]string{"diary_ids"}).
		WithOperator(filters.ContainsAny).
		WithValueInt(idValues...)
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{c.ownerFilter(ownerID), intersects})

	resp, err := c.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassResponseCache).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		slog.Warn("Semantic cache invalidation failed, skipping",
			"ownerID", ownerID, "diaryIDs", diaryIDs, "error", err)
		return
	}

	if resp != nil && resp.Results != nil && resp.Results.Successful > 0 {
		slog.Info("Invalidated semantic cache entries",
			"ownerID", ownerID, "count", resp.Results.Successful)
	}
}

// evictBeyondCap deletes the oldest entries past MaxEntriesPerOwner.
func (c *WeaviateCache) evictBeyondCap(ctx context.Context, ownerID string) {
	sortBy := graphql.Sort{
		Path:  []string{"created_at"},
		Order: graphql.Desc,
	}
	fields := []graphql.Field{
		{Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
		}},
	}

	// Fetch one past the cap; any entry beyond it is deleted by object id.
	result, err := c.client.GraphQL().Get().
		WithClassName(datatypes.ClassResponseCache).
		WithFields(fields...).
		WithWhere(c.ownerFilter(ownerID)).
		WithSort(sortBy).
		WithLimit(MaxEntriesPerOwner + 1).
		Do(ctx)
	if err != nil {
		slog.Warn("Semantic cache eviction scan failed", "error", err)
		return
	}

	parsed, err := datatypes.ParseGraphQLResponse[cacheQueryResponse](result)
	if err != nil {
		slog.Warn("Semantic cache eviction parse failed", "error", err)
		return
	}
	entries := parsed.Get.ResponseCache
	if len(entries) <= MaxEntriesPerOwner {
		return
	}

	// Delete by object id. A created_at cutoff would also catch in-cap
	// entries that share a timestamp with the overflow.
	overflow := make([]string, 0, len(entries)-MaxEntriesPerOwner)
	for _, entry := range entries[MaxEntriesPerOwner:] {
		if entry.Additional.ID != "" {
			overflow = append(overflow, entry.Additional.ID)
		}
	}
	if len(overflow) == 0 {
		return
	}
	where := filters.Where().
		WithPath([]string{"id"}).
		WithOperator(filters.ContainsAny).
		WithValueText(overflow...)

	resp, err := c.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassResponseCache).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		slog.Warn("Semantic cache eviction failed", "ownerID", ownerID, "error", err)
		return
	}
	if resp != nil && resp.Results != nil {
		slog.Debug("Evicted oldest semantic cache entries",
			"ownerID", ownerID, "count", resp.Results.Successful)
	}
}

func (c *WeaviateCache) ownerFilter(ownerID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
}

// cacheQueryResponse is the typed shape of a ResponseCache query.
type cacheQueryResponse struct {
	Get struct {
		ResponseCache []datatypes.ResponseCacheResult `json:"ResponseCache"`
	} `json:"Get"`
}

// SweepExpired deletes entries older than the TTL for every owner. Invoked
// by the background TTL scheduler rather than request paths.
func (c *WeaviateCache) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "CacheSweepExpired")
	defer span.End()

	cutoff := c.now().Add(-EntryTTL).UnixMilli()
	where := filters.Where().
		WithPath([]string{"created_at"}).
		WithOperator(filters.LessThan).
		WithValueNumber(float64(cutoff))

	resp, err := c.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassResponseCache).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("semantic cache sweep failed: %w", err)
	}

	deleted := 0
	if resp != nil && resp.Results != nil {
		deleted = int(resp.Results.Successful)
	}
	return deleted, nil
}
