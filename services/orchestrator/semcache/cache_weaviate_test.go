// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package semcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// =============================================================================
// Fake Weaviate Server
// =============================================================================

type recordedRequest struct {
	method string
	path   string
	body   string
}

// fakeWeaviate stands in for the Weaviate REST surface the cache touches,
// recording every request in arrival order.
type fakeWeaviate struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(method, path, body string) (int, string)
}

func (f *fakeWeaviate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := string(raw)

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet && r.URL.Path == "/v1/meta" {
		fmt.Fprint(w, `{"version":"1.27.0"}`)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{r.Method, r.URL.Path, body})
	f.mu.Unlock()

	status, resp := f.handle(r.Method, r.URL.Path, body)
	w.WriteHeader(status)
	fmt.Fprint(w, resp)
}

func (f *fakeWeaviate) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newFakeClient(t *testing.T, fake *fakeWeaviate) *weaviate.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   strings.TrimPrefix(srv.URL, "http://"),
		Scheme: "http",
	})
	require.NoError(t, err)
	return client
}

func graphQLQueryOf(body string) string {
	var req struct {
		Query string `json:"query"`
	}
	_ = json.Unmarshal([]byte(body), &req)
	return req.Query
}

func jsonBody(v map[string]any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func cacheEntriesResponse(rows []map[string]any) string {
	return jsonBody(map[string]any{
		"data": map[string]any{
			"Get": map[string]any{"ResponseCache": rows},
		},
	})
}

// =============================================================================
// Tests
// =============================================================================

func TestLookup_ScopesToOwner(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		if method == http.MethodPost && path == "/v1/graphql" {
			return http.StatusOK, cacheEntriesResponse([]map[string]any{{
				"query":       "요즘 어땠어?",
				"response":    "편안한 한 주를 보내셨어요.",
				"diary_ids":   []int{3},
				"created_at":  time.Now().UnixMilli(),
				"_additional": map[string]any{"certainty": 0.95},
			}})
		}
		return http.StatusNotFound, "{}"
	}
	cache := NewWeaviateCache(newFakeClient(t, fake))

	hit := cache.Lookup(context.Background(), "owner-1", "요즘 어땠어?",
		make([]float32, datatypes.EmbeddingDimensions))
	require.NotNil(t, hit)
	assert.Equal(t, "편안한 한 주를 보내셨어요.", hit.Response)
	assert.InDelta(t, 0.95, hit.Similarity, 1e-9)

	// The owner filter travels with the query; no cross-owner candidates.
	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	query := graphQLQueryOf(reqs[0].body)
	assert.Contains(t, query, "user_id")
	assert.Contains(t, query, "owner-1")
	assert.Contains(t, query, "nearVector")
}

func TestStore_EvictsOnlyOverflowEntries(t *testing.T) {
	// One entry past the cap, and it shares its created_at timestamp with
	// the newest in-cap entry.
	sharedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	rows := make([]map[string]any, 0, MaxEntriesPerOwner+1)
	for i := 0; i < MaxEntriesPerOwner-1; i++ {
		rows = append(rows, map[string]any{
			"created_at":  sharedAt + int64((MaxEntriesPerOwner-i)*60_000),
			"_additional": map[string]any{"id": fmt.Sprintf("keep-%02d", i)},
		})
	}
	rows = append(rows, map[string]any{
		"created_at":  sharedAt,
		"_additional": map[string]any{"id": "keep-49"},
	})
	rows = append(rows, map[string]any{
		"created_at":  sharedAt,
		"_additional": map[string]any{"id": "evict-50"},
	})

	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		switch {
		case method == http.MethodPost && strings.HasPrefix(path, "/v1/objects"):
			return http.StatusOK, "{}"
		case method == http.MethodPost && path == "/v1/graphql":
			return http.StatusOK, cacheEntriesResponse(rows)
		case method == http.MethodDelete && path == "/v1/batch/objects":
			return http.StatusOK, `{"results":{"matches":1,"successful":1}}`
		}
		return http.StatusNotFound, "{}"
	}
	cache := NewWeaviateCache(newFakeClient(t, fake))

	cache.Store(context.Background(), "owner-1", "요즘 어땠어?",
		"충분히 긴 캐시 응답 본문입니다.", []int{1},
		make([]float32, datatypes.EmbeddingDimensions))

	var deleteBodies []string
	for _, r := range fake.recorded() {
		if r.method == http.MethodDelete && r.path == "/v1/batch/objects" {
			deleteBodies = append(deleteBodies, r.body)
		}
	}
	require.Len(t, deleteBodies, 1)

	// Eviction targets the overflow entry by object id. A timestamp cutoff
	// would also sweep keep-49, which shares the boundary created_at.
	assert.Contains(t, deleteBodies[0], "evict-50")
	assert.NotContains(t, deleteBodies[0], "keep-")
	assert.Contains(t, deleteBodies[0], "ContainsAny")
}

func TestStore_NoEvictionWithinCap(t *testing.T) {
	rows := []map[string]any{{
		"created_at":  time.Now().UnixMilli(),
		"_additional": map[string]any{"id": "only-entry"},
	}}

	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		switch {
		case method == http.MethodPost && strings.HasPrefix(path, "/v1/objects"):
			return http.StatusOK, "{}"
		case method == http.MethodPost && path == "/v1/graphql":
			return http.StatusOK, cacheEntriesResponse(rows)
		}
		return http.StatusNotFound, "{}"
	}
	cache := NewWeaviateCache(newFakeClient(t, fake))

	cache.Store(context.Background(), "owner-1", "요즘 어땠어?",
		"충분히 긴 캐시 응답 본문입니다.", nil,
		make([]float32, datatypes.EmbeddingDimensions))

	for _, r := range fake.recorded() {
		assert.NotEqual(t, http.MethodDelete, r.method,
			"an under-cap owner must not trigger eviction")
	}
}
