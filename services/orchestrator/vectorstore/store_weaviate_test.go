// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

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

// fakeWeaviate stands in for the Weaviate REST surface the store touches,
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

func diarySearchResponse(rows []map[string]any) string {
	return jsonBody(map[string]any{
		"data": map[string]any{
			"Get": map[string]any{"DiaryEmbedding": rows},
		},
	})
}

// lastGraphQLQuery returns the query string of the most recent GraphQL call.
func lastGraphQLQuery(t *testing.T, fake *fakeWeaviate) string {
	t.Helper()
	var query string
	for _, r := range fake.recorded() {
		if r.method == http.MethodPost && r.path == "/v1/graphql" {
			query = graphQLQueryOf(r.body)
		}
	}
	require.NotEmpty(t, query)
	return query
}

// =============================================================================
// Tests
// =============================================================================

func TestSearchSimilar_OwnerFilterInQuery(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		if method == http.MethodPost && path == "/v1/graphql" {
			return http.StatusOK, diarySearchResponse([]map[string]any{{
				"diary_id":    3,
				"title":       "산책",
				"content":     "공원 산책을 다녀왔다",
				"mood_color":  "yellow",
				"diary_date":  time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC).UnixMilli(),
				"_additional": map[string]any{"certainty": 0.87},
			}})
		}
		return http.StatusNotFound, "{}"
	}
	store := NewWeaviateStore(newFakeClient(t, fake))

	results, err := store.SearchSimilar(context.Background(), SearchParams{
		OwnerID: "owner-1",
		Vector:  make([]float32, datatypes.EmbeddingDimensions),
		TopK:    5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].DiaryID)
	assert.Equal(t, datatypes.MoodYellow, results[0].Color)
	assert.InDelta(t, 0.87, results[0].Score, 1e-9)

	// The owner filter is part of the query itself, not a post-filter.
	query := lastGraphQLQuery(t, fake)
	assert.Contains(t, query, "user_id")
	assert.Contains(t, query, "owner-1")
	assert.Contains(t, query, "nearVector")
}

func TestSearchSimilar_DateWindowExpandedToFullDays(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		if method == http.MethodPost && path == "/v1/graphql" {
			return http.StatusOK, diarySearchResponse(nil)
		}
		return http.StatusNotFound, "{}"
	}
	store := NewWeaviateStore(newFakeClient(t, fake))

	start := time.Date(2025, 6, 1, 14, 30, 0, 0, time.Local)
	end := time.Date(2025, 6, 3, 9, 15, 0, 0, time.Local)
	_, err := store.SearchSimilar(context.Background(), SearchParams{
		OwnerID: "owner-1",
		Vector:  make([]float32, datatypes.EmbeddingDimensions),
		TopK:    5,
		Range:   &datatypes.DateRange{Start: start, End: end},
	})
	require.NoError(t, err)

	// Both window edges land on full-day boundaries, inclusive on each side.
	query := lastGraphQLQuery(t, fake)
	assert.Contains(t, query, "diary_date")
	assert.Contains(t, query, "GreaterThanEqual")
	assert.Contains(t, query, "LessThanEqual")
	assertContainsMillis(t, query, datatypes.StartOfDay(start).UnixMilli())
	assertContainsMillis(t, query, datatypes.EndOfDay(end).UnixMilli())
}

// assertContainsMillis accepts either rendering of a millisecond timestamp
// in the query text: plain integer or float notation.
func assertContainsMillis(t *testing.T, query string, ms int64) {
	t.Helper()
	plain := fmt.Sprintf("%d", ms)
	float := fmt.Sprintf("%v", float64(ms))
	assert.True(t,
		strings.Contains(query, plain) || strings.Contains(query, float),
		"query missing timestamp %d (also tried %s):\n%s", ms, float, query)
}

func TestUpsertEmbedding_ReplacesInPlace(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		if method == http.MethodPut && strings.HasPrefix(path, "/v1/objects") {
			return http.StatusOK, "{}"
		}
		return http.StatusNotFound, "{}"
	}
	store := NewWeaviateStore(newFakeClient(t, fake))

	record := datatypes.DiaryRecord{
		DiaryID: 42,
		UserID:  "owner-1",
		Title:   "산책",
		Content: "공원 산책",
		Color:   datatypes.MoodYellow,
		Date:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.Local),
	}
	err := store.UpsertEmbedding(context.Background(), record,
		make([]float32, datatypes.EmbeddingDimensions))
	require.NoError(t, err)

	// One PUT under the deterministic id; no delete, no second write.
	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Contains(t, reqs[0].path, DiaryObjectID(42))
	assert.Contains(t, reqs[0].body, "owner-1")
	assert.Contains(t, reqs[0].body, "vector")
}

func TestUpsertEmbedding_CreatesWhenAbsent(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		switch {
		case method == http.MethodPut && strings.HasPrefix(path, "/v1/objects"):
			return http.StatusNotFound, `{"error":[{"message":"no object with id"}]}`
		case method == http.MethodPost && strings.HasPrefix(path, "/v1/objects"):
			return http.StatusOK, "{}"
		}
		return http.StatusNotFound, "{}"
	}
	store := NewWeaviateStore(newFakeClient(t, fake))

	record := datatypes.DiaryRecord{
		DiaryID: 42,
		UserID:  "owner-1",
		Color:   datatypes.MoodGreen,
		Date:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.Local),
	}
	err := store.UpsertEmbedding(context.Background(), record,
		make([]float32, datatypes.EmbeddingDimensions))
	require.NoError(t, err)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, http.MethodPost, reqs[1].method)
	assert.Contains(t, reqs[1].body, DiaryObjectID(42))
	assert.Contains(t, reqs[1].body, "owner-1")
}

func TestDeleteEmbedding_ScopedToOwner(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		if method == http.MethodDelete && path == "/v1/batch/objects" {
			return http.StatusOK, `{"results":{"matches":1,"successful":1}}`
		}
		return http.StatusNotFound, "{}"
	}
	store := NewWeaviateStore(newFakeClient(t, fake))

	require.NoError(t, store.DeleteEmbedding(context.Background(), "owner-1", 7))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].body, "user_id")
	assert.Contains(t, reqs[0].body, "owner-1")
	assert.Contains(t, reqs[0].body, "diary_id")
}

func TestListByOwner_OwnerFilterInQuery(t *testing.T) {
	fake := &fakeWeaviate{}
	fake.handle = func(method, path, body string) (int, string) {
		if method == http.MethodPost && path == "/v1/graphql" {
			return http.StatusOK, diarySearchResponse(nil)
		}
		return http.StatusNotFound, "{}"
	}
	store := NewWeaviateStore(newFakeClient(t, fake))

	_, err := store.ListByOwner(context.Background(), "owner-1", 20)
	require.NoError(t, err)

	query := lastGraphQLQuery(t, fake)
	assert.Contains(t, query, "user_id")
	assert.Contains(t, query, "owner-1")
	assert.Regexp(t, `limit:\s*20`, query)
}
