// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/textsplitter"
)

func newTestClient(srv *httptest.Server) *OpenAIClient {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SmallEmbedding3,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxChunkChars),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// embeddingResponse builds a valid provider response with each requested
// input mapped to a constant vector of the given value.
func embeddingResponse(t *testing.T, w http.ResponseWriter, value float32, count int) {
	t.Helper()
	type datum struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	vec := make([]float32, Dimensions)
	for i := range vec {
		vec[i] = value
	}
	data := make([]datum, count)
	for i := range data {
		data[i] = datum{Object: "embedding", Index: i, Embedding: vec}
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  "text-embedding-3-small",
	}))
}

func TestEmbedReturnsFixedDimensionVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		embeddingResponse(t, w, 0.5, 1)
	}))
	defer srv.Close()

	vec, err := newTestClient(srv).Embed(context.Background(), "오늘 하루 일기")
	require.NoError(t, err)
	assert.Len(t, vec, Dimensions)
	assert.Equal(t, float32(0.5), vec[0])
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called for empty input")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Embed(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Embed(context.Background(), "text")
	var dimErr *InvalidDimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Got)
	// Dimension mismatch is misconfiguration, not flakiness.
	assert.Equal(t, int32(1), requests.Load())
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
			return
		}
		embeddingResponse(t, w, 0.25, 1)
	}))
	defer srv.Close()

	vec, err := newTestClient(srv).Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, Dimensions)
	assert.Equal(t, int32(2), requests.Load())
}

func TestEmbedTerminalErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid input","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())
}

func TestEmbedDocumentShortContentSingleCall(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		embeddingResponse(t, w, 1.0, 1)
	}))
	defer srv.Close()

	vec, err := newTestClient(srv).EmbedDocument(context.Background(), "short entry")
	require.NoError(t, err)
	assert.Len(t, vec, Dimensions)
	assert.Equal(t, int32(1), requests.Load())
}

func TestEmbedDocumentMeanPoolsChunks(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		embeddingResponse(t, w, 0.5, 1)
	}))
	defer srv.Close()

	long := strings.Repeat("긴 일기 내용입니다. ", 500)
	require.Greater(t, len(long), maxChunkChars)

	vec, err := newTestClient(srv).EmbedDocument(context.Background(), long)
	require.NoError(t, err)
	assert.Len(t, vec, Dimensions)
	assert.Greater(t, requests.Load(), int32(1))
	// Mean of identical chunk vectors is the chunk vector itself.
	assert.InDelta(t, 0.5, float64(vec[0]), 1e-6)
}
