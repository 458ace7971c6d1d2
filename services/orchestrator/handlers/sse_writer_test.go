// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/rag"
)

// parseSSE splits a recorded body into (event-name, data-json) pairs,
// skipping comment lines.
func parseSSE(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var data string
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
		}
		if data == "" {
			continue // comment / keep-alive block
		}
		var ev datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	return events
}

func TestSSEWriterWireFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Session("sess-1"))
	require.NoError(t, w.Sources([]datatypes.DiaryRef{
		{DiaryID: 7, Title: "힘든 하루", Date: "2025-06-10", Score: 0.91},
	}))
	require.NoError(t, w.Token("안녕"))
	require.NoError(t, w.Done([]int{7}, &datatypes.SuggestedAction{Type: "view_triggers", Label: "스트레스 요인 보기"}, false))

	body := rec.Body.String()
	assert.Contains(t, body, "event: session\n")
	assert.Contains(t, body, "event: sources\n")
	assert.Contains(t, body, "event: token\n")
	assert.Contains(t, body, "event: done\n")

	events := parseSSE(t, body)
	require.Len(t, events, 4)

	assert.Equal(t, datatypes.StreamEventSession, events[0].Type)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.NotEmpty(t, events[0].Id)
	assert.Positive(t, events[0].CreatedAt)

	require.Len(t, events[1].Sources, 1)
	assert.Equal(t, 7, events[1].Sources[0].DiaryID)
	assert.Equal(t, "2025-06-10", events[1].Sources[0].Date)

	assert.Equal(t, "안녕", events[2].Content)

	assert.Equal(t, []int{7}, events[3].DiaryIDs)
	require.NotNil(t, events[3].Action)
	assert.Equal(t, "view_triggers", events[3].Action.Type)
	assert.False(t, events[3].Cached)
}

func TestSSEWriterErrorEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Error("잠시 후 다시 시도해 주세요.", "부분 응답"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventError, events[0].Type)
	assert.Equal(t, "잠시 후 다시 시도해 주세요.", events[0].Error)
	assert.Equal(t, "부분 응답", events[0].Partial)
}

func TestSSEWriterKeepAliveIsComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
	assert.Empty(t, parseSSE(t, rec.Body.String()))
}

// failingWriter fails every write after the first n.
type failingWriter struct {
	*httptest.ResponseRecorder
	remaining int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, fmt.Errorf("broken pipe")
	}
	f.remaining--
	return f.ResponseRecorder.Write(p)
}

func (f *failingWriter) Flush() {}

func TestSSEWriterLatchesClosedOnWriteFailure(t *testing.T) {
	fw := &failingWriter{ResponseRecorder: httptest.NewRecorder(), remaining: 1}
	w, err := NewSSEWriter(fw)
	require.NoError(t, err)

	require.NoError(t, w.Token("first"))
	assert.ErrorIs(t, w.Token("second"), rag.ErrStreamClosed)
	// Once closed, no further writes reach the connection.
	assert.ErrorIs(t, w.Token("third"), rag.ErrStreamClosed)
	assert.ErrorIs(t, w.WriteKeepAlive(), rag.ErrStreamClosed)
}

func TestNewSSEWriterRequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(nonFlushingWriter{})
	assert.Error(t, err)
}

type nonFlushingWriter struct{}

func (nonFlushingWriter) Header() http.Header       { return http.Header{} }
func (nonFlushingWriter) Write(p []byte) (int, error) { return len(p), nil }
func (nonFlushingWriter) WriteHeader(int)           {}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
