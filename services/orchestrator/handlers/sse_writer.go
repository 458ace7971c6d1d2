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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/rag"
)

// =============================================================================
// SSE Writer
// =============================================================================

// sseWriter emits chat stream events in SSE wire format:
//
//	event: {type}
//	data: {json}
//
// It implements rag.EventSink, so the pipeline writes straight to the HTTP
// response. Each event is assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//
// # Thread Safety
//
// Thread-safe via mutex: the heartbeat goroutine and the pipeline write
// concurrently.
//
// # Limitations
//
//   - Cannot be reused across requests.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders() before the first write.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

// NewSSEWriter wraps the ResponseWriter for SSE emission.
//
// # Outputs
//
//   - *sseWriter: Ready to write events.
//   - error: Non-nil if the ResponseWriter does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// writeEvent populates metadata, serializes, writes, and flushes one event.
// After the first failed write the stream is marked closed and every further
// call returns rag.ErrStreamClosed without touching the connection.
func (w *sseWriter) writeEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return rag.ErrStreamClosed
	}

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		w.closed = true
		return rag.ErrStreamClosed
	}

	w.flusher.Flush()
	return nil
}

// Session announces the resolved session id.
func (w *sseWriter) Session(sessionID string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:      datatypes.StreamEventSession,
		SessionID: sessionID,
	})
}

// Sources emits the retrieved diary references, before the first token.
func (w *sseWriter) Sources(refs []datatypes.DiaryRef) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventSources,
		Sources: refs,
	})
}

// Token emits one generated text fragment.
func (w *sseWriter) Token(token string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: token,
	})
}

// Done terminates a successful stream.
func (w *sseWriter) Done(diaryIDs []int, action *datatypes.SuggestedAction, cached bool) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:     datatypes.StreamEventDone,
		DiaryIDs: diaryIDs,
		Action:   action,
		Cached:   cached,
	})
}

// Error terminates a failed stream, carrying any partial content already
// emitted.
func (w *sseWriter) Error(message, partial string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventError,
		Error:   message,
		Partial: partial,
	})
}

// WriteKeepAlive sends an SSE comment to hold the connection open through
// long retrieval or generation stalls. Comments are ignored by clients but
// keep intermediaries (Nginx, ALB, default 60s idle) from cutting the TCP
// connection.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return rag.ErrStreamClosed
	}
	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		w.closed = true
		return rag.ErrStreamClosed
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the response headers required for SSE streaming.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ rag.EventSink = (*sseWriter)(nil)
