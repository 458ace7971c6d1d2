// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the orchestrator's HTTP surface: the SSE chat
// stream, diary embedding webhooks, session management, and insight
// endpoints.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/middleware"
	"github.com/haru-ai/haru/services/orchestrator/observability"
	"github.com/haru-ai/haru/services/orchestrator/rag"
)

var tracer = otel.Tracer("haru.orchestrator.handlers")

// heartbeatInterval paces SSE keepalive comments. Below the common 60s idle
// cutoff of load balancers with margin for scheduling jitter.
const heartbeatInterval = 15 * time.Second

// emptyMessagePrompt is the localized response for blank messages, returned
// before any provider call.
const emptyMessagePrompt = "무슨 이야기든 편하게 들려주세요. 오늘 하루는 어떠셨나요?"

// =============================================================================
// Chat Handler
// =============================================================================

// ChatHandler serves POST /v1/chat/stream.
type ChatHandler struct {
	orch *rag.Orchestrator
}

// NewChatHandler builds the chat handler around the RAG pipeline.
func NewChatHandler(orch *rag.Orchestrator) *ChatHandler {
	return &ChatHandler{orch: orch}
}

// HandleChatStream streams one diary-grounded answer over SSE.
//
// # Description
//
// Validates the request, then hands the stream to the RAG pipeline with an
// SSE-backed event sink. A heartbeat goroutine keeps the connection alive
// through retrieval and generation stalls. The pipeline runs on a context
// detached from the request's cancellation: a client disconnect suppresses
// further writes (the sink reports rag.ErrStreamClosed) but persistence of
// both turns still completes.
//
// Every delivered token is mirrored into a locked-memory accumulator; its
// length and SHA-256 digest are logged at stream end so the delivered prefix
// can be reconciled against the persisted answer after a disconnect.
func (h *ChatHandler) HandleChatStream(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()

	ownerID := middleware.OwnerID(c)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing owner identity"})
		return
	}
	span.SetAttributes(attribute.String("owner.id", ownerID))

	var req datatypes.ChatStreamRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		if errors.Is(err, datatypes.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": emptyMessagePrompt})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.EnsureDefaults()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Bool("request.tools_enabled", req.ToolsEnabled),
	)

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	observability.StreamStarted()
	defer observability.StreamEnded()

	// Heartbeats stop when the pipeline returns or the client goes away.
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go runHeartbeat(writer, heartbeatDone)

	acc := NewTokenAccumulator()
	defer acc.Destroy()
	sink := &auditingSink{inner: writer, acc: acc}

	// Detach from request cancellation: on disconnect the sink goes dark
	// but persistence in the pipeline must still finish.
	h.orch.Stream(context.WithoutCancel(ctx), ownerID, req, sink)

	if sink.closed {
		observability.RecordClientDisconnect()
	}
	if delivered, digest, err := acc.Finalize(); err == nil {
		slog.Info("Chat stream finished",
			"requestId", req.RequestID,
			"ownerID", ownerID,
			"deliveredBytes", len(delivered),
			"deliveredSHA256", digest,
			"clientDisconnected", sink.closed,
		)
	}
}

// runHeartbeat writes SSE comments until the stream ends or a write fails.
func runHeartbeat(writer *sseWriter, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
			observability.RecordKeepAlive()
		}
	}
}

// =============================================================================
// Auditing Sink
// =============================================================================

// auditingSink forwards events to the SSE writer while mirroring delivered
// tokens into the accumulator. It records whether the client disconnected.
type auditingSink struct {
	inner  *sseWriter
	acc    TokenAccumulator
	closed bool
}

func (s *auditingSink) Session(sessionID string) error {
	return s.track(s.inner.Session(sessionID))
}

func (s *auditingSink) Sources(refs []datatypes.DiaryRef) error {
	return s.track(s.inner.Sources(refs))
}

func (s *auditingSink) Token(token string) error {
	err := s.inner.Token(token)
	if err == nil {
		// Mirror only what actually reached the wire.
		if werr := s.acc.Write(token); werr != nil {
			slog.Warn("Delivered-token mirror write failed", "error", werr)
		}
	}
	return s.track(err)
}

func (s *auditingSink) Done(diaryIDs []int, action *datatypes.SuggestedAction, cached bool) error {
	return s.track(s.inner.Done(diaryIDs, action, cached))
}

func (s *auditingSink) Error(message, partial string) error {
	return s.track(s.inner.Error(message, partial))
}

func (s *auditingSink) track(err error) error {
	if errors.Is(err, rag.ErrStreamClosed) {
		s.closed = true
	}
	return err
}

var _ rag.EventSink = (*auditingSink)(nil)
