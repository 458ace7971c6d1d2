// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/haru-ai/haru/services/orchestrator/conversation"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/middleware"
)

// defaultSessionListLimit caps GET /v1/sessions when no limit is given.
const defaultSessionListLimit = 20

// SessionHandler serves the session management endpoints. Every operation is
// scoped to the verified owner; a session id belonging to another owner
// behaves exactly like a missing one.
type SessionHandler struct {
	sessions conversation.Store
}

// NewSessionHandler builds the handler.
func NewSessionHandler(sessions conversation.Store) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// HandleList serves GET /v1/sessions?limit=N, newest first.
func (h *SessionHandler) HandleList(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	limit := defaultSessionListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), ownerID, limit)
	if err != nil {
		slog.Error("Failed to list sessions", "ownerID", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []datatypes.ChatSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// HandleMessages serves GET /v1/sessions/:id/messages?limit=N in
// chronological order.
func (h *SessionHandler) HandleMessages(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	sessionID := c.Param("id")

	limit := conversation.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	// Ownership check first so a foreign session reads as 404.
	if _, err := h.sessions.GetSession(c.Request.Context(), ownerID, sessionID); err != nil {
		if datatypes.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.Error("Failed to load session", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	messages, err := h.sessions.GetRecentMessages(c.Request.Context(), ownerID, sessionID, limit)
	if err != nil {
		if datatypes.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Failed to load messages", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if messages == nil {
		messages = []datatypes.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": messages})
}

// HandleDelete serves DELETE /v1/sessions/:id: removes the session and every
// message it holds.
func (h *SessionHandler) HandleDelete(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	sessionID := c.Param("id")

	if err := h.sessions.DeleteSession(c.Request.Context(), ownerID, sessionID); err != nil {
		if datatypes.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.Error("Failed to delete session", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
}

// HandleDeactivate serves POST /v1/sessions/:id/deactivate: the session stops
// being a "session of the day" candidate but keeps its messages.
func (h *SessionHandler) HandleDeactivate(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	sessionID := c.Param("id")

	if err := h.sessions.DeactivateSession(c.Request.Context(), ownerID, sessionID); err != nil {
		if datatypes.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.Error("Failed to deactivate session", "sessionID", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "session_id": sessionID})
}
