// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haru-ai/haru/services/embedding"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/middleware"
	"github.com/haru-ai/haru/services/orchestrator/semcache"
	"github.com/haru-ai/haru/services/orchestrator/vectorstore"
)

// embedJobTimeout bounds one background embed-and-upsert job.
const embedJobTimeout = 60 * time.Second

// DiaryHandler serves the diary lifecycle webhooks the external CRUD layer
// calls after a diary is created, updated, or deleted.
//
// # Description
//
// Embedding is decoupled from diary writes: the webhook answers immediately
// and the embed-and-upsert runs in the background, so diary-creation latency
// never depends on the embedding provider. A background failure is logged
// and not retried; the diary stays invisible to vector search until the CRUD
// layer resends the webhook. Cache entries referencing the diary are
// invalidated on every change so stale answers cannot survive an edit.
type DiaryHandler struct {
	embedder embedding.Client
	store    vectorstore.Store
	cache    semcache.Cache
}

// NewDiaryHandler builds the handler.
func NewDiaryHandler(embedder embedding.Client, store vectorstore.Store, cache semcache.Cache) *DiaryHandler {
	return &DiaryHandler{embedder: embedder, store: store, cache: cache}
}

// HandleUpsert serves POST /v1/diaries/:id/embedding. Responds 202; the
// embedding work happens asynchronously.
func (h *DiaryHandler) HandleUpsert(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	diaryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || diaryID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "diary id must be a positive integer"})
		return
	}

	var req datatypes.DiaryEmbedRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.UserID != ownerID {
		// The CRUD layer must call on behalf of the diary's owner.
		c.JSON(http.StatusForbidden, gin.H{"error": "owner mismatch"})
		return
	}

	color, _ := datatypes.ParseMoodColor(req.Color)
	record := datatypes.DiaryRecord{
		DiaryID: diaryID,
		UserID:  ownerID,
		Title:   req.Title,
		Content: req.Content,
		Color:   color,
		Date:    time.UnixMilli(req.Date),
	}

	go h.embedAndUpsert(record)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "diary_id": diaryID})
}

// embedAndUpsert runs the decoupled embed job: vector, upsert, cache
// invalidation.
func (h *DiaryHandler) embedAndUpsert(record datatypes.DiaryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), embedJobTimeout)
	defer cancel()

	text := record.Title + "\n" + record.Content
	vector, err := h.embedder.EmbedDocument(ctx, text)
	if err != nil {
		slog.Error("Diary embedding failed",
			"diaryID", record.DiaryID, "ownerID", record.UserID, "error", err)
		return
	}
	if err := h.store.UpsertEmbedding(ctx, record, vector); err != nil {
		slog.Error("Diary embedding upsert failed",
			"diaryID", record.DiaryID, "ownerID", record.UserID, "error", err)
		return
	}
	h.cache.InvalidateByDiaries(ctx, record.UserID, []int{record.DiaryID})
	slog.Info("Diary embedding upserted", "diaryID", record.DiaryID, "ownerID", record.UserID)
}

// HandleDelete serves DELETE /v1/diaries/:id/embedding. Deleting an
// embedding that never existed is a success.
func (h *DiaryHandler) HandleDelete(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	diaryID, err := strconv.Atoi(c.Param("id"))
	if err != nil || diaryID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "diary id must be a positive integer"})
		return
	}

	if err := h.store.DeleteEmbedding(c.Request.Context(), ownerID, diaryID); err != nil {
		slog.Error("Diary embedding delete failed",
			"diaryID", diaryID, "ownerID", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete embedding"})
		return
	}
	h.cache.InvalidateByDiaries(c.Request.Context(), ownerID, []int{diaryID})

	c.JSON(http.StatusOK, gin.H{"status": "success", "diary_id": diaryID})
}
