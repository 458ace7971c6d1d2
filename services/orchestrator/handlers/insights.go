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

	"github.com/haru-ai/haru/services/orchestrator/analysis"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/middleware"
	"github.com/haru-ai/haru/services/orchestrator/vectorstore"
)

// insightDiaryLimit caps how many diaries one insight request analyzes.
const insightDiaryLimit = 100

// InsightHandler serves the pattern-analysis endpoints over the owner's
// diaries. The diaries come from the vector store's stored properties; the
// analysis itself is pure and runs in-process.
type InsightHandler struct {
	store vectorstore.Store
}

// NewInsightHandler builds the handler.
func NewInsightHandler(store vectorstore.Store) *InsightHandler {
	return &InsightHandler{store: store}
}

// loadDiaries fetches the owner's recent diaries, newest first.
func (h *InsightHandler) loadDiaries(c *gin.Context) ([]datatypes.DiaryRecord, bool) {
	ownerID := middleware.OwnerID(c)

	diaries, err := h.store.ListByOwner(c.Request.Context(), ownerID, insightDiaryLimit)
	if err != nil {
		slog.Error("Failed to load diaries for insights", "ownerID", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load diaries"})
		return nil, false
	}
	return diaries, true
}

// HandleMoods serves GET /v1/insights/moods.
func (h *InsightHandler) HandleMoods(c *gin.Context) {
	diaries, ok := h.loadDiaries(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_diaries": len(diaries),
		"distribution":  analysis.MoodDistribution(diaries),
	})
}

// HandleThemes serves GET /v1/insights/themes?min_frequency=N.
func (h *InsightHandler) HandleThemes(c *gin.Context) {
	minFrequency := analysis.DefaultMinFrequency
	if raw := c.Query("min_frequency"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_frequency must be a positive integer"})
			return
		}
		minFrequency = n
	}

	diaries, ok := h.loadDiaries(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"themes": analysis.RecurringThemes(diaries, minFrequency),
	})
}

// HandleTriggers serves GET /v1/insights/triggers.
func (h *InsightHandler) HandleTriggers(c *gin.Context) {
	diaries, ok := h.loadDiaries(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"triggers": analysis.EmotionTriggers(diaries),
	})
}

// HandleSuggestions serves GET /v1/insights/suggestions?current_mood=color.
func (h *InsightHandler) HandleSuggestions(c *gin.Context) {
	var currentMood *datatypes.MoodColor
	if raw := c.Query("current_mood"); raw != "" {
		color, err := datatypes.ParseMoodColor(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mood color"})
			return
		}
		currentMood = &color
	}

	diaries, ok := h.loadDiaries(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions": analysis.PersonalizedSuggestions(diaries, currentMood, analysis.DefaultMaxSuggestions),
	})
}
