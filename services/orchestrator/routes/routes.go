// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the orchestrator's HTTP routes.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haru-ai/haru/services/orchestrator/handlers"
	"github.com/haru-ai/haru/services/orchestrator/middleware"
)

// Handlers bundles the constructed handlers for registration.
type Handlers struct {
	Chat     *handlers.ChatHandler
	Sessions *handlers.SessionHandler
	Diaries  *handlers.DiaryHandler
	Insights *handlers.InsightHandler
}

// SetupRoutes registers every route on the router. /health and /metrics are
// unauthenticated; everything under /v1 requires the gateway-verified owner
// header.
func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.RequireOwner())
	{
		v1.POST("/chat/stream", h.Chat.HandleChatStream)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", h.Sessions.HandleList)
			sessions.GET("/:id/messages", h.Sessions.HandleMessages)
			sessions.DELETE("/:id", h.Sessions.HandleDelete)
			sessions.POST("/:id/deactivate", h.Sessions.HandleDeactivate)
		}

		diaries := v1.Group("/diaries")
		{
			diaries.POST("/:id/embedding", h.Diaries.HandleUpsert)
			diaries.DELETE("/:id/embedding", h.Diaries.HandleDelete)
		}

		insights := v1.Group("/insights")
		{
			insights.GET("/moods", h.Insights.HandleMoods)
			insights.GET("/themes", h.Insights.HandleThemes)
			insights.GET("/triggers", h.Insights.HandleTriggers)
			insights.GET("/suggestions", h.Insights.HandleSuggestions)
		}
	}
}
