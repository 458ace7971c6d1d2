// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides owner identity extraction for the orchestrator.
//
// # Description
//
// Authentication itself (OAuth, token validation) happens in the upstream
// gateway; by the time a request reaches this service the owner is already
// verified and carried in the X-Haru-User-ID header. This middleware lifts
// that header into the Gin context so every handler and every downstream
// query is scoped to a single owner.
//
//	Request
//	   │
//	   ▼
//	RequireOwner
//	   │
//	   ├─► Read "X-Haru-User-ID"
//	   │
//	   ├─► Reject with 401 when absent or malformed
//	   │
//	   └─► Store owner id in context
//	           │
//	           ▼
//	       Handler (retrieves via OwnerID)
//
// The owner id is the system's access-control boundary: it is never read
// from request bodies, query parameters, or model tool arguments.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

const ownerIDKey = "haru_owner_id"

// OwnerHeader is the gateway-set header carrying the verified owner id.
const OwnerHeader = "X-Haru-User-ID"

// maxOwnerIDLength bounds the accepted header value.
const maxOwnerIDLength = 128

// =============================================================================
// Accessors
// =============================================================================

// SetOwnerID stores the verified owner id in the Gin context. Exposed for
// handler tests.
func SetOwnerID(c *gin.Context, ownerID string) {
	c.Set(ownerIDKey, ownerID)
}

// OwnerID returns the verified owner id stored by RequireOwner, or "" when
// the middleware has not run.
func OwnerID(c *gin.Context) string {
	v, ok := c.Get(ownerIDKey)
	if !ok {
		return ""
	}
	ownerID, ok := v.(string)
	if !ok {
		return ""
	}
	return ownerID
}

// =============================================================================
// Middleware
// =============================================================================

// RequireOwner extracts the owner id from the gateway header and aborts with
// 401 when it is missing or malformed.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if ownerID == "" || len(ownerID) > maxOwnerIDLength {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing owner identity",
			})
			return
		}
		SetOwnerID(c, ownerID)
		c.Next()
	}
}
