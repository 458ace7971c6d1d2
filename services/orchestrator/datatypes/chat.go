// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes caps a single user message. Byte length, not
	// rune count, to bound memory for multi-byte scripts.
	MaxMessageContentBytes = 32 * 1024
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on string fields tagged
// with `maxbytes`. Checks byte length to prevent memory exhaustion with
// large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Stream Request
// =============================================================================

// ChatStreamRequest is the body for POST /v1/chat/stream.
//
// # Description
//
// Carries one user message into the diary-grounded RAG pipeline. The owner
// identity is never part of the body; it comes from the authenticated
// request context (see middleware.OwnerID) so that a client cannot query
// another user's diaries by crafting a payload.
//
// # Fields
//
//   - RequestID: Optional client-supplied UUID v4; generated when absent.
//   - Timestamp: Optional Unix ms; populated when absent.
//   - Message: Required, 1..32KB. Whitespace-only messages are rejected by
//     Validate before any provider call.
//   - SessionID: Optional. Absent means "session of the day" resolution.
//   - ToolsEnabled: Whether the generation pass may invoke introspection
//     tools (mood analysis, recommendations, trigger analysis).
//
// # Validation
//
//   - Message: required, maxbytes custom validator
//   - SessionID: uuid4 when present
type ChatStreamRequest struct {
	RequestID    string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp    int64  `json:"timestamp" validate:"gte=0"`
	Message      string `json:"message" validate:"required,maxbytes"`
	SessionID    string `json:"session_id" validate:"omitempty,uuid4"`
	ToolsEnabled bool   `json:"tools_enabled"`
}

// Validate checks the request against its validation tags plus the
// whitespace rule the tag language cannot express.
func (r *ChatStreamRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client omitted
// them, so every request is traceable.
func (r *ChatStreamRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Embedding Webhook Requests
// =============================================================================

// DiaryEmbedRequest is the body for POST /v1/diaries/:id/embedding, sent by
// the diary CRUD layer after a create or update. Content arrives already
// decrypted; this layer never sees ciphertext.
type DiaryEmbedRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Title   string `json:"title"`
	Content string `json:"content" validate:"required"`
	Color   string `json:"color" validate:"required"`
	Date    int64  `json:"date" validate:"required,gt=0"`
}

// Validate checks the webhook body, including that Color resolves to one of
// the four mood colors.
func (r *DiaryEmbedRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	_, err := ParseMoodColor(r.Color)
	return err
}
