// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Chat Sessions
// =============================================================================

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatSession is one conversation between a user and the agent.
//
// # Description
//
// Sessions are created explicitly or implicitly ("session of the day": the
// most recent active session created since local midnight is reused when no
// explicit session is requested). UpdatedAt is bumped on every message
// append. Summary holds the compaction synopsis once the message count
// crosses the summarization threshold; a later round overwrites it rather
// than merging.
//
// # Fields
//
//   - SessionID: Generated UUID, unique across users.
//   - Summary: Empty until the first summarization round.
//   - IsActive: False once the session is soft-deactivated.
type ChatSession struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is a single turn within a session.
//
// # Description
//
// Messages within a session are totally ordered by CreatedAt. Retrieval by
// limit fetches newest-first internally but always returns slices in
// chronological order. RelatedDiaryIDs records which diaries grounded an
// assistant answer (empty for user turns and ungrounded answers).
type ChatMessage struct {
	MessageID       string      `json:"message_id"`
	SessionID       string      `json:"session_id"`
	Role            MessageRole `json:"role"`
	Content         string      `json:"content"`
	RelatedDiaryIDs []int       `json:"related_diary_ids,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}
