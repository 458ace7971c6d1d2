// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// SSE Stream Events
// =============================================================================

// StreamEventType labels an SSE event on the chat transport.
type StreamEventType string

const (
	// StreamEventSession announces the resolved session. Sent exactly once,
	// before any other event.
	StreamEventSession StreamEventType = "session"

	// StreamEventSources carries the retrieved diary references. Optional;
	// when present it precedes the first token.
	StreamEventSources StreamEventType = "sources"

	// StreamEventToken carries one generated text fragment.
	StreamEventToken StreamEventType = "token"

	// StreamEventDone terminates a successful stream. Exactly one terminal
	// event is emitted per stream.
	StreamEventDone StreamEventType = "done"

	// StreamEventError terminates a failed stream, carrying any partial
	// content already produced.
	StreamEventError StreamEventType = "error"
)

// DiaryRef is a lightweight diary reference included in sources events.
type DiaryRef struct {
	DiaryID int     `json:"diary_id"`
	Title   string  `json:"title"`
	Date    string  `json:"date"`
	Score   float64 `json:"score"`
}

// SuggestedAction is the optional follow-up (CTA) attached to a done event.
//
// # Fields
//
//   - Type: One of "mood_analysis", "write_diary", "view_triggers".
//   - Label: User-facing prompt text for the action.
type SuggestedAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// StreamEvent is the wire shape for every SSE event on the chat transport.
//
// # Description
//
// The event sequence for one request is: one session event, an optional
// sources event, zero or more token events, then exactly one terminal done
// or error event. Nothing is emitted after the terminal event.
//
// Id and CreatedAt are populated by the SSE writer at emission time so that
// callers construct events from content fields only.
type StreamEvent struct {
	Id        string          `json:"id,omitempty"`
	Type      StreamEventType `json:"type"`
	CreatedAt int64           `json:"created_at,omitempty"`

	// session event
	SessionID string `json:"session_id,omitempty"`

	// token event
	Content string `json:"content,omitempty"`

	// sources event
	Sources []DiaryRef `json:"sources,omitempty"`

	// done event
	DiaryIDs []int            `json:"diary_ids,omitempty"`
	Action   *SuggestedAction `json:"action,omitempty"`
	Cached   bool             `json:"cached,omitempty"`

	// error event
	Error   string `json:"error,omitempty"`
	Partial string `json:"partial,omitempty"`
}
