// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the standard interface for chat-completion backends
// and the OpenAI implementation the service ships with. The interface covers
// the two shapes the orchestrator needs: one-shot generation (session
// summarization, model-based reranking) and token streaming with tool
// calling (the main chat path).
package llm

import "context"

// GenerationParams carries optional sampling parameters. Nil fields fall
// back to backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Message is one turn on the provider wire. Role follows the OpenAI
// convention (system, user, assistant, tool).
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// =============================================================================
// Tool Calling
// =============================================================================

// ToolSpec describes one callable tool advertised to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is one complete tool invocation requested by the model. During
// streaming the argument string arrives in fragments; the client accumulates
// them and only surfaces calls once complete.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// =============================================================================
// Streaming
// =============================================================================

// StreamEventType distinguishes streamed events from the backend.
type StreamEventType int

const (
	// StreamEventToken carries one text fragment, in arrival order.
	StreamEventToken StreamEventType = iota

	// StreamEventToolCalls carries the complete set of tool invocations the
	// model requested for this turn. Emitted once, after all argument
	// fragments have been accumulated.
	StreamEventToolCalls

	// StreamEventDone signals normal end of stream.
	StreamEventDone

	// StreamEventError carries a mid-stream failure.
	StreamEventError
)

// StreamEvent is one event delivered to the stream callback.
type StreamEvent struct {
	Type      StreamEventType
	Content   string
	ToolCalls []ToolCall
	Error     string
}

// StreamCallback receives stream events synchronously, in order. Returning
// a non-nil error aborts the stream (used on client disconnect).
type StreamCallback func(event StreamEvent) error

// =============================================================================
// Interface Definition
// =============================================================================

// LLMClient defines the standard interface for any chat-completion backend.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type LLMClient interface {
	// Generate produces a complete response for a single prompt. Used for
	// summarization and rerank scoring where streaming buys nothing.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream streams a multi-turn completion. Each fragment is passed to
	// callback exactly once, in arrival order. When tools are supplied and
	// the model requests invocations, a single StreamEventToolCalls event is
	// delivered (after argument accumulation) instead of further tokens.
	//
	// Retries apply only before the first delivered event; once output has
	// reached the callback a failure is surfaced rather than retried, so no
	// fragment is ever duplicated.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, tools []ToolSpec, callback StreamCallback) error
}
