// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generation orchestrates prompt assembly, token streaming, and
// tool-calling round-trips against the chat-completion backend.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/haru-ai/haru/services/llm"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("haru.orchestrator.generation")

// SystemPersona is the agent's fixed persona prompt. The agent speaks
// Korean, grounds every claim in the supplied diary context, and never
// invents diary content.
const SystemPersona = `당신은 '하루'입니다. 사용자의 일기를 함께 돌아보는 따뜻한 대화 상대입니다.

규칙:
- 항상 한국어로, 친근한 존댓말로 대답합니다.
- 제공된 일기 내용에 근거해서만 과거를 이야기합니다. 일기에 없는 내용을 지어내지 않습니다.
- 일기가 제공되지 않았으면 기록이 없다고 솔직하게 말합니다.
- 감정을 평가하거나 훈계하지 않습니다. 공감하고, 물어보고, 조심스럽게 제안합니다.
- 답변은 간결하게, 보통 2~4문장으로 합니다.`

// TokenCallback receives each generated text fragment exactly once, in
// order.
type TokenCallback func(token string) error

// Request is one generation call.
//
// # Fields
//
//   - Context: The assembled diary/mood/history blob; empty means the model
//     answers without retrieved grounding.
//   - History: Prior turns of the session, oldest first.
//   - Summary: Long-history synopsis from compaction, may be empty.
//   - ToolsEnabled: Advertise the introspection tools to the model.
type Request struct {
	OwnerID      string
	UserMessage  string
	Context      string
	Summary      string
	History      []datatypes.ChatMessage
	ToolsEnabled bool
}

// Engine runs the two-pass streamed generation.
//
// # Thread Safety
//
// Safe for concurrent use; per-call state lives on the stack.
type Engine struct {
	client llm.LLMClient
	tools  *ToolRegistry
	params llm.GenerationParams
}

// NewEngine wires the engine. tools may be nil to disable tool calling
// regardless of per-request flags.
func NewEngine(client llm.LLMClient, tools *ToolRegistry) *Engine {
	temp := float32(0.7)
	maxTokens := 1024
	return &Engine{
		client: client,
		tools:  tools,
		params: llm.GenerationParams{
			Temperature: &temp,
			MaxTokens:   &maxTokens,
		},
	}
}

// Generate streams one response, handling at most one tool round-trip.
//
// # Description
//
// First pass: stream the completion with tools advertised (when enabled).
// Tokens go to onToken as they arrive and accumulate into the returned
// text. If the model requests tool calls instead, each is executed exactly
// once against the owner's data, results are appended as tool-role turns,
// and a second streaming pass (without tools) produces the final answer.
// Raw tool output never reaches the end user.
//
// # Outputs
//
//   - string: The complete response text, exactly the concatenation of
//     delivered tokens.
//   - error: A classified provider error (llm.ErrRateLimited,
//     llm.ErrAuthentication, llm.ErrConnectivity, llm.ErrGeneration) after
//     the client's retry budget is exhausted, or the callback's own error
//     on abort. The caller owns the user-facing fallback message.
func (e *Engine) Generate(ctx context.Context, req Request, onToken TokenCallback) (string, error) {
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	messages := e.assembleMessages(req)

	var tools []llm.ToolSpec
	if req.ToolsEnabled && e.tools != nil {
		tools = e.tools.Specs()
	}

	text, toolCalls, err := e.streamPass(ctx, messages, tools, onToken)
	if err != nil {
		return text, err
	}
	if len(toolCalls) == 0 {
		return text, nil
	}

	slog.Info("Model requested tools",
		"ownerID", req.OwnerID, "count", len(toolCalls))

	// Echo the model's tool-call turn, then one tool-role turn per call.
	messages = append(messages, llm.Message{
		Role:      "assistant",
		ToolCalls: toolCalls,
	})
	tc := ToolContext{OwnerID: req.OwnerID}
	for _, call := range toolCalls {
		result := e.tools.Execute(ctx, tc, call)
		messages = append(messages, llm.Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    result,
		})
	}

	// Second pass without tools: the model must answer in natural language
	// now.
	finalText, moreCalls, err := e.streamPass(ctx, messages, nil, onToken)
	if err != nil {
		return text + finalText, err
	}
	if len(moreCalls) > 0 {
		// Should not happen with no tools advertised; treat as generation
		// failure rather than looping.
		return text + finalText, fmt.Errorf("%w: model requested tools on the final pass", llm.ErrGeneration)
	}
	return text + finalText, nil
}

// streamPass runs one ChatStream call, forwarding tokens and collecting any
// tool calls.
func (e *Engine) streamPass(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, onToken TokenCallback) (string, []llm.ToolCall, error) {
	var accumulated strings.Builder
	var toolCalls []llm.ToolCall

	err := e.client.ChatStream(ctx, messages, e.params, tools, func(event llm.StreamEvent) error {
		switch event.Type {
		case llm.StreamEventToken:
			accumulated.WriteString(event.Content)
			if onToken != nil {
				return onToken(event.Content)
			}
		case llm.StreamEventToolCalls:
			toolCalls = event.ToolCalls
		case llm.StreamEventError:
			// Surfaced through ChatStream's return value as well; nothing
			// to do here.
		}
		return nil
	})
	return accumulated.String(), toolCalls, err
}

// assembleMessages builds the provider message list: persona, summary,
// retrieved context, prior turns, then the user message.
func (e *Engine) assembleMessages(req Request) []llm.Message {
	system := SystemPersona
	if req.Summary != "" {
		system += "\n\n지금까지의 대화 요약:\n" + req.Summary
	}
	if req.Context != "" {
		system += "\n\n" + req.Context
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})

	for _, turn := range req.History {
		role := string(turn.Role)
		if !turn.Role.Valid() || turn.Role == datatypes.RoleSystem {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	messages = append(messages, llm.Message{Role: "user", Content: req.UserMessage})
	return messages
}
