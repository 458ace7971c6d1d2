// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("haru.llm.openai")

const (
	// maxAttempts bounds retries for both Generate and the pre-stream phase
	// of ChatStream.
	maxAttempts = 3

	// retryDelay is the fixed pause between attempts.
	retryDelay = 2 * time.Second
)

// OpenAIClient implements LLMClient against the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs the client from environment configuration.
//
// Reads OPENAI_API_KEY (with the mounted-secret fallback) and OPENAI_MODEL.
// Credentials are validated once here; the orchestrator constructs a single
// client at startup and injects it everywhere it is needed.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		keyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		slog.Info("Read the OpenAI API key from mounted secret")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Generate implements LLMClient.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyParams(&req, params)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if !IsRetryable(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "terminal provider error")
				return "", Classify(err)
			}
			lastErr = err
			slog.Warn("Transient generation failure", "attempt", attempt, "error", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("provider returned no choices")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	err := Classify(lastErr)
	span.RecordError(err)
	span.SetStatus(codes.Error, "retries exhausted")
	return "", err
}

// ChatStream implements LLMClient.
//
// # Description
//
// Opens a streaming completion and forwards each delta to the callback in
// arrival order. Tool-call argument fragments are accumulated per call index
// until the stream ends, then surfaced as one StreamEventToolCalls event.
// Partial tool calls are never exposed.
//
// Retries (fixed delay, bounded attempts) apply only while no event has been
// delivered yet. After the first delivered token a failure is surfaced
// as-is: retrying would duplicate fragments already seen by the caller.
func (o *OpenAIClient) ChatStream(
	ctx context.Context,
	messages []Message,
	params GenerationParams,
	tools []ToolSpec,
	callback StreamCallback,
) error {
	ctx, span := tracer.Start(ctx, "OpenAIClient.ChatStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.tools", len(tools)),
	)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	applyParams(&req, params)
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		delivered, err := o.streamOnce(ctx, req, callback)
		if err == nil {
			return nil
		}
		if delivered {
			// Output already reached the caller; surface, never retry.
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream failed after first token")
			return Classify(err)
		}
		if !IsRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "terminal provider error")
			return Classify(err)
		}
		lastErr = err
		slog.Warn("Transient stream failure before first token", "attempt", attempt, "error", err)
	}

	err := Classify(lastErr)
	span.RecordError(err)
	span.SetStatus(codes.Error, "retries exhausted")
	return err
}

// streamOnce runs a single streaming exchange. Returns whether any event was
// delivered to the callback, which gates retry eligibility in the caller.
func (o *OpenAIClient) streamOnce(
	ctx context.Context,
	req openai.ChatCompletionRequest,
	callback StreamCallback,
) (delivered bool, err error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	// Tool-call fragments accumulate here, keyed by the provider's call
	// index. The id and name arrive on the first fragment; arguments build
	// up across fragments.
	pending := make(map[int]*ToolCall)

	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return delivered, recvErr
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			delivered = true
			if cbErr := callback(StreamEvent{Type: StreamEventToken, Content: delta.Content}); cbErr != nil {
				return delivered, cbErr
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &ToolCall{}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
	}

	if len(pending) > 0 {
		indexes := make([]int, 0, len(pending))
		for idx := range pending {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)

		calls := make([]ToolCall, 0, len(pending))
		for _, idx := range indexes {
			calls = append(calls, *pending[idx])
		}
		delivered = true
		if cbErr := callback(StreamEvent{Type: StreamEventToolCalls, ToolCalls: calls}); cbErr != nil {
			return delivered, cbErr
		}
	}

	return delivered, callback(StreamEvent{Type: StreamEventDone})
}

// =============================================================================
// Conversions
// =============================================================================

func applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			slog.Error("Failed to marshal tool parameters, skipping tool", "tool", t.Name, "error", err)
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out
}
