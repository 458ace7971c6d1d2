// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package embedding wraps the text-embedding provider behind a small
// interface: text in, fixed-dimension vector out. The client owns retry and
// backoff for transient provider failures; callers see either a valid
// 1536-dimension vector or a classified error.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("haru.embedding")

// =============================================================================
// Constants
// =============================================================================

const (
	// Dimensions is the fixed vector length every embed call must return.
	Dimensions = 1536

	// maxAttempts bounds retries on transient failures.
	maxAttempts = 3

	// baseRetryDelay grows linearly with the attempt number (1x, 2x, 3x).
	baseRetryDelay = 1 * time.Second

	// maxChunkChars is the per-chunk cap for long documents. Content above
	// this is split and mean-pooled so each diary keeps exactly one vector.
	maxChunkChars = 2000

	// chunkOverlap keeps adjacent chunks sharing context at the boundary.
	chunkOverlap = 200
)

// =============================================================================
// Errors
// =============================================================================

// ErrEmptyInput rejects blank or whitespace-only text before any API call.
var ErrEmptyInput = errors.New("embedding input is empty")

// ErrNotConfigured means no provider credential was available at
// construction time.
var ErrNotConfigured = errors.New("embedding provider is not configured")

// InvalidDimensionError reports a provider response whose vector length does
// not match Dimensions. Always a hard failure.
type InvalidDimensionError struct {
	Got int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, want %d", e.Got, Dimensions)
}

// ProviderError wraps the last underlying error after retries are exhausted.
type ProviderError struct {
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// =============================================================================
// Interface Definition
// =============================================================================

// Client converts text into fixed-dimension vectors.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the orchestrator embeds
// queries and documents from multiple requests at once.
type Client interface {
	// Embed returns the vector for a single text.
	//
	// # Outputs
	//
	//   - []float32: Exactly Dimensions elements on success.
	//   - error: ErrEmptyInput, *InvalidDimensionError, or *ProviderError.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedDocument embeds arbitrarily long content. Content above the chunk
	// cap is split and the chunk vectors are mean-pooled, preserving the
	// one-vector-per-diary contract.
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Compile-time interface implementation check.
var _ Client = (*OpenAIClient)(nil)

// =============================================================================
// OpenAI Implementation
// =============================================================================

// OpenAIClient implements Client against the OpenAI embeddings API using
// text-embedding-3-small.
type OpenAIClient struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	splitter textsplitter.TextSplitter
}

// NewOpenAIClient constructs the client from environment configuration.
//
// # Description
//
// Reads OPENAI_API_KEY (falling back to the container secret path the
// deployment mounts) and OPENAI_EMBEDDING_MODEL. Credentials are validated
// here so every later Embed call can assume a configured client; the
// orchestrator constructs one client at startup and passes it by reference.
//
// # Outputs
//
//   - *OpenAIClient: Ready client.
//   - error: ErrNotConfigured when no credential is found.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		keyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, ErrNotConfigured
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		slog.Info("Read the OpenAI API key from mounted secret")
	}

	model := openai.EmbeddingModel(os.Getenv("OPENAI_EMBEDDING_MODEL"))
	if model == "" {
		model = openai.SmallEmbedding3
		slog.Warn("OPENAI_EMBEDDING_MODEL not set, defaulting to text-embedding-3-small")
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxChunkChars),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}, nil
}

// Embed implements Client.
//
// # Description
//
// Retries up to maxAttempts on rate limits, connection failures, and 5xx
// responses with a linearly increasing delay (attempt x base). Other 4xx
// responses fail immediately. The returned vector length is validated
// against Dimensions; a mismatch is a hard InvalidDimensionError, never
// retried (the provider is misconfigured, not flaky).
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Embed")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, "empty input")
		return nil, ErrEmptyInput
	}
	span.SetAttributes(attribute.Int("embedding.input_chars", len(text)))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * baseRetryDelay
			slog.Debug("Retrying embedding request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.model,
		})
		if err != nil {
			if !isRetryable(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "terminal provider error")
				return nil, err
			}
			lastErr = err
			slog.Warn("Transient embedding failure", "attempt", attempt, "error", err)
			continue
		}

		if len(resp.Data) == 0 {
			lastErr = fmt.Errorf("provider returned no embeddings")
			continue
		}

		vec := resp.Data[0].Embedding
		if len(vec) != Dimensions {
			err := &InvalidDimensionError{Got: len(vec)}
			span.RecordError(err)
			span.SetStatus(codes.Error, "dimension mismatch")
			return nil, err
		}
		return vec, nil
	}

	err := &ProviderError{Attempts: maxAttempts, Err: lastErr}
	span.RecordError(err)
	span.SetStatus(codes.Error, "retries exhausted")
	return nil, err
}

// EmbedDocument implements Client.
func (c *OpenAIClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.EmbedDocument")
	defer span.End()

	if len(text) <= maxChunkChars {
		return c.Embed(ctx, text)
	}

	chunks, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split document: %w", err)
	}
	span.SetAttributes(attribute.Int("embedding.chunks", len(chunks)))

	pooled := make([]float32, Dimensions)
	embedded := 0
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		vec, err := c.Embed(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for i, v := range vec {
			pooled[i] += v
		}
		embedded++
	}
	if embedded == 0 {
		return nil, ErrEmptyInput
	}

	n := float32(embedded)
	for i := range pooled {
		pooled[i] /= n
	}
	return pooled, nil
}

// isRetryable classifies provider failures. Rate limits, 5xx, and network
// errors are transient; everything else fails immediately.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		return apiErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Connection-level failures from the transport arrive as url.Error
	// wrapping syscall errors; treat any non-API error as transient.
	return !errors.As(err, &apiErr)
}
