// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Classified Errors
// =============================================================================

// Sentinels for the four terminal generation outcomes. The orchestrator maps
// these to user-facing fallbacks; the client never silently swallows a
// partial success.
var (
	// ErrRateLimited means the provider kept returning 429 after all
	// attempts.
	ErrRateLimited = errors.New("llm provider rate limit exceeded")

	// ErrAuthentication means the credential was rejected. Never retried.
	ErrAuthentication = errors.New("llm provider authentication failed")

	// ErrConnectivity means the provider was unreachable after all attempts.
	ErrConnectivity = errors.New("llm provider unreachable")

	// ErrGeneration is the generic terminal failure.
	ErrGeneration = errors.New("llm generation failed")
)

// ClassifiedError pairs one of the sentinels with the underlying cause so
// callers can match with errors.Is while logs keep the detail.
type ClassifiedError struct {
	Kind  error
	Cause error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *ClassifiedError) Unwrap() error { return e.Kind }

// Classify wraps err in the matching sentinel.
func Classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ClassifiedError{Kind: ErrRateLimited, Cause: err}
		case apiErr.HTTPStatusCode == http.StatusUnauthorized,
			apiErr.HTTPStatusCode == http.StatusForbidden:
			return &ClassifiedError{Kind: ErrAuthentication, Cause: err}
		case apiErr.HTTPStatusCode >= 500:
			return &ClassifiedError{Kind: ErrConnectivity, Cause: err}
		default:
			return &ClassifiedError{Kind: ErrGeneration, Cause: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ClassifiedError{Kind: ErrConnectivity, Cause: err}
	}
	return &ClassifiedError{Kind: ErrGeneration, Cause: err}
}

// IsRetryable reports whether a failure is worth another attempt: rate
// limits, 5xx responses, and connection errors. Invalid credentials and
// malformed requests fail immediately without consuming attempts.
func IsRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Transport-level failures surface as url.Error; only structured API
	// errors are classifiable as terminal.
	return !errors.As(err, &apiErr)
}
