// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal round-trip required to convert
// Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed struct. The target type T must have json tags matching the
// response shape.
//
// GraphQL-level errors travel inside the response body rather than the
// transport error, so they are surfaced here.
//
// # Example
//
//	type diaryResponse struct {
//	    Get struct {
//	        DiaryEmbedding []DiaryEmbeddingResult `json:"DiaryEmbedding"`
//	    } `json:"Get"`
//	}
//
//	resp, err := client.GraphQL().Get().WithClassName("DiaryEmbedding").Do(ctx)
//	parsed, err := ParseGraphQLResponse[diaryResponse](resp)
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// =============================================================================
// Common Result Shapes
// =============================================================================

// Additional carries the Weaviate-internal fields requested via _additional.
type Additional struct {
	ID        string  `json:"id"`
	Certainty float64 `json:"certainty"`
}

// DiaryEmbeddingResult is one object from a DiaryEmbedding query.
type DiaryEmbeddingResult struct {
	DiaryID    int        `json:"diary_id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	MoodColor  string     `json:"mood_color"`
	DiaryDate  float64    `json:"diary_date"`
	Additional Additional `json:"_additional"`
}

// ResponseCacheResult is one object from a ResponseCache query.
type ResponseCacheResult struct {
	UserID     string     `json:"user_id"`
	Query      string     `json:"query"`
	Response   string     `json:"response"`
	DiaryIDs   []int      `json:"diary_ids"`
	CreatedAt  float64    `json:"created_at"`
	Additional Additional `json:"_additional"`
}

// ChatSessionResult is one object from a ChatSession query.
type ChatSessionResult struct {
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  float64    `json:"created_at"`
	UpdatedAt  float64    `json:"updated_at"`
	Additional Additional `json:"_additional"`
}

// ChatMessageResult is one object from a ChatMessage query.
type ChatMessageResult struct {
	MessageID       string     `json:"message_id"`
	SessionID       string     `json:"session_id"`
	Role            string     `json:"role"`
	Content         string     `json:"content"`
	RelatedDiaryIDs []int      `json:"related_diary_ids"`
	CreatedAt       float64    `json:"created_at"`
	Additional      Additional `json:"_additional"`
}
