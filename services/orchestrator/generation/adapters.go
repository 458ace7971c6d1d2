// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/haru-ai/haru/services/llm"
)

// =============================================================================
// Summarizer Adapter
// =============================================================================

// summaryPrompt instructs the compaction model call. The synopsis feeds
// back into future system prompts, so it must stay short.
const summaryPrompt = `다음 대화를 3~5문장으로 요약하세요. 사용자가 언급한 사실, 감정, 그리고 진행 중인 주제를 유지하세요. 요약문만 출력하세요.

대화:
%s`

// LLMSummarizer adapts llm.LLMClient.Generate to the conversation package's
// Summarizer interface.
type LLMSummarizer struct {
	client llm.LLMClient
}

// NewLLMSummarizer creates the adapter.
func NewLLMSummarizer(client llm.LLMClient) *LLMSummarizer {
	return &LLMSummarizer{client: client}
}

// Summarize produces the compaction synopsis.
func (s *LLMSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	temp := float32(0.3)
	maxTokens := 300
	out, err := s.client.Generate(ctx, fmt.Sprintf(summaryPrompt, transcript), llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// =============================================================================
// Rerank Scorer Adapter
// =============================================================================

// scoringPrompt asks for strict JSON so the response parses without
// heuristics.
const scoringPrompt = `질문과 일기 요약 목록이 주어집니다. 각 일기가 질문과 얼마나 관련 있는지 1~10점으로 평가하세요.
JSON만 출력하세요. 형식: {"scores": {"0": 점수, "1": 점수, ...}}

질문: %s

일기:
%s`

// LLMScorer adapts llm.LLMClient.Generate to the rerank package's Scorer
// interface.
type LLMScorer struct {
	client llm.LLMClient
}

// NewLLMScorer creates the adapter.
func NewLLMScorer(client llm.LLMClient) *LLMScorer {
	return &LLMScorer{client: client}
}

// ScoreRelevance rates each summary's relevance to the query.
//
// # Description
//
// Indices missing from the model's JSON are simply absent from the result;
// the reranker falls back to original similarity for those. A response that
// does not parse as JSON is an error, which the reranker treats as a
// wholesale fallback.
func (s *LLMScorer) ScoreRelevance(ctx context.Context, query string, summaries []string) (map[int]int, error) {
	var listing strings.Builder
	for i, summary := range summaries {
		fmt.Fprintf(&listing, "%d. %s\n", i, summary)
	}

	temp := float32(0.0)
	maxTokens := 200
	out, err := s.client.Generate(ctx, fmt.Sprintf(scoringPrompt, query, listing.String()), llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, err
	}

	return parseScores(out, len(summaries))
}

// parseScores extracts the {"scores": {...}} object, tolerating fenced code
// blocks around the JSON.
func parseScores(raw string, count int) (map[int]int, error) {
	trimmed := strings.TrimSpace(raw)
	if start := strings.Index(trimmed, "{"); start > 0 {
		trimmed = trimmed[start:]
	}
	if end := strings.LastIndex(trimmed, "}"); end >= 0 {
		trimmed = trimmed[:end+1]
	}

	var payload struct {
		Scores map[string]int `json:"scores"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("unparseable relevance scores: %w", err)
	}

	scores := make(map[int]int, len(payload.Scores))
	for key, score := range payload.Scores {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= count {
			continue
		}
		scores[idx] = score
	}
	return scores, nil
}
