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
	"log/slog"

	"github.com/haru-ai/haru/services/llm"
	"github.com/haru-ai/haru/services/orchestrator/analysis"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// ToolContext scopes every tool execution to the authenticated owner. The
// owner id comes from the request's verified identity, never from model
// arguments; a model cannot talk its way into another user's diaries.
type ToolContext struct {
	OwnerID string
}

// DiaryLister supplies the owner's diaries to tools. Implemented by the
// vector store.
type DiaryLister interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]datatypes.DiaryRecord, error)
}

// toolDiaryLimit caps how many diaries a tool analyzes.
const toolDiaryLimit = 100

const (
	toolAnalyzeMood       = "analyze_mood"
	toolGetRecommendation = "get_recommendations"
	toolAnalyzeTriggers   = "analyze_triggers"
)

// ToolRegistry executes the introspection tools the model may request.
//
// Tool output goes back to the model as a tool-role turn; it is never
// surfaced raw to the end user.
type ToolRegistry struct {
	diaries DiaryLister
}

// NewToolRegistry creates the registry over the diary source.
func NewToolRegistry(diaries DiaryLister) *ToolRegistry {
	return &ToolRegistry{diaries: diaries}
}

// Specs lists the tools advertised to the model.
func (r *ToolRegistry) Specs() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        toolAnalyzeMood,
			Description: "사용자의 일기에서 감정 색깔 분포와 반복되는 주제를 분석합니다.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        toolGetRecommendation,
			Description: "사용자의 일기에 기록된 활동, 사람, 장소를 바탕으로 맞춤 제안을 생성합니다.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"current_mood": map[string]any{
						"type":        "string",
						"description": "현재 기분 색깔 (빨간색/노란색/파란색/초록색)",
					},
				},
			},
		},
		{
			Name:        toolAnalyzeTriggers,
			Description: "감정 색깔별로 어떤 상황이 그 감정을 유발했는지 분석합니다.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// Execute runs one requested tool and returns its JSON result.
//
// # Description
//
// Unknown tool names yield a JSON error payload rather than a Go error: the
// model should see the failure and recover in its final answer rather than
// aborting the whole generation.
func (r *ToolRegistry) Execute(ctx context.Context, tc ToolContext, call llm.ToolCall) string {
	diaries, err := r.diaries.ListByOwner(ctx, tc.OwnerID, toolDiaryLimit)
	if err != nil {
		slog.Warn("Tool diary fetch failed",
			"tool", call.Name, "ownerID", tc.OwnerID, "error", err)
		return toolError("일기를 불러오지 못했습니다")
	}

	switch call.Name {
	case toolAnalyzeMood:
		return marshalToolResult(map[string]any{
			"mood_distribution": analysis.MoodDistribution(diaries),
			"recurring_themes":  analysis.RecurringThemes(diaries, analysis.DefaultMinFrequency),
		})

	case toolGetRecommendation:
		var args struct {
			CurrentMood string `json:"current_mood"`
		}
		// Malformed arguments degrade to no mood bias.
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil && call.Arguments != "" {
			slog.Debug("Ignoring malformed tool arguments",
				"tool", call.Name, "error", err)
		}
		var mood *datatypes.MoodColor
		if args.CurrentMood != "" {
			if parsed, err := datatypes.ParseMoodColor(args.CurrentMood); err == nil {
				mood = &parsed
			}
		}
		return marshalToolResult(map[string]any{
			"suggestions": analysis.PersonalizedSuggestions(diaries, mood, analysis.DefaultMaxSuggestions),
		})

	case toolAnalyzeTriggers:
		return marshalToolResult(map[string]any{
			"triggers": analysis.EmotionTriggers(diaries),
		})

	default:
		slog.Warn("Model requested unknown tool", "tool", call.Name)
		return toolError(fmt.Sprintf("알 수 없는 도구: %s", call.Name))
	}
}

func marshalToolResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError("결과 직렬화에 실패했습니다")
	}
	return string(data)
}

func toolError(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
