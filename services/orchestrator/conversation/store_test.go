// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

func TestGetRecentMessages_RejectsBadLimit(t *testing.T) {
	store := NewWeaviateStore(nil, nil)

	for _, limit := range []int{0, -1, -100} {
		_, err := store.GetRecentMessages(context.Background(), "u1", "s1", limit)
		assert.True(t, datatypes.IsValidation(err), "limit %d must fail validation", limit)
	}
}

func TestSaveMessage_RejectsBadInput(t *testing.T) {
	store := NewWeaviateStore(nil, nil)

	err := store.SaveMessage(context.Background(), "u1", datatypes.ChatMessage{
		SessionID: "s1",
		Role:      "narrator",
		Content:   "hello",
	})
	assert.True(t, datatypes.IsValidation(err), "unknown role must fail validation")

	err = store.SaveMessage(context.Background(), "u1", datatypes.ChatMessage{
		Role:    datatypes.RoleUser,
		Content: "hello",
	})
	assert.True(t, datatypes.IsValidation(err), "missing session id must fail validation")
}

func TestGetOrCreateSession_RejectsEmptyOwner(t *testing.T) {
	store := NewWeaviateStore(nil, nil)
	_, err := store.GetOrCreateSession(context.Background(), "")
	assert.True(t, datatypes.IsValidation(err))
}

func TestListSessions_RejectsBadLimit(t *testing.T) {
	store := NewWeaviateStore(nil, nil)
	_, err := store.ListSessions(context.Background(), "u1", 0)
	assert.True(t, datatypes.IsValidation(err))
}

func TestBuildTranscript(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.Local)
	messages := []datatypes.ChatMessage{
		{Role: datatypes.RoleUser, Content: "어제 어땠어?", CreatedAt: base},
		{Role: datatypes.RoleAssistant, Content: "어제는 편안한 하루였어요.", CreatedAt: base.Add(time.Minute)},
	}

	got := BuildTranscript("", messages)
	assert.Equal(t, "사용자: 어제 어땠어?\n하루: 어제는 편안한 하루였어요.\n", got)
}

func TestBuildTranscript_CarriesPreviousSummary(t *testing.T) {
	got := BuildTranscript("지난 대화 요약.", []datatypes.ChatMessage{
		{Role: datatypes.RoleUser, Content: "안녕"},
	})
	assert.Equal(t, "이전 요약: 지난 대화 요약.\n\n사용자: 안녕\n", got)
}

func TestSummarizationConstants(t *testing.T) {
	// The keep window must fit under the threshold, otherwise compaction
	// would have nothing to fold in.
	assert.Less(t, KeepRecentMessages, SummarizationThreshold)
}
