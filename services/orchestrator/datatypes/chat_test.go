// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamRequestValidate(t *testing.T) {
	valid := ChatStreamRequest{Message: "오늘 기분이 어땠는지 말해줘"}
	assert.NoError(t, valid.Validate())

	withSession := ChatStreamRequest{
		Message:   "안녕",
		SessionID: uuid.New().String(),
	}
	assert.NoError(t, withSession.Validate())
}

func TestChatStreamRequestRejectsEmptyMessage(t *testing.T) {
	for _, msg := range []string{"", "   ", "\n\t "} {
		r := ChatStreamRequest{Message: msg}
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyMessage))
	}
}

func TestChatStreamRequestRejectsOversizedMessage(t *testing.T) {
	r := ChatStreamRequest{Message: strings.Repeat("a", MaxMessageContentBytes+1)}
	assert.Error(t, r.Validate())

	// Exactly at the cap is fine.
	r = ChatStreamRequest{Message: strings.Repeat("a", MaxMessageContentBytes)}
	assert.NoError(t, r.Validate())
}

func TestChatStreamRequestRejectsMalformedSessionID(t *testing.T) {
	r := ChatStreamRequest{Message: "hi", SessionID: "not-a-uuid"}
	assert.Error(t, r.Validate())
}

func TestChatStreamRequestEnsureDefaults(t *testing.T) {
	r := ChatStreamRequest{Message: "hi"}
	r.EnsureDefaults()
	assert.NotEmpty(t, r.RequestID)
	_, err := uuid.Parse(r.RequestID)
	assert.NoError(t, err)
	assert.Positive(t, r.Timestamp)

	// Client-supplied values survive.
	fixed := ChatStreamRequest{Message: "hi", RequestID: "keep-me", Timestamp: 42}
	fixed.EnsureDefaults()
	assert.Equal(t, "keep-me", fixed.RequestID)
	assert.Equal(t, int64(42), fixed.Timestamp)
}

func TestDiaryEmbedRequestValidate(t *testing.T) {
	valid := DiaryEmbedRequest{
		UserID:  "user-1",
		Title:   "좋은 하루",
		Content: "친구들과 공원에서 놀았다",
		Color:   "yellow",
		Date:    1750000000000,
	}
	assert.NoError(t, valid.Validate())

	// Korean color labels also pass.
	valid.Color = "노란색"
	assert.NoError(t, valid.Validate())

	missing := DiaryEmbedRequest{UserID: "user-1", Color: "red", Date: 1}
	assert.Error(t, missing.Validate())

	badColor := valid
	badColor.Color = "magenta"
	assert.Error(t, badColor.Validate())
}
