// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sunday 2025-06-15, mid-afternoon local time.
var refNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestParseRelativeDayCounts(t *testing.T) {
	tests := []struct {
		name  string
		query string
		start time.Time
		end   time.Time
	}{
		{
			name:  "korean last 7 days",
			query: "지난 7일 동안 어땠어?",
			start: day(2025, 6, 8),
			end:   day(2025, 6, 15),
		},
		{
			name:  "korean recent 30 days",
			query: "최근 30일 기분 변화 알려줘",
			start: day(2025, 5, 16),
			end:   day(2025, 6, 15),
		},
		{
			name:  "korean day count without number defaults to a week",
			query: "지난 일주일은 어땠지",
			start: day(2025, 6, 8),
			end:   day(2025, 6, 15),
		},
		{
			name:  "english past N days",
			query: "how was I doing the past 3 days",
			start: day(2025, 6, 12),
			end:   day(2025, 6, 15),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.query, refNow)
			require.NotNil(t, r)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}
}

func TestParseNamedWindows(t *testing.T) {
	tests := []struct {
		name  string
		query string
		start time.Time
		end   time.Time
	}{
		{
			// Sunday belongs to the week that started the prior Monday,
			// so "this week" on 2025-06-15 starts 2025-06-09.
			name:  "this week on a sunday",
			query: "이번 주 어땠어?",
			start: day(2025, 6, 9),
			end:   day(2025, 6, 15),
		},
		{
			name:  "last week is the previous monday through sunday",
			query: "저번 주에 내가 뭐 했더라",
			start: day(2025, 6, 2),
			end:   day(2025, 6, 8),
		},
		{
			name:  "this month runs from the first",
			query: "이번 달 기분은?",
			start: day(2025, 6, 1),
			end:   day(2025, 6, 15),
		},
		{
			name:  "last month is the full calendar month",
			query: "지난 달 정리해줘",
			start: day(2025, 5, 1),
			end:   day(2025, 5, 31),
		},
		{
			name:  "english last week",
			query: "what did I write last week?",
			start: day(2025, 6, 2),
			end:   day(2025, 6, 8),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.query, refNow)
			require.NotNil(t, r)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}
}

func TestParseDeicticDays(t *testing.T) {
	r := Parse("어제 일기 기억나?", refNow)
	require.NotNil(t, r)
	assert.Equal(t, day(2025, 6, 14), r.Start)
	assert.Equal(t, day(2025, 6, 14), r.End)

	r = Parse("오늘 어땠는지 말해줘", refNow)
	require.NotNil(t, r)
	assert.Equal(t, day(2025, 6, 15), r.Start)
	assert.Equal(t, day(2025, 6, 15), r.End)
}

func TestParseExplicitDates(t *testing.T) {
	r := Parse("2025년 3월 1일에 뭐 썼어?", refNow)
	require.NotNil(t, r)
	assert.Equal(t, day(2025, 3, 1), r.Start)
	assert.Equal(t, day(2025, 3, 1), r.End)

	r = Parse("show me 2024-12-25", refNow)
	require.NotNil(t, r)
	assert.Equal(t, day(2024, 12, 25), r.Start)

	// Out-of-range calendar components fall through to no match.
	assert.Nil(t, Parse("2025-13-40", refNow))
}

func TestParseNoTemporalExpression(t *testing.T) {
	assert.Nil(t, Parse("요즘 스트레스가 심한 것 같아", refNow))
	assert.Nil(t, Parse("tell me about my stress", refNow))
	assert.Nil(t, Parse("", refNow))
}

func TestParseFirstMatchWins(t *testing.T) {
	// Day-count patterns are tried before deictic days.
	r := Parse("오늘까지 지난 3일 돌아봐줘", refNow)
	require.NotNil(t, r)
	assert.Equal(t, day(2025, 6, 12), r.Start)
	assert.Equal(t, day(2025, 6, 15), r.End)
}

func TestParseIsDeterministic(t *testing.T) {
	a := Parse("지난 7일", refNow)
	b := Parse("지난 7일", refNow)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a, b)
}
