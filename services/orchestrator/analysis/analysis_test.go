// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

func diary(id int, color datatypes.MoodColor, content string) datatypes.DiaryRecord {
	return datatypes.DiaryRecord{DiaryID: id, UserID: "u1", Content: content, Color: color}
}

func TestMoodDistribution(t *testing.T) {
	tests := []struct {
		name    string
		diaries []datatypes.DiaryRecord
		want    []MoodCount
	}{
		{
			name:    "empty input yields empty slice",
			diaries: nil,
			want:    []MoodCount{},
		},
		{
			name: "single color is 100 percent",
			diaries: []datatypes.DiaryRecord{
				diary(1, datatypes.MoodRed, "a"),
				diary(2, datatypes.MoodRed, "b"),
			},
			want: []MoodCount{
				{Color: datatypes.MoodRed, Label: "빨간색", Count: 2, Percentage: 100},
			},
		},
		{
			name: "sorted by count descending",
			diaries: []datatypes.DiaryRecord{
				diary(1, datatypes.MoodGreen, "a"),
				diary(2, datatypes.MoodGreen, "b"),
				diary(3, datatypes.MoodGreen, "c"),
				diary(4, datatypes.MoodRed, "d"),
			},
			want: []MoodCount{
				{Color: datatypes.MoodGreen, Label: "초록색", Count: 3, Percentage: 75},
				{Color: datatypes.MoodRed, Label: "빨간색", Count: 1, Percentage: 25},
			},
		},
		{
			name: "tie broken by fixed color order",
			diaries: []datatypes.DiaryRecord{
				diary(1, datatypes.MoodBlue, "a"),
				diary(2, datatypes.MoodYellow, "b"),
			},
			want: []MoodCount{
				{Color: datatypes.MoodYellow, Label: "노란색", Count: 1, Percentage: 50},
				{Color: datatypes.MoodBlue, Label: "파란색", Count: 1, Percentage: 50},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MoodDistribution(tt.diaries))
		})
	}
}

func TestMoodDistribution_IndependentRounding(t *testing.T) {
	// 3-way split: each rounds to 33, summing to 99. Accepted.
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "a"),
		diary(2, datatypes.MoodBlue, "b"),
		diary(3, datatypes.MoodGreen, "c"),
	}
	got := MoodDistribution(diaries)
	require.Len(t, got, 3)
	sum := 0
	for _, mc := range got {
		assert.Equal(t, 33, mc.Percentage)
		sum += mc.Percentage
	}
	assert.Equal(t, 99, sum)
}

func TestRecurringThemes(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "회사에서 스트레스 받았다 스트레스 스트레스"),
		diary(2, datatypes.MoodRed, "오늘도 회사에서 스트레스"),
		diary(3, datatypes.MoodGreen, "친구와 카페에서 수다"),
	}

	themes := RecurringThemes(diaries, 2)
	require.Len(t, themes, 2)

	// 스트레스 appears in two diaries; repeated occurrences inside diary 1
	// must not inflate the count past 2.
	assert.Equal(t, Theme{Word: "스트레스", Frequency: 2}, themes[0])
	assert.Equal(t, Theme{Word: "회사에서", Frequency: 2}, themes[1])
}

func TestRecurringThemes_StopWordsAndNumerics(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodBlue, "오늘 정말 너무 2024 힘든 하루"),
		diary(2, datatypes.MoodBlue, "힘든 하루 123"),
	}

	themes := RecurringThemes(diaries, 2)
	words := make([]string, 0, len(themes))
	for _, th := range themes {
		words = append(words, th.Word)
	}
	assert.ElementsMatch(t, []string{"힘든", "하루"}, words)
}

func TestRecurringThemes_TieBreakLexicographic(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodGreen, "banana apple"),
		diary(2, datatypes.MoodGreen, "apple banana"),
	}
	themes := RecurringThemes(diaries, 2)
	require.Len(t, themes, 2)
	assert.Equal(t, "apple", themes[0].Word)
	assert.Equal(t, "banana", themes[1].Word)
}

func TestEmotionTriggers_ColorPurity(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "회사에서 스트레스"),
		diary(2, datatypes.MoodGreen, "친구와 카페"),
	}

	groups := EmotionTriggers(diaries)
	require.Len(t, groups, 2)

	byColor := make(map[datatypes.MoodColor][]int)
	for _, d := range diaries {
		byColor[d.Color] = append(byColor[d.Color], d.DiaryID)
	}
	for _, g := range groups {
		assert.ElementsMatch(t, byColor[g.Color], g.DiaryIDs,
			"group %s must only reference its own color's diaries", g.Color)
		for _, ex := range g.Examples {
			assert.Contains(t, byColor[g.Color], ex.DiaryID)
		}
	}
}

func TestEmotionTriggers_TopThemesAndExampleCaps(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "alpha bravo charlie delta echo foxtrot golf"),
		diary(2, datatypes.MoodRed, "alpha bravo"),
		diary(3, datatypes.MoodRed, "alpha"),
		diary(4, datatypes.MoodRed, "bravo"),
		diary(5, datatypes.MoodRed, "charlie"),
	}

	groups := EmotionTriggers(diaries)
	require.Len(t, groups, 1)
	g := groups[0]

	assert.Equal(t, datatypes.MoodRed, g.Color)
	assert.LessOrEqual(t, len(g.Themes), 5)
	assert.LessOrEqual(t, len(g.Examples), 3)
	assert.Len(t, g.DiaryIDs, 5)

	// minFrequency 1 inside the partition: single-diary words are themes too.
	assert.Equal(t, "alpha", g.Themes[0].Word)
	assert.Equal(t, 3, g.Themes[0].Frequency)
}

func TestEmotionTriggers_SkipsAbsentColors(t *testing.T) {
	groups := EmotionTriggers([]datatypes.DiaryRecord{
		diary(1, datatypes.MoodYellow, "신나는 하루"),
	})
	require.Len(t, groups, 1)
	assert.Equal(t, datatypes.MoodYellow, groups[0].Color)
	assert.Equal(t, "노란색", groups[0].Label)
}

func TestExtractEntities(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "회사에서 상사 때문에 스트레스"),
		diary(2, datatypes.MoodGreen, "친구랑 카페에서 수다 떨었다"),
		diary(3, datatypes.MoodYellow, "친구와 공원 산책"),
	}

	entities := ExtractEntities(diaries)
	byValue := make(map[string]Entity)
	for _, e := range entities {
		byValue[e.Value] = e
	}

	// 친구 appears in two distinct diaries with two distinct colors.
	friend, ok := byValue["친구"]
	require.True(t, ok)
	assert.Equal(t, EntityPerson, friend.Type)
	assert.Equal(t, 2, friend.Frequency)
	assert.Equal(t, []int{2, 3}, friend.DiaryIDs)
	assert.ElementsMatch(t,
		[]datatypes.MoodColor{datatypes.MoodYellow, datatypes.MoodGreen},
		friend.MoodColors)

	cafe, ok := byValue["카페"]
	require.True(t, ok)
	assert.Equal(t, EntityPlace, cafe.Type)
	assert.Equal(t, 1, cafe.Frequency)
	assert.Equal(t, []int{2}, cafe.DiaryIDs)

	walk, ok := byValue["산책"]
	require.True(t, ok)
	assert.Equal(t, EntityActivity, walk.Type)
}

func TestExtractEntities_FrequencyCountsDistinctDiaries(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodGreen, "카페 카페 카페"),
	}
	entities := ExtractEntities(diaries)
	require.Len(t, entities, 1)
	assert.Equal(t, 1, entities[0].Frequency)
	assert.Equal(t, []int{1}, entities[0].DiaryIDs)
}

func TestExtractEntities_SortedByFrequency(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodGreen, "친구 카페"),
		diary(2, datatypes.MoodGreen, "친구"),
	}
	entities := ExtractEntities(diaries)
	require.Len(t, entities, 2)
	assert.Equal(t, "친구", entities[0].Value)
	assert.Equal(t, "카페", entities[1].Value)
}

func TestPersonalizedSuggestions_EntityGrounded(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodGreen, "친구랑 카페에서 좋은 시간"),
		diary(2, datatypes.MoodYellow, "공원 산책 최고"),
		diary(3, datatypes.MoodRed, "회사 스트레스"),
	}

	got := PersonalizedSuggestions(diaries, nil, 3)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)

	seen := make(map[string]bool)
	for _, s := range got {
		assert.Contains(t, s.Text, s.Value,
			"suggestion text must literally contain its entity value")
		assert.False(t, seen[s.Value], "entity %s suggested twice", s.Value)
		seen[s.Value] = true

		grounded := false
		for _, d := range diaries {
			if strings.Contains(strings.ToLower(d.Title+" "+d.Content), s.Value) {
				grounded = true
				break
			}
		}
		assert.True(t, grounded, "entity %s not found in any source diary", s.Value)
	}
}

func TestPersonalizedSuggestions_NegativeMoodPrefersPositiveAssociations(t *testing.T) {
	// 회사 dominates by frequency but is only ever red; 산책 is green.
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "회사 야근"),
		diary(2, datatypes.MoodRed, "회사 회의"),
		diary(3, datatypes.MoodRed, "회사 스트레스"),
		diary(4, datatypes.MoodGreen, "산책 하고 기분 전환"),
	}

	mood := datatypes.MoodRed
	got := PersonalizedSuggestions(diaries, &mood, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "산책", got[0].Value)
	assert.Equal(t, EntityActivity, got[0].Entity)
}

func TestPersonalizedSuggestions_FrequencyOrderWithoutMood(t *testing.T) {
	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodRed, "회사 야근"),
		diary(2, datatypes.MoodRed, "회사 회의"),
		diary(3, datatypes.MoodGreen, "산책"),
	}

	got := PersonalizedSuggestions(diaries, nil, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "회사", got[0].Value)
}

func TestPersonalizedSuggestions_EmptyAndDefaults(t *testing.T) {
	assert.Empty(t, PersonalizedSuggestions(nil, nil, 3))

	diaries := []datatypes.DiaryRecord{
		diary(1, datatypes.MoodGreen, "친구 카페 산책 공원 운동"),
	}
	got := PersonalizedSuggestions(diaries, nil, 0)
	assert.LessOrEqual(t, len(got), DefaultMaxSuggestions)
}
