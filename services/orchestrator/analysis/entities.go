// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"sort"
	"strings"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// EntityType labels which vocabulary an extracted entity came from.
type EntityType string

const (
	EntityActivity EntityType = "activity"
	EntityPerson   EntityType = "person"
	EntityPlace    EntityType = "place"
)

// entityVocabularies are the fixed keyword lists matched against diary
// content. Matching is substring-based on the lowercased content, which is
// deliberate: Korean does not space-separate particles from nouns, so token
// equality would miss 친구랑, 카페에서 and the like.
var entityVocabularies = map[EntityType][]string{
	EntityActivity: {
		"운동", "달리기", "산책", "요가", "독서", "공부", "요리", "게임",
		"영화", "음악", "그림", "여행", "쇼핑", "청소",
		"workout", "running", "walk", "yoga", "reading", "study",
		"cooking", "gaming", "movie", "music", "travel", "shopping",
	},
	EntityPerson: {
		"엄마", "아빠", "언니", "오빠", "동생", "형", "누나", "친구",
		"남자친구", "여자친구", "동료", "상사", "선생님", "가족",
		"mom", "dad", "friend", "boyfriend", "girlfriend", "coworker",
		"boss", "teacher", "family", "sister", "brother",
	},
	EntityPlace: {
		"집", "회사", "학교", "카페", "공원", "바다", "산", "도서관",
		"헬스장", "병원", "식당",
		"home", "office", "school", "cafe", "park", "beach", "library",
		"gym", "hospital", "restaurant",
	},
}

// Entity is one recognized keyword plus where and how it showed up.
type Entity struct {
	Type       EntityType            `json:"type"`
	Value      string                `json:"value"`
	Frequency  int                   `json:"frequency"`
	DiaryIDs   []int                 `json:"diary_ids"`
	MoodColors []datatypes.MoodColor `json:"mood_colors"`
}

// ExtractEntities scans diary contents for the fixed activity, person and
// place vocabularies.
//
// # Description
//
// Frequency counts distinct diaries containing the keyword, not raw
// occurrences; DiaryIDs lists those diaries ascending, and MoodColors
// aggregates their colors in the fixed color order. Entities are sorted
// frequency descending, ties broken by type then value for a stable result.
func ExtractEntities(diaries []datatypes.DiaryRecord) []Entity {
	type key struct {
		typ   EntityType
		value string
	}
	ids := make(map[key][]int)
	colors := make(map[key]map[datatypes.MoodColor]bool)

	for _, d := range diaries {
		content := strings.ToLower(d.Title + " " + d.Content)
		for typ, vocab := range entityVocabularies {
			for _, word := range vocab {
				if !strings.Contains(content, word) {
					continue
				}
				k := key{typ, word}
				ids[k] = append(ids[k], d.DiaryID)
				if colors[k] == nil {
					colors[k] = make(map[datatypes.MoodColor]bool)
				}
				colors[k][d.Color] = true
			}
		}
	}

	out := make([]Entity, 0, len(ids))
	for k, diaryIDs := range ids {
		moods := make([]datatypes.MoodColor, 0, len(colors[k]))
		for _, c := range datatypes.AllMoodColors {
			if colors[k][c] {
				moods = append(moods, c)
			}
		}
		sort.Ints(diaryIDs)
		out = append(out, Entity{
			Type:       k.typ,
			Value:      k.value,
			Frequency:  len(diaryIDs),
			DiaryIDs:   diaryIDs,
			MoodColors: moods,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}
