// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"fmt"
	"sort"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// DefaultMaxSuggestions caps how many suggestions one call produces.
const DefaultMaxSuggestions = 3

// Suggestion is one diary-grounded recommendation. Text always contains the
// entity value it is based on.
type Suggestion struct {
	Entity EntityType `json:"entity_type"`
	Value  string     `json:"value"`
	Text   string     `json:"text"`
}

// suggestionTemplates maps entity type × association valence to a fill-in
// template. The %s is always the entity value, which keeps the
// entity-containment invariant trivially true.
var suggestionTemplates = map[EntityType]map[bool]string{
	EntityActivity: {
		true:  "%s 할 때 기분이 좋았던 기록이 있어요. 오늘도 한번 해보는 건 어때요?",
		false: "%s 이야기가 자주 나오네요. 부담이 된다면 잠시 쉬어가도 괜찮아요.",
	},
	EntityPerson: {
		true:  "%s 와(과) 함께한 날들이 긍정적이었어요. 연락해보는 건 어때요?",
		false: "%s 와(과)의 일로 마음이 무거웠던 것 같아요. 거리를 두고 정리할 시간을 가져봐요.",
	},
	EntityPlace: {
		true:  "%s 에서 좋은 시간을 보냈던 기록이 있네요. 다시 가보는 건 어때요?",
		false: "%s 에서의 기억이 힘들었던 것 같아요. 새로운 장소를 찾아보는 것도 방법이에요.",
	},
}

// PersonalizedSuggestions turns extracted entities into at most max concrete
// recommendations.
//
// # Description
//
// Entities are ranked by frequency, except under a negative current mood:
// then entities with more positive-mood associations come first, so the
// suggestions steer toward what has historically helped. Each distinct
// entity produces at most one suggestion, filled from a template chosen by
// entity type and the dominant valence of that entity's mood associations.
// A nil currentMood means no mood bias. max < 1 falls back to
// DefaultMaxSuggestions.
func PersonalizedSuggestions(diaries []datatypes.DiaryRecord, currentMood *datatypes.MoodColor, max int) []Suggestion {
	if max < 1 {
		max = DefaultMaxSuggestions
	}
	entities := ExtractEntities(diaries)
	if len(entities) == 0 {
		return []Suggestion{}
	}

	negativeMood := currentMood != nil && currentMood.IsNegative()
	if negativeMood {
		sort.SliceStable(entities, func(i, j int) bool {
			pi, pj := positiveAssociations(entities[i]), positiveAssociations(entities[j])
			if pi != pj {
				return pi > pj
			}
			return entities[i].Frequency > entities[j].Frequency
		})
	}

	out := make([]Suggestion, 0, max)
	seen := make(map[string]bool)
	for _, e := range entities {
		if len(out) >= max {
			break
		}
		if seen[e.Value] {
			continue
		}
		seen[e.Value] = true

		templates, ok := suggestionTemplates[e.Type]
		if !ok {
			continue
		}
		out = append(out, Suggestion{
			Entity: e.Type,
			Value:  e.Value,
			Text:   fmt.Sprintf(templates[dominantValencePositive(e)], e.Value),
		})
	}
	return out
}

// positiveAssociations counts how many of the entity's associated mood
// colors are positive.
func positiveAssociations(e Entity) int {
	n := 0
	for _, c := range e.MoodColors {
		if c.IsPositive() {
			n++
		}
	}
	return n
}

// dominantValencePositive reports whether the entity's mood associations
// lean positive. Ties count as positive so suggestions default to the
// encouraging template.
func dominantValencePositive(e Entity) bool {
	pos, neg := 0, 0
	for _, c := range e.MoodColors {
		if c.IsPositive() {
			pos++
		} else if c.IsNegative() {
			neg++
		}
	}
	return pos >= neg
}
