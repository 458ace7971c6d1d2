// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

const (
	// triggerTopThemes caps themes per color group.
	triggerTopThemes = 5

	// triggerMaxExamples caps excerpts per color group.
	triggerMaxExamples = 3

	// excerptMaxRunes truncates long diary content in excerpts.
	excerptMaxRunes = 80
)

// TriggerExample is one excerpt illustrating a color group's triggers.
type TriggerExample struct {
	DiaryID int    `json:"diary_id"`
	Excerpt string `json:"excerpt"`
}

// TriggerGroup collects the recurring themes and example excerpts for one
// mood color. Every diary id and excerpt in the group belongs to a diary of
// exactly that color; cross-color leakage is a correctness bug.
type TriggerGroup struct {
	Color    datatypes.MoodColor `json:"color"`
	Label    string              `json:"label"`
	DiaryIDs []int               `json:"diary_ids"`
	Themes   []Theme             `json:"themes"`
	Examples []TriggerExample    `json:"examples"`
}

// EmotionTriggers partitions diaries by mood color and extracts what recurs
// inside each partition.
//
// # Description
//
// Per color: the top themes (minFrequency 1 within the partition, capped at
// triggerTopThemes) and up to triggerMaxExamples excerpts. Groups appear in
// the fixed color order (red, yellow, blue, green); colors with no diaries
// produce no group.
func EmotionTriggers(diaries []datatypes.DiaryRecord) []TriggerGroup {
	partitions := make(map[datatypes.MoodColor][]datatypes.DiaryRecord)
	for _, d := range diaries {
		partitions[d.Color] = append(partitions[d.Color], d)
	}

	out := make([]TriggerGroup, 0, len(partitions))
	for _, color := range datatypes.AllMoodColors {
		group, ok := partitions[color]
		if !ok {
			continue
		}

		themes := RecurringThemes(group, 1)
		if len(themes) > triggerTopThemes {
			themes = themes[:triggerTopThemes]
		}

		ids := make([]int, 0, len(group))
		examples := make([]TriggerExample, 0, triggerMaxExamples)
		for _, d := range group {
			ids = append(ids, d.DiaryID)
			if len(examples) < triggerMaxExamples {
				examples = append(examples, TriggerExample{
					DiaryID: d.DiaryID,
					Excerpt: truncateRunes(d.Content, excerptMaxRunes),
				})
			}
		}

		out = append(out, TriggerGroup{
			Color:    color,
			Label:    color.Label(),
			DiaryIDs: ids,
			Themes:   themes,
			Examples: examples,
		})
	}
	return out
}

// truncateRunes cuts s to at most n runes, appending an ellipsis when
// something was dropped.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
