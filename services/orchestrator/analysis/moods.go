// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis computes diary patterns: mood distribution, recurring
// themes, emotion triggers, and entity-grounded suggestions. Every function
// here is pure (diaries in, derived structures out, no I/O) so the same
// code backs both the introspection tools exposed to the generation engine
// and the insights HTTP endpoints.
package analysis

import (
	"math"
	"sort"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// MoodCount is one color's share of a diary set.
type MoodCount struct {
	Color      datatypes.MoodColor `json:"color"`
	Label      string              `json:"label"`
	Count      int                 `json:"count"`
	Percentage int                 `json:"percentage"`
}

// MoodDistribution groups diaries by mood color.
//
// # Description
//
// Returns one entry per color present, sorted by count descending with ties
// broken by the fixed color order (red, yellow, blue, green) so output is
// deterministic. Percentages are rounded independently and may sum to
// slightly above or below 100; that is accepted behavior, not a bug.
//
// # Edge Cases
//
//   - Empty input returns an empty slice, not nil percentages.
func MoodDistribution(diaries []datatypes.DiaryRecord) []MoodCount {
	if len(diaries) == 0 {
		return []MoodCount{}
	}

	counts := make(map[datatypes.MoodColor]int)
	for _, d := range diaries {
		counts[d.Color]++
	}

	total := len(diaries)
	out := make([]MoodCount, 0, len(counts))
	for _, color := range datatypes.AllMoodColors {
		n, ok := counts[color]
		if !ok {
			continue
		}
		out = append(out, MoodCount{
			Color:      color,
			Label:      color.Label(),
			Count:      n,
			Percentage: int(math.Round(float64(n) / float64(total) * 100)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
