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
	"unicode"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// DefaultMinFrequency is the distinct-diary threshold for a token to count
// as a recurring theme.
const DefaultMinFrequency = 2

// Theme is a recurring token and the number of distinct diaries it appears in.
type Theme struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

// stopWords are dropped during tokenization. Korean function words that
// survive whitespace tokenization plus common English fillers.
var stopWords = map[string]struct{}{
	// Korean
	"그리고": {}, "그래서": {}, "하지만": {}, "그런데": {}, "오늘": {},
	"어제": {}, "내일": {}, "정말": {}, "진짜": {}, "너무": {}, "조금": {},
	"많이": {}, "그냥": {}, "계속": {}, "같다": {}, "있다": {}, "없다": {},
	"했다": {}, "이다": {}, "나는": {}, "내가": {}, "나의": {}, "우리": {},
	// English
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "i": {},
	"my": {}, "me": {}, "was": {}, "were": {}, "is": {}, "are": {}, "it": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "for": {}, "with": {},
	"so": {}, "very": {}, "really": {}, "just": {}, "today": {}, "yesterday": {},
}

// tokenize lowercases and splits content on anything that is not a letter
// or digit, dropping stop words, pure-numeric tokens, and single runes.
func tokenize(content string) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stopped := stopWords[f]; stopped {
			continue
		}
		if isNumeric(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// RecurringThemes finds tokens that recur across diaries.
//
// # Description
//
// Each distinct token counts once per diary regardless of how many times it
// occurs inside that diary, so a single rant cannot dominate the theme
// list. Tokens appearing in at least minFrequency distinct diaries are
// returned sorted by frequency descending, then lexicographically for a
// stable order among ties.
func RecurringThemes(diaries []datatypes.DiaryRecord, minFrequency int) []Theme {
	if minFrequency < 1 {
		minFrequency = 1
	}

	counts := make(map[string]int)
	for _, d := range diaries {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(d.Content) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			counts[tok]++
		}
	}

	out := make([]Theme, 0, len(counts))
	for word, freq := range counts {
		if freq >= minFrequency {
			out = append(out, Theme{Word: word, Frequency: freq})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Word < out[j].Word
	})
	return out
}
