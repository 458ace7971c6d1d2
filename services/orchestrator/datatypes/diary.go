// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data structures for the Haru
// orchestrator: diary records, chat sessions and messages, stream events,
// and the Weaviate class schemas that persist them.
//
// Types in this package are plain data carriers. Business logic lives in the
// packages that consume them (vectorstore, conversation, rag, analysis).
package datatypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Mood Colors
// =============================================================================

// MoodColor is one of the four emotional-quadrant categories a diary entry
// can be tagged with.
//
// # Description
//
// The four colors map to emotional quadrants: red (anger/stress),
// yellow (joy/excitement), blue (sadness/depression), green (calm/stability).
// Diary records always carry exactly one color.
//
// # Limitations
//
//   - The set is closed. Unknown values fail validation rather than being
//     passed through.
type MoodColor string

const (
	MoodRed    MoodColor = "red"
	MoodYellow MoodColor = "yellow"
	MoodBlue   MoodColor = "blue"
	MoodGreen  MoodColor = "green"
)

// AllMoodColors lists every valid mood color in a fixed order.
var AllMoodColors = []MoodColor{MoodRed, MoodYellow, MoodBlue, MoodGreen}

// moodLabels maps each color to its user-facing Korean label. The upstream
// diary app records colors with these labels, so both forms are accepted.
var moodLabels = map[MoodColor]string{
	MoodRed:    "빨간색",
	MoodYellow: "노란색",
	MoodBlue:   "파란색",
	MoodGreen:  "초록색",
}

// labelToColor is the reverse of moodLabels, built at init.
var labelToColor = func() map[string]MoodColor {
	m := make(map[string]MoodColor, len(moodLabels))
	for c, l := range moodLabels {
		m[l] = c
	}
	return m
}()

// Valid reports whether c is one of the four known colors.
func (c MoodColor) Valid() bool {
	_, ok := moodLabels[c]
	return ok
}

// Label returns the user-facing Korean label for the color. Unknown colors
// return the raw string unchanged.
func (c MoodColor) Label() string {
	if l, ok := moodLabels[c]; ok {
		return l
	}
	return string(c)
}

// IsPositive reports whether the color belongs to the positive valence
// quadrants (yellow, green).
func (c MoodColor) IsPositive() bool {
	return c == MoodYellow || c == MoodGreen
}

// IsNegative reports whether the color belongs to the negative valence
// quadrants (red, blue).
func (c MoodColor) IsNegative() bool {
	return c == MoodRed || c == MoodBlue
}

// ParseMoodColor resolves either the canonical color name ("red") or the
// Korean label ("빨간색") to a MoodColor.
//
// # Outputs
//
//   - MoodColor: The resolved color.
//   - error: Non-nil when the input matches neither form.
func ParseMoodColor(s string) (MoodColor, error) {
	c := MoodColor(s)
	if c.Valid() {
		return c, nil
	}
	if c, ok := labelToColor[s]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown mood color %q", s)
}

// UnmarshalJSON accepts both canonical names and Korean labels.
func (c *MoodColor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMoodColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// =============================================================================
// Diary Records
// =============================================================================

// DiaryRecord is a user's journal entry as seen by the core. The record is
// owned by the external CRUD layer and is read-only here; content arrives
// already decrypted.
//
// # Fields
//
//   - DiaryID: Unique integer identifier assigned by the diary service.
//   - UserID: The owning user. Every diary belongs to exactly one user and
//     the core must never surface a diary across owner boundaries.
//   - Title, Content: Plaintext at this layer.
//   - Color: One of the four mood colors.
//   - Date: Calendar timestamp of the entry.
type DiaryRecord struct {
	DiaryID int       `json:"diary_id"`
	UserID  string    `json:"user_id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Color   MoodColor `json:"color"`
	Date    time.Time `json:"date"`
}

// DiarySearchResult is a transient, per-query projection of a diary plus its
// similarity score. Never persisted.
//
// # Fields
//
//   - Score: Cosine similarity in [0,1] (1 - cosine distance, reported as
//     Weaviate certainty).
type DiarySearchResult struct {
	DiaryID int       `json:"diary_id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Color   MoodColor `json:"color"`
	Score   float64   `json:"score"`
}

// Record converts the search result back into a DiaryRecord for the pure
// analysis functions, which operate on records rather than scored results.
func (r DiarySearchResult) Record(userID string) DiaryRecord {
	return DiaryRecord{
		DiaryID: r.DiaryID,
		UserID:  userID,
		Title:   r.Title,
		Content: r.Content,
		Color:   r.Color,
		Date:    r.Date,
	}
}

// MoodState is a recent mood-state record from the mood tracker, used to
// season the generation context. Provided by the external mood CRUD layer.
type MoodState struct {
	Color      MoodColor `json:"color"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// =============================================================================
// Date Ranges
// =============================================================================

// DateRange is an inclusive calendar window with both bounds normalized to
// local midnight. Callers expand End to end-of-day when using it as an upper
// bound in a range query (see EndOfDay).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EndOfDay returns t moved to 23:59:59.999999999 local time on the same
// calendar day. Used to make DateRange.End an inclusive upper bound.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// StartOfDay returns t truncated to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
