// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package daterange extracts an explicit or relative calendar window from a
// free-text query. Pure functions, no I/O: given the same query and
// reference time the result is always identical.
//
// A nil result is not an error: it signals "no temporal filter" and the
// retrieval layer searches without a date restriction.
package daterange

import (
	"regexp"
	"strconv"
	"time"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// defaultDayCount is used when a day-count phrase matches but the number
// cannot be parsed.
const defaultDayCount = 7

// matcher pairs a compiled pattern with the function that converts its
// capture groups into a range. Matchers are tried in table order and the
// first match wins; Korean patterns come before generic English ones.
type matcher struct {
	re    *regexp.Regexp
	build func(now time.Time, groups []string) *datatypes.DateRange
}

var matchers = []matcher{
	// --- Relative day counts -------------------------------------------------
	{
		re:    regexp.MustCompile(`(?:지난|최근)\s*(\d+)?\s*일`),
		build: lastNDays,
	},
	{
		re:    regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)?\s*days?`),
		build: lastNDays,
	},

	// --- Named windows -------------------------------------------------------
	{
		re:    regexp.MustCompile(`지난\s*주|저번\s*주`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return lastWeek(now) },
	},
	{
		re:    regexp.MustCompile(`이번\s*주`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return thisWeek(now) },
	},
	{
		re:    regexp.MustCompile(`지난\s*달|저번\s*달`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return lastMonth(now) },
	},
	{
		re:    regexp.MustCompile(`이번\s*달`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return thisMonth(now) },
	},
	{
		re:    regexp.MustCompile(`(?i)last\s+week`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return lastWeek(now) },
	},
	{
		re:    regexp.MustCompile(`(?i)this\s+week`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return thisWeek(now) },
	},
	{
		re:    regexp.MustCompile(`(?i)last\s+month`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return lastMonth(now) },
	},
	{
		re:    regexp.MustCompile(`(?i)this\s+month`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return thisMonth(now) },
	},

	// --- Single deictic days -------------------------------------------------
	{
		re:    regexp.MustCompile(`어제|(?i)\byesterday\b`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return singleDay(now.AddDate(0, 0, -1)) },
	},
	{
		re:    regexp.MustCompile(`오늘|(?i)\btoday\b`),
		build: func(now time.Time, _ []string) *datatypes.DateRange { return singleDay(now) },
	},

	// --- Explicit calendar dates --------------------------------------------
	{
		re:    regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`),
		build: explicitDate,
	},
	{
		re:    regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
		build: explicitDate,
	},
}

// Parse extracts a date window from the query relative to now.
//
// # Description
//
// Patterns are tried in a fixed table order: relative day counts, named
// windows (week/month), deictic single days, then explicit calendar dates,
// with Korean forms ahead of English equivalents at each tier. The first
// matching pattern wins.
//
// # Outputs
//
//   - *datatypes.DateRange: Both bounds normalized to local midnight. The
//     caller expands End to end-of-day when using it as an inclusive upper
//     bound (datatypes.EndOfDay).
//   - nil when no date expression is recognized.
func Parse(query string, now time.Time) *datatypes.DateRange {
	for _, m := range matchers {
		groups := m.re.FindStringSubmatch(query)
		if groups == nil {
			continue
		}
		if r := m.build(now, groups); r != nil {
			return r
		}
	}
	return nil
}

// =============================================================================
// Builders
// =============================================================================

func lastNDays(now time.Time, groups []string) *datatypes.DateRange {
	n := defaultDayCount
	if len(groups) > 1 && groups[1] != "" {
		if parsed, err := strconv.Atoi(groups[1]); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return &datatypes.DateRange{
		Start: datatypes.StartOfDay(now.AddDate(0, 0, -n)),
		End:   datatypes.StartOfDay(now),
	}
}

// thisWeek runs Monday through today.
func thisWeek(now time.Time) *datatypes.DateRange {
	return &datatypes.DateRange{
		Start: startOfWeek(now),
		End:   datatypes.StartOfDay(now),
	}
}

// lastWeek is the previous Monday..Sunday window.
func lastWeek(now time.Time) *datatypes.DateRange {
	thisMonday := startOfWeek(now)
	return &datatypes.DateRange{
		Start: thisMonday.AddDate(0, 0, -7),
		End:   thisMonday.AddDate(0, 0, -1),
	}
}

// thisMonth runs from the 1st through today.
func thisMonth(now time.Time) *datatypes.DateRange {
	y, m, _ := now.Date()
	return &datatypes.DateRange{
		Start: time.Date(y, m, 1, 0, 0, 0, 0, now.Location()),
		End:   datatypes.StartOfDay(now),
	}
}

// lastMonth is the full previous calendar month.
func lastMonth(now time.Time) *datatypes.DateRange {
	y, m, _ := now.Date()
	firstOfThis := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return &datatypes.DateRange{
		Start: firstOfThis.AddDate(0, -1, 0),
		End:   firstOfThis.AddDate(0, 0, -1),
	}
}

func singleDay(t time.Time) *datatypes.DateRange {
	day := datatypes.StartOfDay(t)
	return &datatypes.DateRange{Start: day, End: day}
}

func explicitDate(now time.Time, groups []string) *datatypes.DateRange {
	year, err1 := strconv.Atoi(groups[1])
	month, err2 := strconv.Atoi(groups[2])
	day, err3 := strconv.Atoi(groups[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	return &datatypes.DateRange{Start: d, End: d}
}

// startOfWeek returns the Monday of t's week at local midnight.
func startOfWeek(t time.Time) time.Time {
	day := datatypes.StartOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started 6 days back
	}
	return day.AddDate(0, 0, -(weekday - 1))
}
