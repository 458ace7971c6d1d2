// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"fmt"
	"strings"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

// BuildContext assembles the grounding blob handed to the generation engine.
//
// # Description
//
// Deterministic concatenation of three optional labeled sections: recent
// mood states, retrieved diary excerpts, and prior chat turns. A section
// whose input is empty is omitted entirely, never emitted as a bare header.
// Same inputs produce byte-identical output; the result participates in the
// generation call and therefore, indirectly, in cache behavior.
func BuildContext(diaries []datatypes.DiarySearchResult, history []datatypes.ChatMessage, moods []datatypes.MoodState) string {
	var b strings.Builder

	if len(moods) > 0 {
		b.WriteString("## 최근 기분 기록\n")
		for _, m := range moods {
			b.WriteString("- ")
			b.WriteString(m.RecordedAt.Format("2006-01-02"))
			b.WriteString(": ")
			b.WriteString(m.Color.Label())
			if m.Note != "" {
				b.WriteString(" (")
				b.WriteString(m.Note)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}

	if len(diaries) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## 관련 일기\n")
		for _, d := range diaries {
			fmt.Fprintf(&b, "[%s] %s (%s)\n%s\n",
				d.Date.Format("2006-01-02"), d.Title, d.Color.Label(), d.Content)
		}
	}

	if len(history) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## 이전 대화\n")
		for _, msg := range history {
			speaker := "사용자"
			if msg.Role == datatypes.RoleAssistant {
				speaker = "하루"
			}
			b.WriteString(speaker)
			b.WriteString(": ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}

	return b.String()
}
