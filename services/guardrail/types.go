// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guardrail

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Severity grades how confidently a rule match indicates a violation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// UnmarshalYAML validates the severity enum at load time so a typo in the
// rules file fails startup instead of silently never matching.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := Severity(raw)
	switch incoming {
	case SeverityLow, SeverityMedium, SeverityHigh:
		*s = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for severity: %q", incoming)
	}
}

// RulesFile is the top-level shape of the guardrail rules YAML.
type RulesFile struct {
	Categories []Category `yaml:"categories"`
}

// Category groups related patterns under one rejection behavior.
//
// # Fields
//
//   - Name: Stable identifier surfaced in Decision.Category.
//   - Priority: Higher priorities are evaluated first; the first matching
//     category wins.
//   - Block: Whether a match rejects the message. Non-blocking categories
//     only sanitize.
//   - Response: The user-facing rejection message, streamed through the
//     normal token path so the client experience stays uniform.
//   - Sanitize: Optional replacement applied to matched spans when the
//     category does not block.
type Category struct {
	Name             string           `yaml:"name"`
	Description      string           `yaml:"description"`
	Priority         int              `yaml:"priority"`
	Block            bool             `yaml:"block"`
	Response         string           `yaml:"response"`
	Sanitize         string           `yaml:"sanitize"`
	Patterns         []Pattern        `yaml:"patterns"`
	CompiledPatterns []*regexp.Regexp `yaml:"-"`
}

// Pattern is one regex within a category.
type Pattern struct {
	ID       string   `yaml:"id"`
	Regex    string   `yaml:"regex"`
	Severity Severity `yaml:"severity"`
}

// CompileRegexes compiles every pattern in every category. Any invalid
// regex fails the whole file.
func (f *RulesFile) CompileRegexes() error {
	for i := range f.Categories {
		cat := &f.Categories[i]
		cat.CompiledPatterns = make([]*regexp.Regexp, 0, len(cat.Patterns))
		for _, p := range cat.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("category %q pattern %q: %w", cat.Name, p.ID, err)
			}
			cat.CompiledPatterns = append(cat.CompiledPatterns, re)
		}
	}
	return nil
}

// SortByPriority orders categories highest priority first so evaluation can
// stop at the first match.
func (f *RulesFile) SortByPriority() {
	sort.SliceStable(f.Categories, func(i, j int) bool {
		return f.Categories[i].Priority > f.Categories[j].Priority
	})
}

// Decision is the outcome of checking one message.
//
// # Fields
//
//   - Allowed: False when a blocking category matched.
//   - SanitizedInput: The message after non-blocking sanitization; equals
//     the input when nothing matched.
//   - Reason: The user-facing response for a blocked message.
//   - Category: Name of the matched category, empty when clean.
type Decision struct {
	Allowed        bool   `json:"is_allowed"`
	SanitizedInput string `json:"sanitized_input,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Category       string `json:"category,omitempty"`
}
