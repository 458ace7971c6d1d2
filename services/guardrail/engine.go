// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guardrail screens user messages before they reach any provider.
// It is consumed by the orchestrator as an external collaborator: the
// pipeline persists the user's original message regardless of the outcome,
// and streams a blocked category's response through the same token path as
// a normal answer.
package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/haru-ai/haru/services/guardrail/enforcement"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the guardrail contract the orchestrator consumes.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; every chat request passes
// through Check.
type Service interface {
	// Check screens raw user text. It never returns an error: an engine
	// with no rules allows everything (fail open for availability, matching
	// how scan failures are treated).
	Check(text string) Decision
}

// Compile-time interface implementation check.
var _ Service = (*Engine)(nil)

// =============================================================================
// Engine
// =============================================================================

// Engine evaluates messages against a prioritized category list.
//
// Rules are loaded once at construction (embedded defaults or an override
// file) and may be hot-reloaded via Watch in development. The rule set is
// swapped atomically under a read lock; in-flight checks finish against the
// set they started with.
type Engine struct {
	mu         sync.RWMutex
	categories []Category
}

// NewEngine loads the rule set.
//
// # Description
//
// When GUARDRAIL_RULES_PATH is set the file at that path is loaded;
// otherwise the embedded defaults apply. Loading compiles every regex and
// sorts categories by priority so Check can stop at the first match.
//
// # Outputs
//
//   - *Engine: Ready engine.
//   - error: Non-nil when the YAML is malformed or a regex is invalid.
func NewEngine() (*Engine, error) {
	data := enforcement.DefaultRules
	if path := os.Getenv("GUARDRAIL_RULES_PATH"); path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read guardrail rules from %s: %w", path, err)
		}
		slog.Info("Loaded guardrail rules from file", "path", path)
		data = fileData
	}

	categories, err := parseRules(data)
	if err != nil {
		return nil, err
	}
	return &Engine{categories: categories}, nil
}

func parseRules(data []byte) ([]Category, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal guardrail rules: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile guardrail regex: %w", err)
	}
	file.SortByPriority()
	return file.Categories, nil
}

// Check implements Service.
//
// # Description
//
// Categories are tried highest priority first. The first blocking match
// rejects the message with that category's response. Non-blocking matches
// replace the matched spans and evaluation continues, so a message can be
// sanitized by one category and still blocked by another.
func (e *Engine) Check(text string) Decision {
	e.mu.RLock()
	categories := e.categories
	e.mu.RUnlock()

	sanitized := text
	for _, cat := range categories {
		for _, re := range cat.CompiledPatterns {
			if !re.MatchString(sanitized) {
				continue
			}
			if cat.Block {
				slog.Info("Guardrail blocked message", "category", cat.Name)
				return Decision{
					Allowed:  false,
					Reason:   cat.Response,
					Category: cat.Name,
				}
			}
			sanitized = re.ReplaceAllString(sanitized, cat.Sanitize)
			slog.Debug("Guardrail sanitized message", "category", cat.Name)
			break
		}
	}
	return Decision{Allowed: true, SanitizedInput: sanitized}
}

// Watch hot-reloads the rules file on change. Development convenience; the
// embedded rule set needs no watcher. Blocks until ctx is done.
//
// # Limitations
//
//   - A reload that fails to parse keeps the previous rule set.
func (e *Engine) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	slog.Info("Watching guardrail rules for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				slog.Error("Failed to re-read guardrail rules", "error", err)
				continue
			}
			categories, err := parseRules(data)
			if err != nil {
				slog.Error("Rejected invalid guardrail rules update", "error", err)
				continue
			}
			e.mu.Lock()
			e.categories = categories
			e.mu.Unlock()
			slog.Info("Reloaded guardrail rules", "categories", len(categories))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Guardrail rules watcher error", "error", err)
		}
	}
}
