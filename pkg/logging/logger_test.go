// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"  Error  ", slog.LevelError},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupWritesJSONLogFile(t *testing.T) {
	dir := t.TempDir()

	closer, err := Setup(Config{
		Level:   slog.LevelInfo,
		Service: "test",
		LogDir:  dir,
		Quiet:   true,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	slog.Info("hello from test", "key", "value")
	slog.Debug("filtered out")

	if err := closer(); err != nil {
		t.Fatalf("closer failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %d (err %v)", len(entries), err)
	}
	if !strings.HasPrefix(entries[0].Name(), "test_") {
		t.Errorf("log file name %q missing service prefix", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry (debug filtered), got %d", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log entry is not JSON: %v", err)
	}
	if entry["msg"] != "hello from test" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["service"] != "test" {
		t.Errorf("missing service attribute: %v", entry["service"])
	}
	if entry["key"] != "value" {
		t.Errorf("missing attribute: %v", entry["key"])
	}
}

func TestSetupZeroConfig(t *testing.T) {
	closer, err := Setup(Config{Quiet: true})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := closer(); err != nil {
		t.Errorf("closer failed: %v", err)
	}
}
