// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command haru runs the Haru orchestrator: the diary-grounded
// conversational service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haru-ai/haru/pkg/logging"
	"github.com/haru-ai/haru/services/orchestrator"
)

var rootCmd = &cobra.Command{
	Use:   "haru",
	Short: "Haru diary-grounded conversational agent",
	Long: "Haru answers a user's questions about their own life, grounded in\n" +
		"their private diary entries. This binary runs the orchestrator HTTP\n" +
		"service: SSE chat streaming, diary embedding webhooks, session\n" +
		"management, and diary insights.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator HTTP service",
	RunE:  runServe,
}

var (
	flagPort     int
	flagGinMode  string
	flagLogDir   string
	flagLogJSON  bool
	flagNoSweep  bool
	flagSweepGap time.Duration
)

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "HTTP port (default 8090)")
	serveCmd.Flags().StringVar(&flagGinMode, "gin-mode", "release", "gin mode: debug, release, test")
	serveCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "directory for JSON log files (empty: stderr only)")
	serveCmd.Flags().BoolVar(&flagLogJSON, "log-json", true, "emit stderr logs as JSON")
	serveCmd.Flags().BoolVar(&flagNoSweep, "no-sweep", false, "disable the cache TTL sweeper")
	serveCmd.Flags().DurationVar(&flagSweepGap, "sweep-interval", time.Hour, "cache TTL sweep interval")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	closer, err := logging.Setup(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("HARU_LOG_LEVEL")),
		Service: "orchestrator",
		JSON:    flagLogJSON,
		LogDir:  flagLogDir,
	})
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	defer func() {
		if err := closer(); err != nil {
			slog.Warn("Log file close failed", "error", err)
		}
	}()

	svc, err := orchestrator.New(orchestrator.Config{
		Port:          flagPort,
		WeaviateURL:   os.Getenv("WEAVIATE_URL"),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:       flagGinMode,
		SweepInterval: flagSweepGap,
		SweepEnabled:  !flagNoSweep,
		EnableMetrics: true,
	})
	if err != nil {
		return err
	}
	return svc.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
