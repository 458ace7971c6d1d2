// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator wires the Haru conversational core into a runnable
// HTTP service: Weaviate-backed stores, the OpenAI embedding and chat
// clients, the guardrail engine, the RAG pipeline, routes, tracing, metrics,
// and the cache TTL sweeper.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/haru-ai/haru/services/embedding"
	"github.com/haru-ai/haru/services/guardrail"
	"github.com/haru-ai/haru/services/llm"
	"github.com/haru-ai/haru/services/orchestrator/conversation"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/generation"
	"github.com/haru-ai/haru/services/orchestrator/handlers"
	"github.com/haru-ai/haru/services/orchestrator/observability"
	"github.com/haru-ai/haru/services/orchestrator/rag"
	"github.com/haru-ai/haru/services/orchestrator/rerank"
	"github.com/haru-ai/haru/services/orchestrator/routes"
	"github.com/haru-ai/haru/services/orchestrator/semcache"
	"github.com/haru-ai/haru/services/orchestrator/ttl"
	"github.com/haru-ai/haru/services/orchestrator/vectorstore"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the service configuration. Zero values use defaults; defaults
// are logged at startup so a misconfigured deployment is visible in the
// first lines of output.
type Config struct {
	// Port is the HTTP server port. Default: 8090.
	Port int

	// WeaviateURL is the vector database URL. Required.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector gRPC endpoint.
	// Empty disables tracing export.
	OTelEndpoint string

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Empty uses the GIN_MODE env var or Gin's default.
	GinMode string

	// SweepInterval is how often the cache TTL sweeper runs. Default: 1h.
	SweepInterval time.Duration

	// SweepEnabled toggles the background sweeper. Default: true.
	SweepEnabled bool

	// EnableMetrics registers Prometheus metrics. Default: true.
	EnableMetrics bool
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8090
		slog.Info("Using default port", "port", cfg.Port)
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	return cfg
}

// =============================================================================
// Service
// =============================================================================

// Service is the runnable orchestrator.
//
// # Thread Safety
//
// All fields are read-only after New returns. Run blocks and must be called
// at most once.
type Service struct {
	config         Config
	router         *gin.Engine
	weaviateClient *weaviate.Client
	sweeper        *ttl.Sweeper
	tracerCleanup  func(context.Context)
}

// New builds the full dependency graph.
//
// # Description
//
// Initialization order: tracing, metrics, Weaviate (schemas ensured),
// provider clients, guardrail engine, domain components, pipeline, router,
// sweeper. Provider clients read their own environment (OPENAI_API_KEY,
// OPENAI_MODEL, GUARDRAIL_RULES_PATH) at construction and log the defaults
// they fall back to.
func New(cfg Config) (*Service, error) {
	s := &Service{config: applyConfigDefaults(cfg)}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initWeaviate(); err != nil {
		return nil, err
	}

	embedder, err := embedding.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	guard, err := guardrail.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize guardrail engine: %w", err)
	}

	// Domain components over the shared Weaviate client.
	store := vectorstore.NewWeaviateStore(s.weaviateClient)
	cache := semcache.NewWeaviateCache(s.weaviateClient)
	sessions := conversation.NewWeaviateStore(s.weaviateClient, generation.NewLLMSummarizer(llmClient))
	reranker := rerank.NewSelectingReranker(generation.NewLLMScorer(llmClient))
	engine := generation.NewEngine(llmClient, generation.NewToolRegistry(store))

	orch, err := rag.New(rag.Config{
		Embedder: embedder,
		Store:    store,
		Reranker: reranker,
		Cache:    cache,
		Sessions: sessions,
		Engine:   engine,
		Guard:    guard,
	})
	if err != nil {
		return nil, err
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("haru-orchestrator"))
	routes.SetupRoutes(s.router, routes.Handlers{
		Chat:     handlers.NewChatHandler(orch),
		Sessions: handlers.NewSessionHandler(sessions),
		Diaries:  handlers.NewDiaryHandler(embedder, store, cache),
		Insights: handlers.NewInsightHandler(store),
	})

	if s.config.SweepEnabled {
		s.sweeper = ttl.NewSweeper(cache, ttl.NewClockChecker(), ttl.SweeperConfig{
			Interval: s.config.SweepInterval,
		})
	}

	return s, nil
}

// Run starts the sweeper and the HTTP server, blocking until the server
// stops.
func (s *Service) Run() error {
	defer s.cleanup()

	if s.sweeper != nil {
		if err := s.sweeper.Start(context.Background()); err != nil {
			return err
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting Haru orchestrator", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router exposes the Gin engine for integration tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Initialization
// =============================================================================

func (s *Service) initWeaviate() error {
	raw := strings.Trim(s.config.WeaviateURL, "\"' ")
	if raw == "" {
		return fmt.Errorf("WeaviateURL is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", raw)
	}

	s.weaviateClient, err = weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := datatypes.EnsureSchemas(context.Background(), s.weaviateClient); err != nil {
		return fmt.Errorf("failed to ensure Weaviate schemas: %w", err)
	}
	slog.Info("Weaviate client initialized", "url", raw)
	return nil
}

func (s *Service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("haru-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down OTLP exporter", "error", err)
		}
	}, nil
}

func (s *Service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
