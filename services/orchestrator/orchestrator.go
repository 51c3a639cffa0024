// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles the WebSearch RAG Bot service: HTTP
// routing, the LLM client, the embedding index, the search chain, the
// conversation pipeline and the observability infrastructure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/llm"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/observability"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/routes"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/pica-git0/websearch-rag-bot/services/websearch"
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
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service abstracts the service lifecycle, enabling testing and
// alternative implementations.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers must
	// not modify routes after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration. All fields are optional with
// defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 8000
	Port int

	// WeaviateURL is the Weaviate vector database URL. If empty, an
	// in-process index is used instead.
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "localhost:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// EmbeddingServiceURL points at a sidecar embedding service. Used
	// when no OpenAI key is available.
	EmbeddingServiceURL string

	// TopicSearchMode selects per-topic research: "web" or "vector".
	TopicSearchMode string

	// MaxTranscriptTurns bounds the in-memory transcript per conversation.
	MaxTranscriptTurns int

	// SweepInterval is how often the retention sweeper runs. Default: 1h
	SweepInterval time.Duration

	// MaxIdle is how long a conversation may sit idle before eviction.
	// Default: 24h
	MaxIdle time.Duration

	// SweepEnabled enables the background retention sweeper. Default: true
	SweepEnabled bool

	// GoogleAPIKey and GoogleEngineID enable the primary search provider.
	GoogleAPIKey   string
	GoogleEngineID string
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = 24 * time.Hour
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.Client
	index         vectorstore.Index
	searchChain   *websearch.Chain
	fetcher       *websearch.Fetcher
	ragService    *rag.Service
	sweeper       *rag.Sweeper
	tracerCleanup func(context.Context)
}

// New initializes all components: tracing, metrics, the embedding index
// (Weaviate or in-process), the LLM client (OpenAI or the deterministic
// fallback), the search chain, the conversation pipeline and the router.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initIndex(); err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	s.initLLMClient()

	s.searchChain = websearch.NewChain(s.config.GoogleAPIKey, s.config.GoogleEngineID)
	s.fetcher = websearch.NewFetcher()

	s.ragService = rag.NewService(s.llmClient, s.index, s.searchChain, s.fetcher, rag.Config{
		TopicSearchMode:    rag.TopicSearchMode(s.config.TopicSearchMode),
		MaxTranscriptTurns: s.config.MaxTranscriptTurns,
	})

	if s.config.SweepEnabled {
		s.sweeper = rag.NewSweeper(s.ragService.Memory(), s.config.SweepInterval, s.config.MaxIdle)
		s.sweeper.Start(context.Background())
	}

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting RAG bot server", "port", s.config.Port)

	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter. Uses an insecure gRPC
// connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
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
		resource.WithAttributes(semconv.ServiceNameKey.String("ragbot-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initIndex builds the embedding index. With a Weaviate URL configured
// the index is Weaviate-backed; otherwise the service runs on the
// in-process index so keyless and offline setups still work end to end.
func (s *service) initIndex() error {
	embedder := s.buildEmbedder()

	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, using the in-process index")
		s.index = vectorstore.NewMemoryIndex(embedder)
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	s.index = vectorstore.NewWeaviateIndex(client, embedder)
	slog.Info("Weaviate index initialized", "url", weaviateURL)
	return nil
}

// buildEmbedder picks the embedding backend: OpenAI when a key is set,
// else the sidecar embedding service, else the deterministic hash
// embedder.
func (s *service) buildEmbedder() vectorstore.EmbeddingProvider {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		slog.Info("Using OpenAI embeddings backend")
		return vectorstore.NewOpenAIEmbedder(apiKey)
	}
	if s.config.EmbeddingServiceURL != "" {
		slog.Info("Using embedding service backend", "url", s.config.EmbeddingServiceURL)
		return vectorstore.NewServiceEmbedder(s.config.EmbeddingServiceURL, 384)
	}
	slog.Warn("No embedding backend configured, using the deterministic hash embedder")
	return vectorstore.NewHashEmbedder(384)
}

// initLLMClient picks the completion backend: OpenAI when a key is
// available, else the deterministic fallback client.
func (s *service) initLLMClient() {
	client, err := llm.NewOpenAIClient()
	if err != nil {
		s.llmClient = llm.NewFallbackClient()
		return
	}
	slog.Info("Using OpenAI LLM backend")
	s.llmClient = client
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("ragbot-service"))

	routes.SetupRoutes(s.router, s.ragService, s.index, s.searchChain, s.config.EnableMetrics)
}

// cleanup releases resources when Run() exits.
func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
