// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command ragbot starts the WebSearch RAG Bot HTTP server.
//
// Configuration comes from an optional YAML file (RAGBOT_CONFIG) with
// environment variables taking precedence.
//
// # Environment Variables
//
//   - RAGBOT_PORT: HTTP server port (default: 8000)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional; in-process index otherwise)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: localhost:4317)
//   - OPENAI_API_KEY: enables the OpenAI LLM and embeddings backends
//   - EMBEDDING_SERVICE_URL: sidecar embedding service (used without an OpenAI key)
//   - GOOGLE_SEARCH_API_KEY / GOOGLE_SEARCH_ENGINE_ID: primary search provider
//   - TOPIC_SEARCH_MODE: per-topic research strategy, "web" or "vector" (default: web)
//   - RAGBOT_MAX_TRANSCRIPT_TURNS: transcript cap per conversation (default: 200)
//   - RAGBOT_SWEEP_INTERVAL_MINUTES: retention sweep interval (default: 60)
//   - RAGBOT_MAX_IDLE_HOURS: idle eviction threshold (default: 24)
//   - RAGBOT_SWEEP_ENABLED: "false" disables the retention sweeper
//   - RAGBOT_METRICS_ENABLED: "false" disables the /metrics endpoint
//
// # Usage
//
//	go build -o ragbot ./cmd/ragbot
//	./ragbot
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pica-git0/websearch-rag-bot/services/orchestrator"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML config file shape.
type fileConfig struct {
	Port                int    `yaml:"port"`
	WeaviateURL         string `yaml:"weaviate_url"`
	OTelEndpoint        string `yaml:"otel_endpoint"`
	EmbeddingServiceURL string `yaml:"embedding_service_url"`
	TopicSearchMode     string `yaml:"topic_search_mode"`
	MaxTranscriptTurns  int    `yaml:"max_transcript_turns"`
	SweepIntervalMin    int    `yaml:"sweep_interval_minutes"`
	MaxIdleHours        int    `yaml:"max_idle_hours"`
}

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()

	slog.Info("Starting ragbot",
		"port", cfg.Port,
		"weaviate_url", cfg.WeaviateURL,
		"otel_endpoint", cfg.OTelEndpoint,
		"topic_search_mode", cfg.TopicSearchMode,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig merges the optional YAML file with environment variables;
// the environment wins.
func loadConfig() orchestrator.Config {
	var fc fileConfig
	if path := os.Getenv("RAGBOT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			log.Fatalf("Failed to parse config file %s: %v", path, err)
		}
		slog.Info("Loaded config file", "path", path)
	}

	cfg := orchestrator.Config{
		Port:                firstInt(getEnvInt("RAGBOT_PORT", 0), fc.Port, 8000),
		WeaviateURL:         firstString(os.Getenv("WEAVIATE_SERVICE_URL"), fc.WeaviateURL),
		OTelEndpoint:        firstString(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), fc.OTelEndpoint, "localhost:4317"),
		EmbeddingServiceURL: firstString(os.Getenv("EMBEDDING_SERVICE_URL"), fc.EmbeddingServiceURL),
		TopicSearchMode:     firstString(os.Getenv("TOPIC_SEARCH_MODE"), fc.TopicSearchMode, "web"),
		MaxTranscriptTurns:  firstInt(getEnvInt("RAGBOT_MAX_TRANSCRIPT_TURNS", 0), fc.MaxTranscriptTurns, 200),
		SweepInterval:       time.Duration(firstInt(getEnvInt("RAGBOT_SWEEP_INTERVAL_MINUTES", 0), fc.SweepIntervalMin, 60)) * time.Minute,
		MaxIdle:             time.Duration(firstInt(getEnvInt("RAGBOT_MAX_IDLE_HOURS", 0), fc.MaxIdleHours, 24)) * time.Hour,
		SweepEnabled:        getEnvBool("RAGBOT_SWEEP_ENABLED", true),
		EnableMetrics:       getEnvBool("RAGBOT_METRICS_ENABLED", true),
		GinMode:             os.Getenv("GIN_MODE"),
		GoogleAPIKey:        os.Getenv("GOOGLE_SEARCH_API_KEY"),
		GoogleEngineID:      os.Getenv("GOOGLE_SEARCH_ENGINE_ID"),
	}
	return cfg
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid integer in environment variable, ignoring", "key", key)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		slog.Warn("Invalid boolean in environment variable, ignoring", "key", key)
	}
	return fallback
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
