// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package websearch provides the web search provider chain and the content
// fetcher the retrieval pipeline uses to pull live evidence.
//
// # Description
//
// Search providers are tried in a fixed order (Google Programmable Search,
// DuckDuckGo HTML, deterministic stub); the chain never fails outright
// because the stub always answers. Fetching never returns an error either:
// a failed fetch yields an empty-content page whose metadata carries the
// error string.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pica-git0/websearch-rag-bot/pkg/fallback"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ragbot.websearch")

// Result is one external search hit. Transient; only documents derived by
// fetching and chunking URL are persisted.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Provider is a single search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Chain tries its providers in order and returns the first non-empty
// result set. It never returns an error: the terminal stub provider
// answers deterministically when every real backend fails.
type Chain struct {
	providers []Provider
}

// NewChain builds the default provider chain from the environment. Google
// is included only when both GOOGLE_SEARCH_API_KEY and
// GOOGLE_SEARCH_ENGINE_ID are set.
func NewChain(apiKey, engineID string) *Chain {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var providers []Provider
	if apiKey != "" && engineID != "" {
		providers = append(providers, NewGoogleProvider(apiKey, engineID, httpClient))
	} else {
		slog.Info("Google search credentials not configured, skipping primary provider")
	}
	providers = append(providers, NewDuckDuckGoProvider(httpClient), StubProvider{})

	return &Chain{providers: providers}
}

// NewChainWith builds a chain from explicit providers, mainly for tests.
func NewChainWith(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Search runs the provider chain. An empty result list is only possible
// when maxResults <= 0.
func (c *Chain) Search(ctx context.Context, query string, maxResults int) []Result {
	ctx, span := tracer.Start(ctx, "Chain.Search",
		trace.WithAttributes(attribute.String("search.query", query)))
	defer span.End()

	if maxResults <= 0 {
		maxResults = 5
	}

	steps := make([]fallback.Step[[]Result], 0, len(c.providers))
	for _, p := range c.providers {
		provider := p
		steps = append(steps, fallback.Step[[]Result]{
			Name: provider.Name(),
			Run: func(ctx context.Context) ([]Result, error) {
				results, err := provider.Search(ctx, query, maxResults)
				if err != nil {
					return nil, err
				}
				if len(results) == 0 {
					return nil, fmt.Errorf("provider %s returned no results", provider.Name())
				}
				return results, nil
			},
		})
	}

	results, winner, ok := fallback.TryInOrder(ctx, "web_search", steps)
	if !ok {
		// Unreachable with the stub in the chain, but stay total anyway.
		slog.Error("Every search provider failed", "query", query)
		return []Result{}
	}
	span.SetAttributes(
		attribute.String("search.provider", winner),
		attribute.Int("search.results", len(results)))
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// Healthy reports whether the chain can answer at all. With the stub as
// the terminal provider this is always true once constructed.
func (c *Chain) Healthy() bool {
	return len(c.providers) > 0
}
