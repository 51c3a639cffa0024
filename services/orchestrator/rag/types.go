// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rag implements the context-orchestration pipeline: multi-tier
// memory, the web-search gate, context fusion, topic research and the
// conversation façade that sequences them per request.
package rag

import (
	"context"

	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/pica-git0/websearch-rag-bot/services/websearch"
)

// Tier classifies an evidence document's origin.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
	TierWeb       Tier = "web"
)

// Turn is one transcript entry.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// ProvenanceCounts reports where the evidence behind a response came from.
// Always present; all-zero is a valid terminal state, not an error.
type ProvenanceCounts struct {
	ShortTermMemory int `json:"shortTermMemory"`
	LongTermMemory  int `json:"longTermMemory"`
	WebSearch       int `json:"webSearch"`
}

// ContextBundle is the fused result of one retrieval round: short-term
// documents first, then long-term, with sources deduplicated by URL.
type ContextBundle struct {
	Documents []vectorstore.Document
	Sources   []string
	Counts    ProvenanceCounts
}

// Searcher is the search-provider capability the pipeline consumes.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []websearch.Result
	Healthy() bool
}

// PageFetcher is the content-fetching capability the pipeline consumes.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) websearch.Page
	FetchMultiple(ctx context.Context, urls []string, maxConcurrent int) []websearch.Page
}

var (
	_ Searcher    = (*websearch.Chain)(nil)
	_ PageFetcher = (*websearch.Fetcher)(nil)
)
