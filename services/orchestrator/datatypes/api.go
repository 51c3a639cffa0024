// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the HTTP request and response shapes.
package datatypes

import (
	"fmt"
	"strings"

	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
	"github.com/pica-git0/websearch-rag-bot/services/websearch"
)

// ChatRequest is the body for POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UseWebSearch   *bool  `json:"use_web_search"`

	// Mode selects the answer pipeline: "chat_with_memory" (default),
	// "chat", "structured" or "topic".
	Mode string `json:"mode"`
}

// EnsureDefaults fills unset optional fields.
func (r *ChatRequest) EnsureDefaults() {
	if r.UseWebSearch == nil {
		enabled := true
		r.UseWebSearch = &enabled
	}
	if r.Mode == "" {
		r.Mode = "chat_with_memory"
	}
}

// Validate rejects malformed requests. An empty message is NOT an error:
// the pipeline answers it with a guidance string.
func (r *ChatRequest) Validate() error {
	switch r.Mode {
	case "chat", "chat_with_memory", "structured", "topic":
		return nil
	default:
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
}

// ChatResponse is the body for POST /chat.
type ChatResponse struct {
	Response       string                `json:"response"`
	Sources        []string              `json:"sources"`
	ConversationID string                `json:"conversation_id"`
	ContextInfo    *rag.ProvenanceCounts `json:"context_info,omitempty"`
}

// SearchRequest is the body for POST /search.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (r *SearchRequest) EnsureDefaults() {
	if r.MaxResults <= 0 {
		r.MaxResults = 5
	}
}

func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query must not be empty")
	}
	return nil
}

// SearchResponse is the body for POST /search.
type SearchResponse struct {
	Results []websearch.Result `json:"results"`
	Total   int                `json:"total"`
}

// IndexRequest is the body for POST /index. Without a conversation id the
// documents go to the shared pool.
type IndexRequest struct {
	URLs           []string `json:"urls"`
	ConversationID string   `json:"conversation_id"`
}

func (r *IndexRequest) Validate() error {
	if len(r.URLs) == 0 {
		return fmt.Errorf("urls must not be empty")
	}
	return nil
}

// IndexResponse is the body for POST /index.
type IndexResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status   string          `json:"status"`
	Services map[string]bool `json:"services"`
}

// HistoryResponse is the body for GET /conversations/:id/history.
type HistoryResponse struct {
	ConversationID string            `json:"conversation_id"`
	History        []rag.HistoryPair `json:"history"`
}
