// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/pica-git0/websearch-rag-bot/services/llm"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/pica-git0/websearch-rag-bot/services/websearch"
)

// =============================================================================
// Shared Test Doubles
// =============================================================================

// mockIndex records calls and can be scripted to fail per collection name.
type mockIndex struct {
	mu sync.Mutex

	ensureErr  map[string]error
	searchErr  error
	upsertErr  error
	searchHits map[string][]vectorstore.Document

	ensured  []string
	deleted  []string
	upserted map[string][]vectorstore.Document
}

func newMockIndex() *mockIndex {
	return &mockIndex{
		ensureErr:  make(map[string]error),
		searchHits: make(map[string][]vectorstore.Document),
		upserted:   make(map[string][]vectorstore.Document),
	}
}

func (m *mockIndex) EnsureCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = append(m.ensured, name)
	return m.ensureErr[name]
}

func (m *mockIndex) Upsert(_ context.Context, collection string, docs []vectorstore.Document) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	m.upserted[collection] = append(m.upserted[collection], docs...)
	return len(docs), nil
}

func (m *mockIndex) SimilaritySearch(_ context.Context, collection, _ string, _ int) ([]vectorstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchHits[collection], nil
}

func (m *mockIndex) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockIndex) Ready(_ context.Context) bool { return true }

func (m *mockIndex) upsertedTo(collection string) []vectorstore.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserted[collection]
}

// mockLLM answers each Generate call from a scripted queue; once the queue
// drains it repeats the last entry.
type mockLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (m *mockLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	idx := len(m.prompts) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	if idx < 0 {
		return "", fmt.Errorf("mock llm has no scripted reply")
	}
	var err error
	if idx < len(m.errs) {
		err = m.errs[idx]
	}
	return m.replies[idx], err
}

func (m *mockLLM) promptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// failingLLM fails every call.
type failingLLM struct{}

func (failingLLM) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return "", fmt.Errorf("llm backend unavailable")
}

// mockSearcher returns the scripted results for every query.
type mockSearcher struct {
	mu      sync.Mutex
	results []websearch.Result
	queries []string
	healthy bool
}

func (m *mockSearcher) Search(_ context.Context, query string, maxResults int) []websearch.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	results := m.results
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

func (m *mockSearcher) Healthy() bool { return m.healthy }

// mockFetcher serves pages from a URL-keyed map; unknown URLs come back as
// failed fetches with empty content.
type mockFetcher struct {
	pages map[string]websearch.Page
}

func (m *mockFetcher) Fetch(_ context.Context, url string) websearch.Page {
	if page, ok := m.pages[url]; ok {
		return page
	}
	return websearch.Page{URL: url, Metadata: map[string]string{"error": "not found"}}
}

func (m *mockFetcher) FetchMultiple(ctx context.Context, urls []string, _ int) []websearch.Page {
	var valid []websearch.Page
	for _, u := range urls {
		if page := m.Fetch(ctx, u); page.Content != "" {
			valid = append(valid, page)
		}
	}
	return valid
}
