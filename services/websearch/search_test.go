// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingProvider always errors, simulating a dead backend.
type failingProvider struct{ name string }

func (p failingProvider) Name() string { return p.name }

func (p failingProvider) Search(context.Context, string, int) ([]Result, error) {
	return nil, fmt.Errorf("%s is down", p.name)
}

// fixedProvider returns a canned result set.
type fixedProvider struct {
	name    string
	results []Result
}

func (p fixedProvider) Name() string { return p.name }

func (p fixedProvider) Search(context.Context, string, int) ([]Result, error) {
	return p.results, nil
}

// TestChainSearch_FallsThroughToNextProvider verifies a failing primary
// provider is skipped in order.
func TestChainSearch_FallsThroughToNextProvider(t *testing.T) {
	chain := NewChainWith(
		failingProvider{name: "primary"},
		fixedProvider{name: "secondary", results: []Result{{Title: "hit", URL: "https://a.example"}}},
		StubProvider{},
	)

	results := chain.Search(context.Background(), "query", 5)

	require.Len(t, results, 1)
	assert.Equal(t, "hit", results[0].Title)
}

// TestChainSearch_EmptyResultsAdvanceTheChain verifies a provider that
// answers with zero results is treated as a failure.
func TestChainSearch_EmptyResultsAdvanceTheChain(t *testing.T) {
	chain := NewChainWith(
		fixedProvider{name: "empty"},
		fixedProvider{name: "full", results: []Result{{Title: "hit", URL: "https://b.example"}}},
	)

	results := chain.Search(context.Background(), "query", 5)

	require.Len(t, results, 1)
	assert.Equal(t, "https://b.example", results[0].URL)
}

// TestChainSearch_StubIsTerminal verifies the stub answers deterministically
// when every real provider fails.
func TestChainSearch_StubIsTerminal(t *testing.T) {
	chain := NewChainWith(failingProvider{name: "a"}, failingProvider{name: "b"}, StubProvider{})

	results := chain.Search(context.Background(), "서울 날씨", 5)

	require.Len(t, results, 2)
	assert.Equal(t, "검색 결과: 서울 날씨", results[0].Title)
	assert.Equal(t, "https://example.com/result1", results[0].URL)
	assert.Equal(t, "서울 날씨 관련 정보", results[1].Title)
	assert.Equal(t, "https://example.com/result2", results[1].URL)
}

// TestChainSearch_TruncatesToMaxResults verifies the cap applies to the
// winning provider's output.
func TestChainSearch_TruncatesToMaxResults(t *testing.T) {
	many := make([]Result, 8)
	for i := range many {
		many[i] = Result{Title: fmt.Sprintf("r%d", i), URL: fmt.Sprintf("https://x.example/%d", i)}
	}
	chain := NewChainWith(fixedProvider{name: "many", results: many})

	results := chain.Search(context.Background(), "query", 3)

	assert.Len(t, results, 3)
}

// TestStubProvider_Deterministic verifies identical queries produce
// identical results.
func TestStubProvider_Deterministic(t *testing.T) {
	first, err := StubProvider{}.Search(context.Background(), "테스트", 5)
	require.NoError(t, err)
	second, err := StubProvider{}.Search(context.Background(), "테스트", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestChainHealthy verifies health reflects having any provider at all.
func TestChainHealthy(t *testing.T) {
	assert.True(t, NewChainWith(StubProvider{}).Healthy())
	assert.False(t, NewChainWith().Healthy())
}
