// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/pica-git0/websearch-rag-bot/services/websearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(client *mockLLM, index vectorstore.Index, search Searcher) *Service {
	return NewService(client, index, search, &mockFetcher{}, Config{})
}

// TestChatWithMemory_EmptyMessage verifies the guidance short-circuit: the
// full tuple shape with all-zero counts and no LLM call.
func TestChatWithMemory_EmptyMessage(t *testing.T) {
	client := &mockLLM{replies: []string{"답변"}}
	svc := newTestService(client, newMockIndex(), &mockSearcher{})

	result, err := svc.ChatWithMemory(context.Background(), "   ", "conv", true)

	require.NoError(t, err)
	assert.Equal(t, emptyMessageGuidance, result.Answer)
	assert.Equal(t, []string{}, result.Sources)
	assert.Equal(t, "conv", result.ConversationID)
	assert.Equal(t, ProvenanceCounts{}, result.ContextInfo)
	assert.Zero(t, client.promptCount(), "guidance must not invoke the LLM")
}

// TestChatWithMemory_GeneratesConversationID verifies a fresh UUID is
// issued when the request carries none.
func TestChatWithMemory_GeneratesConversationID(t *testing.T) {
	client := &mockLLM{replies: []string{"답변"}}
	svc := newTestService(client, newMockIndex(), &mockSearcher{})

	result, err := svc.ChatWithMemory(context.Background(), "안녕", "", false)

	require.NoError(t, err)
	require.NotEmpty(t, result.ConversationID)
	_, parseErr := uuid.Parse(result.ConversationID)
	assert.NoError(t, parseErr, "generated id should be a UUID")
}

// TestChatWithMemory_PersistsTranscript verifies the finished turn lands in
// the transcript and later requests see it.
func TestChatWithMemory_PersistsTranscript(t *testing.T) {
	client := &mockLLM{replies: []string{"첫 번째 답변", "두 번째 답변"}}
	svc := newTestService(client, newMockIndex(), &mockSearcher{})

	first, err := svc.ChatWithMemory(context.Background(), "안녕하세요", "conv", false)
	require.NoError(t, err)
	assert.Equal(t, "첫 번째 답변", first.Answer)

	pairs := svc.History("conv")
	require.Len(t, pairs, 1)
	assert.Equal(t, "안녕하세요", pairs[0].User)
	assert.Equal(t, "첫 번째 답변", pairs[0].Assistant)
}

// TestChatWithMemory_LLMFailureIsSoft verifies a dead LLM produces an
// apologetic answer, not an error, and the turn is not persisted.
func TestChatWithMemory_LLMFailureIsSoft(t *testing.T) {
	index := newMockIndex()
	svc := NewService(failingLLM{}, index, &mockSearcher{}, &mockFetcher{}, Config{})

	result, err := svc.ChatWithMemory(context.Background(), "안녕", "conv", false)

	require.NoError(t, err)
	assert.Contains(t, result.Answer, "죄송합니다. 오류가 발생했습니다")
	assert.Empty(t, svc.History("conv"), "failed turns must not be persisted")
}

// TestChat_DoesNotTouchTranscript verifies the memoryless mode.
func TestChat_DoesNotTouchTranscript(t *testing.T) {
	client := &mockLLM{replies: []string{"답변"}}
	svc := newTestService(client, newMockIndex(), &mockSearcher{})

	_, err := svc.Chat(context.Background(), "안녕", "conv", false)

	require.NoError(t, err)
	assert.Empty(t, svc.History("conv"))
}

// TestTopicBasedResponse_CountsSourcesAsWebSearch verifies the provenance
// shape of the topic mode.
func TestTopicBasedResponse_CountsSourcesAsWebSearch(t *testing.T) {
	client := &mockLLM{replies: []string{
		"- 주제 하나",
		"## 요약\n분석 결과입니다.",
	}}
	search := &mockSearcher{results: []websearch.Result{
		{Title: "자료", URL: "https://src.example", Snippet: "관련 내용 자료"},
	}}
	index := newMockIndex()
	svc := NewService(client, index, search, &mockFetcher{pages: map[string]websearch.Page{
		"https://src.example": {URL: "https://src.example", Content: "주제 하나에 대한 본문"},
	}}, Config{})

	result, err := svc.TopicBasedResponse(context.Background(), "깊은 분석이 필요한 질문", "conv")

	require.NoError(t, err)
	assert.Contains(t, result.Answer, "##")
	assert.Equal(t, len(result.Sources), result.ContextInfo.WebSearch)
}

// TestIndexURLs_CountsOnlyFetchable verifies per-URL isolation and the
// shared pool destination without a conversation id.
func TestIndexURLs_CountsOnlyFetchable(t *testing.T) {
	index := newMockIndex()
	fetcher := &mockFetcher{pages: map[string]websearch.Page{
		"https://ok.example": {URL: "https://ok.example", Title: "OK", Content: "indexable text"},
	}}
	svc := NewService(&mockLLM{replies: []string{"x"}}, index, &mockSearcher{}, fetcher, Config{})

	count := svc.IndexURLs(context.Background(), []string{"https://ok.example", "https://dead.example"}, "")

	assert.Equal(t, 1, count)
	assert.NotEmpty(t, index.upsertedTo(SharedPoolCollection))
}

// TestIndexURLs_UsesConversationCollection verifies indexing with a
// conversation id targets its short-term collection.
func TestIndexURLs_UsesConversationCollection(t *testing.T) {
	index := newMockIndex()
	fetcher := &mockFetcher{pages: map[string]websearch.Page{
		"https://ok.example": {URL: "https://ok.example", Content: "indexable text"},
	}}
	svc := NewService(&mockLLM{replies: []string{"x"}}, index, &mockSearcher{}, fetcher, Config{})

	count := svc.IndexURLs(context.Background(), []string{"https://ok.example"}, "conv")

	assert.Equal(t, 1, count)
	assert.NotEmpty(t, index.upsertedTo("Conv_conv_Short"))
}

// TestService_EndToEndWithMemoryIndex verifies index-then-chat over the
// real in-process index: indexed content shows up as chat evidence.
func TestService_EndToEndWithMemoryIndex(t *testing.T) {
	index := vectorstore.NewMemoryIndex(vectorstore.NewHashEmbedder(64))
	client := &mockLLM{replies: []string{"답변입니다"}}
	fetcher := &mockFetcher{pages: map[string]websearch.Page{
		"https://doc.example": {URL: "https://doc.example", Title: "문서", Content: "전기차 battery subsidy policy details"},
	}}
	svc := NewService(client, index, &mockSearcher{}, fetcher, Config{})

	indexed := svc.IndexURLs(context.Background(), []string{"https://doc.example"}, "conv")
	require.Equal(t, 1, indexed)

	result, err := svc.ChatWithMemory(context.Background(), "battery subsidy 정책", "conv", false)
	require.NoError(t, err)
	assert.Equal(t, "답변입니다", result.Answer)
	assert.Positive(t, result.ContextInfo.ShortTermMemory, "indexed document should surface as evidence")
	assert.Contains(t, result.Sources, "https://doc.example")

	// Wait for the detached long-term write before the test tears down.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if docs, _ := index.SimilaritySearch(context.Background(), "Conv_conv_Long", "battery", 1); len(docs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestService_PanicRecovery verifies a panicking collaborator yields the
// apologetic tuple plus a non-nil error for the HTTP 500 path.
func TestService_PanicRecovery(t *testing.T) {
	svc := NewService(&mockLLM{replies: []string{"x"}}, newMockIndex(), panickingSearcher{}, &mockFetcher{}, Config{})

	result, err := svc.ChatWithMemory(context.Background(), "날씨 알려줘", "conv", true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhandled orchestrator error")
	assert.True(t, strings.HasPrefix(result.Answer, "죄송합니다. 오류가 발생했습니다"))
	assert.Equal(t, "conv", result.ConversationID)
	assert.Equal(t, []string{}, result.Sources)
}

// panickingSearcher simulates an unexpected collaborator bug.
type panickingSearcher struct{}

func (panickingSearcher) Search(context.Context, string, int) []websearch.Result {
	panic("searcher exploded")
}

func (panickingSearcher) Healthy() bool { return true }

// TestHealthy verifies the conjunction of the collaborator probes.
func TestHealthy(t *testing.T) {
	svc := newTestService(&mockLLM{replies: []string{"x"}}, newMockIndex(), &mockSearcher{healthy: true})
	assert.True(t, svc.Healthy(context.Background()))

	unhealthy := newTestService(&mockLLM{replies: []string{"x"}}, newMockIndex(), &mockSearcher{healthy: false})
	assert.False(t, unhealthy.Healthy(context.Background()))
}
