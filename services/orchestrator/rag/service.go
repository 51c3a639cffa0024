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
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pica-git0/websearch-rag-bot/services/llm"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var serviceTracer = otel.Tracer("ragbot.rag.service")

// emptyMessageGuidance is the fixed reply for empty or whitespace-only
// messages. Not an error: the full tuple shape is returned with all-zero
// provenance counts.
const emptyMessageGuidance = "메시지를 입력해주세요. 구체적인 질문을 주시면 더 정확한 답변을 드릴 수 있습니다."

// Config holds the pipeline knobs the orchestrator honors.
type Config struct {
	// TopicSearchMode selects per-topic research strategy: "web" (default)
	// re-searches the web per topic, "vector" queries short-term memory.
	TopicSearchMode TopicSearchMode

	// MaxTranscriptTurns bounds the in-memory transcript per conversation.
	// Oldest turns are dropped past the cap; <= 0 keeps the default.
	MaxTranscriptTurns int
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.TopicSearchMode != TopicSearchVector {
		cfg.TopicSearchMode = TopicSearchWeb
	}
	if cfg.MaxTranscriptTurns <= 0 {
		cfg.MaxTranscriptTurns = 200
	}
	return cfg
}

// ChatResult is the full response tuple every answer mode returns.
type ChatResult struct {
	Answer         string
	Sources        []string
	ConversationID string
	ContextInfo    ProvenanceCounts
}

// HistoryPair is one user/assistant exchange from the transcript.
type HistoryPair struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Service is the conversation orchestrator façade. It sequences the gate,
// fusion, composition and topic pipelines per request and owns
// conversation-id generation.
//
// # Thread Safety
//
// Safe for concurrent use; per-conversation mutation is serialized inside
// the MemoryStore.
type Service struct {
	config   Config
	memory   *MemoryStore
	fusion   *Fusion
	composer *Composer
	topics   *TopicOrchestrator
	search   Searcher
	fetcher  PageFetcher
	index    vectorstore.Index
}

// NewService wires the pipeline from its collaborators.
func NewService(client llm.Client, index vectorstore.Index, search Searcher, fetcher PageFetcher, cfg Config) *Service {
	cfg = applyConfigDefaults(cfg)

	memory := NewMemoryStore(index, cfg.MaxTranscriptTurns)
	classifier := NewLLMClassifier(client)

	return &Service{
		config:   cfg,
		memory:   memory,
		fusion:   NewFusion(memory, index, search, fetcher),
		composer: NewComposer(client, memory, index),
		topics:   NewTopicOrchestrator(client, search, fetcher, memory, index, classifier, cfg.TopicSearchMode),
		search:   search,
		fetcher:  fetcher,
		index:    index,
	}
}

// Memory exposes the store for the retention sweeper.
func (s *Service) Memory() *MemoryStore { return s.memory }

// resolveConversationID returns the id or generates a fresh one.
func resolveConversationID(conversationID string) string {
	if conversationID == "" {
		return uuid.NewString()
	}
	return conversationID
}

// recoverToResult converts a panic into a degraded-but-valid result. The
// façade is the only layer allowed to do this conversion; the error is
// surfaced so the HTTP layer can answer 500.
func recoverToResult(result *ChatResult, err *error, conversationID string) {
	if r := recover(); r != nil {
		slog.Error("Unhandled panic in conversation orchestrator", "panic", r)
		*err = fmt.Errorf("unhandled orchestrator error: %v", r)
		*result = ChatResult{
			Answer:         fmt.Sprintf("죄송합니다. 오류가 발생했습니다: %v", r),
			Sources:        []string{},
			ConversationID: resolveConversationID(conversationID),
		}
	}
}

// Chat is the plain conversational mode: gate, fusion and one completion,
// without transcript memory or turn persistence.
func (s *Service) Chat(ctx context.Context, message, conversationID string, useWebSearch bool) (result ChatResult, err error) {
	defer recoverToResult(&result, &err, conversationID)

	ctx, span := serviceTracer.Start(ctx, "Service.Chat")
	defer span.End()

	conversationID = resolveConversationID(conversationID)
	if strings.TrimSpace(message) == "" {
		return s.guidanceResult(conversationID), nil
	}

	allowSearch := useWebSearch && ShouldSearch(message)
	bundle := s.fusion.Gather(ctx, message, conversationID, allowSearch)

	answer, genErr := s.composer.Conversational(ctx, message, bundle, nil)
	if genErr != nil {
		slog.Error("LLM completion failed", "error", genErr)
		answer = fmt.Sprintf("죄송합니다. 오류가 발생했습니다: %v", genErr)
	}

	return s.finish(span, answer, bundle, conversationID), nil
}

// ChatWithMemory is the full pipeline: gate decision, fusion, transcript-
// aware composition, then persistence of the finished turn to both tiers.
func (s *Service) ChatWithMemory(ctx context.Context, message, conversationID string, useWebSearch bool) (result ChatResult, err error) {
	defer recoverToResult(&result, &err, conversationID)

	ctx, span := serviceTracer.Start(ctx, "Service.ChatWithMemory",
		trace.WithAttributes(attribute.Bool("chat.use_web_search", useWebSearch)))
	defer span.End()

	conversationID = resolveConversationID(conversationID)
	if strings.TrimSpace(message) == "" {
		return s.guidanceResult(conversationID), nil
	}

	allowSearch := useWebSearch && ShouldSearch(message)
	span.SetAttributes(attribute.Bool("chat.search_gate", allowSearch))

	transcript := s.memory.Transcript(conversationID)
	bundle := s.fusion.Gather(ctx, message, conversationID, allowSearch)

	answer, genErr := s.composer.Conversational(ctx, message, bundle, transcript)
	if genErr != nil {
		slog.Error("LLM completion failed", "error", genErr)
		answer = fmt.Sprintf("죄송합니다. 오류가 발생했습니다: %v", genErr)
	} else {
		s.composer.PersistTurn(ctx, conversationID, message, answer, bundle.Sources)
	}

	return s.finish(span, answer, bundle, conversationID), nil
}

// StructuredResponse produces the fixed-skeleton markdown analysis.
func (s *Service) StructuredResponse(ctx context.Context, message, conversationID string, useWebSearch bool) (result ChatResult, err error) {
	defer recoverToResult(&result, &err, conversationID)

	ctx, span := serviceTracer.Start(ctx, "Service.StructuredResponse")
	defer span.End()

	conversationID = resolveConversationID(conversationID)
	if strings.TrimSpace(message) == "" {
		return s.guidanceResult(conversationID), nil
	}

	allowSearch := useWebSearch && ShouldSearch(message)
	transcript := s.memory.Transcript(conversationID)
	bundle := s.fusion.Gather(ctx, message, conversationID, allowSearch)

	answer, genErr := s.composer.Structured(ctx, message, bundle, transcript)
	if genErr != nil {
		slog.Error("LLM completion failed", "error", genErr)
		answer = fmt.Sprintf("죄송합니다. 오류가 발생했습니다: %v", genErr)
	} else {
		s.composer.PersistTurn(ctx, conversationID, message, answer, bundle.Sources)
	}

	return s.finish(span, answer, bundle, conversationID), nil
}

// TopicBasedResponse runs the deep-analysis topic pipeline.
func (s *Service) TopicBasedResponse(ctx context.Context, message, conversationID string) (result ChatResult, err error) {
	defer recoverToResult(&result, &err, conversationID)

	ctx, span := serviceTracer.Start(ctx, "Service.TopicBasedResponse")
	defer span.End()

	conversationID = resolveConversationID(conversationID)
	if strings.TrimSpace(message) == "" {
		return s.guidanceResult(conversationID), nil
	}

	answer, sources := s.topics.Respond(ctx, message, conversationID)
	if sources == nil {
		sources = []string{}
	}
	s.composer.PersistTurn(ctx, conversationID, message, answer, sources)

	span.SetAttributes(attribute.Int("chat.sources", len(sources)))
	return ChatResult{
		Answer:         answer,
		Sources:        sources,
		ConversationID: conversationID,
		ContextInfo:    ProvenanceCounts{WebSearch: len(sources)},
	}, nil
}

func (s *Service) guidanceResult(conversationID string) ChatResult {
	return ChatResult{
		Answer:         emptyMessageGuidance,
		Sources:        []string{},
		ConversationID: conversationID,
	}
}

func (s *Service) finish(span trace.Span, answer string, bundle ContextBundle, conversationID string) ChatResult {
	sources := bundle.Sources
	if sources == nil {
		sources = []string{}
	}
	span.SetAttributes(attribute.Int("chat.sources", len(sources)))
	return ChatResult{
		Answer:         answer,
		Sources:        sources,
		ConversationID: conversationID,
		ContextInfo:    bundle.Counts,
	}
}

// IndexURLs fetches, chunks and indexes each URL into the conversation's
// short-term collection, or the shared pool when no conversation is
// given. Returns how many URLs produced indexed content.
func (s *Service) IndexURLs(ctx context.Context, urls []string, conversationID string) int {
	ctx, span := serviceTracer.Start(ctx, "Service.IndexURLs",
		trace.WithAttributes(attribute.Int("index.urls", len(urls))))
	defer span.End()

	collection := SharedPoolCollection
	if conversationID != "" {
		collection = s.memory.EnsureCollection(ctx, conversationID, TierShortTerm)
	} else if err := s.index.EnsureCollection(ctx, SharedPoolCollection); err != nil {
		slog.Error("Failed to ensure shared pool collection", "error", err)
		return 0
	}

	indexed := 0
	for _, url := range urls {
		page := s.fetcher.Fetch(ctx, url)
		if page.Content == "" {
			slog.Warn("Skipping URL with no fetchable content",
				"url", url,
				"error", page.Metadata["error"])
			continue
		}

		now := time.Now().UnixMilli()
		var docs []vectorstore.Document
		for i, chunk := range chunkText(page.Content) {
			docs = append(docs, vectorstore.Document{
				Content:        chunk,
				URL:            url,
				Title:          page.Title,
				Tier:           string(TierWeb),
				ConversationID: conversationID,
				Timestamp:      now,
				ChunkIndex:     i,
			})
		}
		if _, err := s.index.Upsert(ctx, collection, docs); err != nil {
			slog.Warn("Failed to index URL", "url", url, "error", err)
			continue
		}
		indexed++
	}

	span.SetAttributes(attribute.Int("index.indexed", indexed))
	return indexed
}

// History returns the transcript folded into user/assistant pairs.
func (s *Service) History(conversationID string) []HistoryPair {
	transcript := s.memory.Transcript(conversationID)

	pairs := make([]HistoryPair, 0, len(transcript)/2)
	for i := 0; i+1 < len(transcript); i += 2 {
		pairs = append(pairs, HistoryPair{
			User:      transcript[i].Text,
			Assistant: transcript[i+1].Text,
		})
	}
	return pairs
}

// DeleteConversation drops the transcript and both backing collections.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) {
	s.memory.DeleteConversation(ctx, conversationID)
}

// Healthy reports whether both collaborators answer their health probes.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.index.Ready(ctx) && s.search.Healthy()
}
