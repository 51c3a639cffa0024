// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var fusionTracer = otel.Tracer("ragbot.rag.fusion")

// noContextPlaceholder replaces an empty context block so the LLM never
// receives a blank evidence section, which produces degenerate answers.
const noContextPlaceholder = "관련 정보를 찾을 수 없습니다. 구체적인 질문을 해주시면 더 정확한 답변을 드릴 수 있습니다."

// Fusion retrieves from short-term and long-term memory, optionally runs
// a web search round first, and assembles the ranked evidence bundle.
//
// Failure semantics: every sub-step fails soft. A broken collection,
// search backend or fetch is logged and contributes zero results; Gather
// never returns an error. The worst case is an empty bundle with all-zero
// provenance counts.
type Fusion struct {
	memory  *MemoryStore
	index   vectorstore.Index
	search  Searcher
	fetcher PageFetcher

	topK          int
	webResults    int
	maxConcurrent int
}

func NewFusion(memory *MemoryStore, index vectorstore.Index, search Searcher, fetcher PageFetcher) *Fusion {
	return &Fusion{
		memory:        memory,
		index:         index,
		search:        search,
		fetcher:       fetcher,
		topK:          3,
		webResults:    5,
		maxConcurrent: 4,
	}
}

// Gather runs one retrieval round for message. Merge order is fixed:
// short-term results first, then long-term, encoding the
// recency-over-history priority the prompt relies on. Sources are
// deduplicated by exact URL, first seen wins.
func (f *Fusion) Gather(ctx context.Context, message, conversationID string, allowSearch bool) ContextBundle {
	ctx, span := fusionTracer.Start(ctx, "Fusion.Gather",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Bool("fusion.allow_search", allowSearch)))
	defer span.End()

	var bundle ContextBundle
	seen := make(map[string]bool)
	addSource := func(url string) {
		if url != "" && !seen[url] {
			seen[url] = true
			bundle.Sources = append(bundle.Sources, url)
		}
	}

	if allowSearch {
		indexed := f.searchAndIndex(ctx, message, conversationID)
		bundle.Counts.WebSearch = len(indexed)
		for _, url := range indexed {
			addSource(url)
		}
	}

	shortDocs := f.queryTier(ctx, message, conversationID, TierShortTerm)
	longDocs := f.queryTier(ctx, message, conversationID, TierLongTerm)
	bundle.Counts.ShortTermMemory = len(shortDocs)
	bundle.Counts.LongTermMemory = len(longDocs)

	bundle.Documents = append(bundle.Documents, shortDocs...)
	bundle.Documents = append(bundle.Documents, longDocs...)
	for _, doc := range bundle.Documents {
		addSource(doc.URL)
	}

	span.SetAttributes(
		attribute.Int("fusion.short_term", bundle.Counts.ShortTermMemory),
		attribute.Int("fusion.long_term", bundle.Counts.LongTermMemory),
		attribute.Int("fusion.web", bundle.Counts.WebSearch),
		attribute.Int("fusion.sources", len(bundle.Sources)))
	return bundle
}

// searchAndIndex performs the web round: search, fetch each hit, chunk
// non-empty content and upsert it into the conversation's short-term
// collection. Returns the successfully indexed URLs.
func (f *Fusion) searchAndIndex(ctx context.Context, message, conversationID string) []string {
	results := f.search.Search(ctx, message, f.webResults)
	if len(results) == 0 {
		return nil
	}

	collection := f.memory.EnsureCollection(ctx, conversationID, TierShortTerm)
	titles := make(map[string]string, len(results))
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			urls = append(urls, r.URL)
			titles[r.URL] = r.Title
		}
	}

	var indexed []string
	for _, page := range f.fetcher.FetchMultiple(ctx, urls, f.maxConcurrent) {
		title := page.Title
		if title == "" {
			title = titles[page.URL]
		}

		now := time.Now().UnixMilli()
		var docs []vectorstore.Document
		for i, chunk := range chunkText(page.Content) {
			docs = append(docs, vectorstore.Document{
				Content:        chunk,
				URL:            page.URL,
				Title:          title,
				Tier:           string(TierWeb),
				ConversationID: conversationID,
				SearchQuery:    message,
				Timestamp:      now,
				ChunkIndex:     i,
			})
		}
		if len(docs) == 0 {
			continue
		}
		if _, err := f.index.Upsert(ctx, collection, docs); err != nil {
			slog.Warn("Failed to index fetched page",
				"url", page.URL,
				"collection", collection,
				"error", err)
			continue
		}
		indexed = append(indexed, page.URL)
	}
	return indexed
}

// queryTier runs one similarity search, keeping only non-empty results.
// Errors degrade to zero results for the tier.
func (f *Fusion) queryTier(ctx context.Context, message, conversationID string, tier Tier) []vectorstore.Document {
	collection := f.memory.EnsureCollection(ctx, conversationID, tier)
	hits, err := f.index.SimilaritySearch(ctx, collection, message, f.topK)
	if err != nil {
		slog.Warn("Similarity search failed for tier",
			"tier", string(tier),
			"collection", collection,
			"error", err)
		return nil
	}

	docs := make([]vectorstore.Document, 0, len(hits))
	for _, hit := range hits {
		if hit.Content == "" {
			continue
		}
		if hit.Tier == "" {
			hit.Tier = string(tier)
		}
		docs = append(docs, hit)
	}
	return docs
}
