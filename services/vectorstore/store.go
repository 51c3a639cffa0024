// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore provides the named-collection embedding index the
// retrieval pipeline stores and searches evidence in.
//
// # Description
//
// An Index owns named collections of embedded documents. Collections are
// created lazily and idempotently; similarity search embeds the query text
// client-side and runs a nearest-neighbour lookup. Two implementations are
// provided: a Weaviate-backed index for production and an in-process index
// used for tests and for running without a vector database.
package vectorstore

import "context"

// Document is one chunk of evidence with enough metadata to reconstruct
// its provenance (url + tier) for source attribution.
type Document struct {
	Content        string  `json:"content"`
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Tier           string  `json:"tier"`
	ConversationID string  `json:"conversation_id"`
	SearchQuery    string  `json:"search_query"`
	Timestamp      int64   `json:"timestamp"`
	ChunkIndex     int     `json:"chunk_index"`
	Score          float64 `json:"score"`
}

// Index is the capability interface the orchestration core consumes.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Concurrent first-access
// races on the same collection are resolved by the check-then-create
// protocol inside EnsureCollection, not by assuming a single writer.
type Index interface {
	// EnsureCollection is an idempotent get-or-create. It must check
	// existence before creating so a second call never errors.
	EnsureCollection(ctx context.Context, name string) error

	// Upsert embeds and stores the documents, returning how many were
	// written. Per-document failures are logged and skipped.
	Upsert(ctx context.Context, collection string, docs []Document) (int, error)

	// SimilaritySearch embeds query and returns the k nearest documents.
	SimilaritySearch(ctx context.Context, collection, query string, k int) ([]Document, error)

	// DeleteCollection drops the collection and all of its documents.
	DeleteCollection(ctx context.Context, name string) error

	// Ready reports whether the backing store answers health probes.
	Ready(ctx context.Context) bool
}

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
