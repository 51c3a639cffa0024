// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index used when no vector database is
// configured, and by tests. Search is a brute-force cosine scan, which is
// fine at conversation scale.
type MemoryIndex struct {
	embedder EmbeddingProvider

	mu          sync.RWMutex
	collections map[string][]storedDocument
}

type storedDocument struct {
	doc    Document
	vector []float32
}

func NewMemoryIndex(embedder EmbeddingProvider) *MemoryIndex {
	return &MemoryIndex{
		embedder:    embedder,
		collections: make(map[string][]storedDocument),
	}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = nil
	}
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, collection string, docs []Document) (int, error) {
	written := 0
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		vec, err := m.embedder.Embed(ctx, doc.Content)
		if err != nil {
			continue
		}
		m.mu.Lock()
		m.collections[collection] = append(m.collections[collection], storedDocument{doc: doc, vector: vec})
		m.mu.Unlock()
		written++
	}
	if written == 0 && len(docs) > 0 {
		return 0, fmt.Errorf("no documents written to %s", collection)
	}
	return written, nil
}

func (m *MemoryIndex) SimilaritySearch(ctx context.Context, collection, query string, k int) ([]Document, error) {
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	m.mu.RLock()
	stored := make([]storedDocument, len(m.collections[collection]))
	copy(stored, m.collections[collection])
	m.mu.RUnlock()

	scored := make([]Document, 0, len(stored))
	for _, s := range stored {
		doc := s.doc
		doc.Score = cosine(queryVec, s.vector)
		scored = append(scored, doc)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *MemoryIndex) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryIndex) Ready(_ context.Context) bool { return true }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Index = (*MemoryIndex)(nil)
