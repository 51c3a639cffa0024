// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateIndex implements Index on top of a Weaviate instance. Vectors are
// computed client-side (Vectorizer "none") by the configured embedder.
type WeaviateIndex struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

func NewWeaviateIndex(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateIndex {
	return &WeaviateIndex{client: client, embedder: embedder}
}

// evidenceClass builds the class schema for one evidence collection.
func evidenceClass(name string) *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       name,
		Description: "A chunk of retrieved evidence with provenance metadata.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text.",
				Tokenization: "word",
			},
			{
				Name:            "url",
				DataType:        []string{"text"},
				Description:     "Source URL the chunk was fetched from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Title of the source page.",
				Tokenization: "word",
			},
			{
				Name:            "tier",
				DataType:        []string{"text"},
				Description:     "Evidence origin: short_term, long_term or web.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "Conversation the chunk belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "search_query",
				DataType:        []string{"text"},
				Description:     "The query that produced this chunk, if any.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the chunk was stored.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Position of this chunk within its source document.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureCollection checks for the class first so a concurrent or repeated
// call never fails with a duplicate-class error.
func (w *WeaviateIndex) EnsureCollection(ctx context.Context, name string) error {
	_, err := w.client.Schema().ClassGetter().WithClassName(name).Do(ctx)
	if err == nil {
		slog.Debug("Collection already exists", "class", name)
		return nil
	}

	slog.Info("Collection not found, creating it", "class", name)
	if err := w.client.Schema().ClassCreator().WithClass(evidenceClass(name)).Do(ctx); err != nil {
		// A concurrent creator may have won the race; re-check before failing.
		if _, getErr := w.client.Schema().ClassGetter().WithClassName(name).Do(ctx); getErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (w *WeaviateIndex) Upsert(ctx context.Context, collection string, docs []Document) (int, error) {
	written := 0
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		vec, err := w.embedder.Embed(ctx, doc.Content)
		if err != nil {
			slog.Warn("Failed to embed document, skipping", "collection", collection, "url", doc.URL, "error", err)
			continue
		}
		_, err = w.client.Data().Creator().
			WithClassName(collection).
			WithProperties(map[string]interface{}{
				"content":         doc.Content,
				"url":             doc.URL,
				"title":           doc.Title,
				"tier":            doc.Tier,
				"conversation_id": doc.ConversationID,
				"search_query":    doc.SearchQuery,
				"timestamp":       doc.Timestamp,
				"chunk_index":     doc.ChunkIndex,
			}).
			WithVector(vec).
			Do(ctx)
		if err != nil {
			slog.Warn("Failed to store document, skipping", "collection", collection, "url", doc.URL, "error", err)
			continue
		}
		written++
	}
	if written == 0 && len(docs) > 0 {
		return 0, fmt.Errorf("no documents written to %s", collection)
	}
	return written, nil
}

// evidenceHit mirrors the GraphQL response shape for one evidence object.
type evidenceHit struct {
	Content        string  `json:"content"`
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	Tier           string  `json:"tier"`
	ConversationID string  `json:"conversation_id"`
	SearchQuery    string  `json:"search_query"`
	Timestamp      float64 `json:"timestamp"`
	ChunkIndex     int     `json:"chunk_index"`
	Additional     struct {
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}

func (w *WeaviateIndex) SimilaritySearch(ctx context.Context, collection, query string, k int) ([]Document, error) {
	vec, err := w.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "url"},
		{Name: "title"},
		{Name: "tier"},
		{Name: "conversation_id"},
		{Name: "search_query"},
		{Name: "timestamp"},
		{Name: "chunk_index"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	resp, err := w.client.GraphQL().Get().
		WithClassName(collection).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("similarity search on %s failed: %w", collection, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("similarity search on %s returned a GraphQL error: %s",
			collection, resp.Errors[0].Message)
	}

	// The class name is dynamic, so decode Get into a map keyed by class.
	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var parsed struct {
		Get map[string][]evidenceHit `json:"Get"`
	}
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}

	hits := parsed.Get[collection]
	docs := make([]Document, 0, len(hits))
	for _, hit := range hits {
		score := 0.0
		if hit.Additional.Certainty != nil {
			score = *hit.Additional.Certainty
		}
		docs = append(docs, Document{
			Content:        hit.Content,
			URL:            hit.URL,
			Title:          hit.Title,
			Tier:           hit.Tier,
			ConversationID: hit.ConversationID,
			SearchQuery:    hit.SearchQuery,
			Timestamp:      int64(hit.Timestamp),
			ChunkIndex:     hit.ChunkIndex,
			Score:          score,
		})
	}
	return docs, nil
}

func (w *WeaviateIndex) DeleteCollection(ctx context.Context, name string) error {
	if err := w.client.Schema().ClassDeleter().WithClassName(name).Do(ctx); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

func (w *WeaviateIndex) Ready(ctx context.Context) bool {
	live, err := w.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		slog.Warn("Weaviate liveness probe failed", "error", err)
		return false
	}
	return live
}

var _ Index = (*WeaviateIndex)(nil)
