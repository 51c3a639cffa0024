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
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
)

// SharedPoolCollection is the fallback collection used when a
// per-conversation collection cannot be created. Writes and reads degrade
// to the shared pool instead of failing the request.
const SharedPoolCollection = "RagSharedPool"

var collectionNamePattern = regexp.MustCompile(`[^A-Za-z0-9_]`)

// CollectionName derives the backing collection for (conversationID, tier).
// It is a pure function so the same conversation addresses the same logical
// collection across process restarts. Hyphens become underscores and other
// restricted characters are dropped because the backing store constrains
// identifier syntax (class names must start with an upper-case letter).
func CollectionName(conversationID string, tier Tier) string {
	sanitized := strings.ReplaceAll(conversationID, "-", "_")
	sanitized = collectionNamePattern.ReplaceAllString(sanitized, "")

	suffix := "Short"
	if tier == TierLongTerm {
		suffix = "Long"
	}
	return "Conv_" + sanitized + "_" + suffix
}

// conversationState is everything the store tracks per conversation. The
// mutex serializes transcript and collection mutation for that conversation
// so concurrent requests cannot lose appends.
type conversationState struct {
	mu          sync.Mutex
	transcript  []Turn
	collections map[Tier]string
	lastActive  time.Time
}

// MemoryStore owns the conversation-id to collection and transcript
// mapping. Collections are created lazily on first access.
//
// # Thread Safety
//
// Safe for concurrent use. The store-level mutex guards the conversation
// map; per-conversation mutation is serialized by the conversation's own
// mutex.
type MemoryStore struct {
	index    vectorstore.Index
	maxTurns int

	mu            sync.Mutex
	conversations map[string]*conversationState
}

// NewMemoryStore builds a store over the given index. maxTurns bounds the
// in-memory transcript (oldest turns dropped); <= 0 disables the cap.
func NewMemoryStore(index vectorstore.Index, maxTurns int) *MemoryStore {
	return &MemoryStore{
		index:         index,
		maxTurns:      maxTurns,
		conversations: make(map[string]*conversationState),
	}
}

func (m *MemoryStore) state(conversationID string) *conversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.conversations[conversationID]
	if !ok {
		st = &conversationState{
			collections: make(map[Tier]string),
			lastActive:  time.Now(),
		}
		m.conversations[conversationID] = st
	}
	return st
}

// EnsureCollection resolves the collection for (conversationID, tier),
// creating it if needed. Creation failures fall back to the shared pool
// rather than propagating; the second call for the same pair never errors.
func (m *MemoryStore) EnsureCollection(ctx context.Context, conversationID string, tier Tier) string {
	st := m.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastActive = time.Now()

	if name, ok := st.collections[tier]; ok {
		return name
	}

	name := CollectionName(conversationID, tier)
	if err := m.index.EnsureCollection(ctx, name); err != nil {
		slog.Warn("Failed to ensure collection, falling back to shared pool",
			"conversation_id", conversationID,
			"tier", string(tier),
			"collection", name,
			"error", err)
		if err := m.index.EnsureCollection(ctx, SharedPoolCollection); err != nil {
			slog.Error("Failed to ensure shared pool collection", "error", err)
		}
		name = SharedPoolCollection
	}

	st.collections[tier] = name
	return name
}

// Transcript returns a copy of the conversation's transcript.
func (m *MemoryStore) Transcript(conversationID string) []Turn {
	st := m.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Turn, len(st.transcript))
	copy(out, st.transcript)
	return out
}

// AppendTurn records one transcript entry, dropping the oldest turns once
// the cap is exceeded.
func (m *MemoryStore) AppendTurn(conversationID, role, text string) {
	st := m.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastActive = time.Now()
	st.transcript = append(st.transcript, Turn{Role: role, Text: text})
	if m.maxTurns > 0 && len(st.transcript) > m.maxTurns {
		st.transcript = st.transcript[len(st.transcript)-m.maxTurns:]
	}
}

// Clear drops the transcript only; backing collections are untouched.
func (m *MemoryStore) Clear(conversationID string) {
	st := m.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.transcript = nil
}

// DeleteConversation drops the transcript, both tier collections and the
// cache entry. The shared pool is never deleted.
func (m *MemoryStore) DeleteConversation(ctx context.Context, conversationID string) {
	m.mu.Lock()
	st, ok := m.conversations[conversationID]
	delete(m.conversations, conversationID)
	m.mu.Unlock()

	names := map[Tier]string{
		TierShortTerm: CollectionName(conversationID, TierShortTerm),
		TierLongTerm:  CollectionName(conversationID, TierLongTerm),
	}
	if ok {
		st.mu.Lock()
		for tier, name := range st.collections {
			names[tier] = name
		}
		st.mu.Unlock()
	}

	for tier, name := range names {
		if name == SharedPoolCollection {
			continue
		}
		if err := m.index.DeleteCollection(ctx, name); err != nil {
			slog.Warn("Failed to delete collection",
				"conversation_id", conversationID,
				"tier", string(tier),
				"collection", name,
				"error", err)
		}
	}
}

// IdleConversations returns the ids whose last activity is older than
// cutoff. Used by the retention sweeper.
func (m *MemoryStore) IdleConversations(cutoff time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var idle []string
	for id, st := range m.conversations {
		st.mu.Lock()
		last := st.lastActive
		st.mu.Unlock()
		if last.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

// ConversationCount reports how many conversations are live in memory.
func (m *MemoryStore) ConversationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}
