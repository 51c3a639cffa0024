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

	"github.com/pica-git0/websearch-rag-bot/services/llm"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
)

const (
	// Per-document render budgets keep the prompt bounded.
	conversationalSnippetChars = 500
	structuredSnippetChars     = 800

	// Transcript turns included in a prompt.
	conversationalTranscriptTurns = 6
	structuredTranscriptTurns     = 4
)

// Composer builds the final LLM prompt for the conversational and
// structured modes, invokes the model and persists the finished turn to
// both memory tiers.
type Composer struct {
	llm    llm.Client
	memory *MemoryStore
	index  vectorstore.Index
}

func NewComposer(client llm.Client, memory *MemoryStore, index vectorstore.Index) *Composer {
	return &Composer{llm: client, memory: memory, index: index}
}

// renderContext renders the evidence documents as title/url/content
// blocks, truncated per document. An empty bundle renders the fixed
// placeholder instead of a blank context section.
func renderContext(docs []vectorstore.Document, snippetChars int) string {
	if len(docs) == 0 {
		return noContextPlaceholder
	}

	var parts []string
	for _, doc := range docs {
		content := doc.Content
		truncated := false
		if runes := []rune(content); len(runes) > snippetChars {
			content = string(runes[:snippetChars])
			truncated = true
		}
		part := fmt.Sprintf("제목: %s\nURL: %s\n내용: %s", doc.Title, doc.URL, content)
		if truncated {
			part += "..."
		}
		parts = append(parts, part+"\n")
	}
	return strings.Join(parts, "\n")
}

// renderTranscript renders the most recent maxTurns entries.
func renderTranscript(transcript []Turn, maxTurns int) string {
	if len(transcript) == 0 {
		return ""
	}
	if len(transcript) > maxTurns {
		transcript = transcript[len(transcript)-maxTurns:]
	}

	var sb strings.Builder
	for _, turn := range transcript {
		label := "사용자"
		if turn.Role == "assistant" {
			label = "어시스턴트"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Conversational builds the plain chat prompt and invokes the model. The
// instructions prioritize short-term over long-term over web evidence and
// tell the model to resolve anaphora ("그거", "that") via the transcript.
func (c *Composer) Conversational(ctx context.Context, message string, bundle ContextBundle, transcript []Turn) (string, error) {
	var sb strings.Builder

	if history := renderTranscript(transcript, conversationalTranscriptTurns); history != "" {
		sb.WriteString("다음은 지금까지의 대화입니다:\n\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}

	sb.WriteString("다음은 사용자의 질문과 관련된 정보입니다")
	sb.WriteString(fmt.Sprintf(" (단기 기억 %d건, 장기 기억 %d건, 웹 검색 %d건):\n\n",
		bundle.Counts.ShortTermMemory, bundle.Counts.LongTermMemory, bundle.Counts.WebSearch))
	sb.WriteString(renderContext(bundle.Documents, conversationalSnippetChars))
	sb.WriteString("\n\n사용자 질문: ")
	sb.WriteString(message)
	sb.WriteString(`

위의 정보를 바탕으로 사용자의 질문에 답변해주세요. 정보의 우선순위는 단기 기억, 장기 기억, 웹 검색 순입니다. "그거", "이거", "that" 같은 표현은 위 대화 내용을 참고해 해석해주세요. 정보가 충분하지 않다면 그 점을 명시하고, 가능한 한 도움이 되는 답변을 제공해주세요. 한국어로 답변해주세요.`)

	return c.llm.Generate(ctx, sb.String(), llm.GenerationParams{})
}

// Structured builds the fixed-skeleton analysis prompt: summary, two or
// three labeled sub-analyses and a conclusion. Provenance counts are
// omitted in this mode.
func (c *Composer) Structured(ctx context.Context, message string, bundle ContextBundle, transcript []Turn) (string, error) {
	var sb strings.Builder

	if history := renderTranscript(transcript, structuredTranscriptTurns); history != "" {
		sb.WriteString("다음은 지금까지의 대화입니다:\n\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}

	sb.WriteString("다음은 사용자의 질문과 관련된 정보입니다:\n\n")
	sb.WriteString(renderContext(bundle.Documents, structuredSnippetChars))
	sb.WriteString("\n\n사용자 질문: ")
	sb.WriteString(message)
	sb.WriteString(`

위의 정보를 바탕으로 아래 마크다운 형식에 맞춰 분석해주세요:

## 요약
(핵심 내용을 2~3문장으로 요약)

## 세부 분석
(2~3개의 소제목으로 나누어 분석, 각 항목에 근거 URL 표기)

## 결론 및 시사점
(분석을 바탕으로 한 결론)

한국어로 답변해주세요.`)

	return c.llm.Generate(ctx, sb.String(), llm.GenerationParams{})
}

// PersistTurn appends the exchange to the transcript and writes it to the
// long-term collection in the background. The write embeds and chunks, so
// it must not block the response path.
func (c *Composer) PersistTurn(ctx context.Context, conversationID, question, answer string, sources []string) {
	c.memory.AppendTurn(conversationID, "user", question)
	c.memory.AppendTurn(conversationID, "assistant", answer)

	collection := c.memory.EnsureCollection(ctx, conversationID, TierLongTerm)

	go func() {
		// Detached from the request context so an answered request does
		// not cancel its own memory write.
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		record := fmt.Sprintf("질문: %s\n답변: %s", question, answer)
		if len(sources) > 0 {
			record += "\n출처: " + strings.Join(sources, ", ")
		}

		now := time.Now().UnixMilli()
		var docs []vectorstore.Document
		for i, chunk := range chunkText(record) {
			docs = append(docs, vectorstore.Document{
				Content:        chunk,
				Tier:           string(TierLongTerm),
				ConversationID: conversationID,
				SearchQuery:    question,
				Timestamp:      now,
				ChunkIndex:     i,
			})
		}
		if _, err := c.index.Upsert(bgCtx, collection, docs); err != nil {
			slog.Warn("Failed to persist turn to long-term memory",
				"conversation_id", conversationID,
				"collection", collection,
				"error", err)
			return
		}
		slog.Debug("Persisted turn to long-term memory",
			"conversation_id", conversationID,
			"chunks", len(docs))
	}()
}
