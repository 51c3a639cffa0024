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
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pica-git0/websearch-rag-bot/pkg/fallback"
	"github.com/pica-git0/websearch-rag-bot/services/llm"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var topicTracer = otel.Tracer("ragbot.rag.topics")

const (
	maxTopics           = 4
	initialSearchK      = 10
	perTopicSearchK     = 3
	perTopicKeepN       = 2
	sentenceFallbackLen = 200
)

// topicErrorAnswer is returned as the answer when synthesis fails. The
// orchestrator never raises past its public boundary.
const topicErrorAnswer = "죄송합니다. 주제 분석 중 오류가 발생하여 답변을 생성하지 못했습니다. 잠시 후 다시 시도해주세요."

// =============================================================================
// Candidate Extraction
// =============================================================================

// Candidate is a lightweight entity guess pulled from search results.
type Candidate struct {
	Name       string
	Type       string
	Confidence float64
}

// CandidateExtractor finds entity-like tokens in text. The default is a
// recall-oriented regex heuristic; swap in a real NER model here without
// touching the orchestrator.
type CandidateExtractor interface {
	ExtractCandidates(text string) []Candidate
}

// RegexExtractor pattern-matches brand, organization and person-like
// tokens. Downstream topic extraction treats the output as hints, not
// facts.
type RegexExtractor struct{}

var candidatePatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	// Latin brand/product-style tokens: capitalized multi-char words.
	{"brand", regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]{2,}(?:\s[A-Z][a-zA-Z0-9]+)?\b`)},
	// Korean organization suffixes.
	{"organization", regexp.MustCompile(`[가-힣A-Za-z0-9]+(?:그룹|전자|회사|컴퍼니|엔터테인먼트|코퍼레이션)`)},
	// Korean person-style references.
	{"person", regexp.MustCompile(`[가-힣]{2,4}\s?(?:대표|회장|감독|선수|작가|가수|배우)`)},
	// Quoted product or title names.
	{"product", regexp.MustCompile(`[「"']([^「」"']{2,20})[」"']`)},
}

func (RegexExtractor) ExtractCandidates(text string) []Candidate {
	seen := make(map[string]bool)
	var candidates []Candidate
	for _, cp := range candidatePatterns {
		for _, match := range cp.pattern.FindAllString(text, 5) {
			name := strings.Trim(match, `「」"' `)
			if len([]rune(name)) < 2 || seen[name] {
				continue
			}
			seen[name] = true
			candidates = append(candidates, Candidate{Name: name, Type: cp.kind, Confidence: 0.5})
			if len(candidates) >= 10 {
				return candidates
			}
		}
	}
	return candidates
}

// =============================================================================
// Topic Orchestrator
// =============================================================================

// TopicSearchMode selects how per-topic research is done: "web" re-runs a
// web search per topic, "vector" queries the short-term collection using
// topic + original query as the similarity text.
type TopicSearchMode string

const (
	TopicSearchWeb    TopicSearchMode = "web"
	TopicSearchVector TopicSearchMode = "vector"
)

// TopicOrchestrator handles deep-analysis requests with a linear state
// machine: initial broad search, LLM topic extraction, bounded per-topic
// research, then a single synthesis call.
type TopicOrchestrator struct {
	llm        llm.Client
	search     Searcher
	fetcher    PageFetcher
	memory     *MemoryStore
	index      vectorstore.Index
	classifier Classifier
	extractor  CandidateExtractor
	mode       TopicSearchMode
}

func NewTopicOrchestrator(
	client llm.Client,
	search Searcher,
	fetcher PageFetcher,
	memory *MemoryStore,
	index vectorstore.Index,
	classifier Classifier,
	mode TopicSearchMode,
) *TopicOrchestrator {
	if mode != TopicSearchVector {
		mode = TopicSearchWeb
	}
	return &TopicOrchestrator{
		llm:        client,
		search:     search,
		fetcher:    fetcher,
		memory:     memory,
		index:      index,
		classifier: classifier,
		extractor:  RegexExtractor{},
		mode:       mode,
	}
}

type researchItem struct {
	Content string
	URL     string
	Score   float64
}

type topicResearch struct {
	Topic string
	Items []researchItem
}

// Respond runs the full topic pipeline and returns the synthesized answer
// plus the accumulated source URLs. It never returns an error: synthesis
// failure yields the fixed apologetic answer with empty sources.
func (t *TopicOrchestrator) Respond(ctx context.Context, question, conversationID string) (string, []string) {
	ctx, span := topicTracer.Start(ctx, "TopicOrchestrator.Respond",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	initial := t.initialSearch(ctx, question, conversationID)

	topics := t.extractTopics(ctx, question, initial)
	span.SetAttributes(attribute.Int("topics.count", len(topics)))
	slog.Info("Extracted topics", "question", question, "topics", topics)

	var research []topicResearch
	var sources []string
	seen := make(map[string]bool)
	for _, topic := range topics {
		tr := t.researchTopic(ctx, topic, question, conversationID)
		research = append(research, tr)
		for _, item := range tr.Items {
			if item.URL != "" && !seen[item.URL] {
				seen[item.URL] = true
				sources = append(sources, item.URL)
			}
		}
	}

	answer, err := t.synthesize(ctx, question, research)
	if err != nil {
		slog.Error("Topic synthesis failed", "error", err)
		return topicErrorAnswer, []string{}
	}
	return answer, sources
}

// initialSearch runs the broad search and persists each hit's snippet into
// the short-term collection so later similarity queries can find it.
func (t *TopicOrchestrator) initialSearch(ctx context.Context, question, conversationID string) []string {
	results := t.search.Search(ctx, question, initialSearchK)
	if len(results) == 0 {
		return nil
	}

	collection := t.memory.EnsureCollection(ctx, conversationID, TierShortTerm)
	now := time.Now().UnixMilli()
	var docs []vectorstore.Document
	var lines []string
	for _, r := range results {
		lines = append(lines, r.Title+" "+r.Snippet)
		if r.Snippet == "" {
			continue
		}
		docs = append(docs, vectorstore.Document{
			Content:        r.Title + "\n" + r.Snippet,
			URL:            r.URL,
			Title:          r.Title,
			Tier:           string(TierWeb),
			ConversationID: conversationID,
			SearchQuery:    question,
			Timestamp:      now,
		})
	}
	if len(docs) > 0 {
		if _, err := t.index.Upsert(ctx, collection, docs); err != nil {
			slog.Warn("Failed to persist initial search snippets", "error", err)
		}
	}
	return lines
}

// extractTopics asks the LLM to decompose the question, falling through a
// ladder: rich prompt with entity and classification hints, then a bare
// prompt, then the raw question as the sole topic.
func (t *TopicOrchestrator) extractTopics(ctx context.Context, question string, initialLines []string) []string {
	corpus := strings.Join(initialLines, "\n")
	candidates := t.extractor.ExtractCandidates(corpus)

	steps := []fallback.Step[[]string]{
		{
			Name: "llm_rich",
			Run: func(ctx context.Context) ([]string, error) {
				classification, _ := t.classifier.Classify(ctx, question)
				prompt := t.richExtractionPrompt(question, candidates, classification)
				raw, err := t.llm.Generate(ctx, prompt, llm.GenerationParams{})
				if err != nil {
					return nil, err
				}
				return parseTopics(raw)
			},
		},
		{
			Name: "llm_simple",
			Run: func(ctx context.Context) ([]string, error) {
				raw, err := t.llm.Generate(ctx, t.simpleExtractionPrompt(question), llm.GenerationParams{})
				if err != nil {
					return nil, err
				}
				return parseTopics(raw)
			},
		},
	}

	topics, _, ok := fallback.TryInOrder(ctx, "topic_extraction", steps)
	if !ok {
		return []string{question}
	}
	return topics
}

func (t *TopicOrchestrator) richExtractionPrompt(question string, candidates []Candidate, classification Classification) string {
	var sb strings.Builder
	sb.WriteString("다음 질문을 조사 가능한 3~4개의 세부 주제로 나눠주세요.\n\n질문: ")
	sb.WriteString(question)

	if len(candidates) > 0 {
		var names []string
		for _, c := range candidates {
			names = append(names, c.Name)
		}
		sb.WriteString("\n\n검색 결과에서 발견된 관련 개체: ")
		sb.WriteString(strings.Join(names, ", "))
	}
	if classification.Category != "" {
		sb.WriteString(fmt.Sprintf("\n\n질문 분류: %s", classification.Category))
		if classification.Subcategory != "" {
			sb.WriteString(" / " + classification.Subcategory)
		}
		if len(classification.Keywords) > 0 {
			sb.WriteString("\n핵심 키워드: " + strings.Join(classification.Keywords, ", "))
		}
	}

	sb.WriteString("\n\n각 주제를 한 줄에 하나씩, 아래 형식으로만 답변해주세요:\n- 주제1\n- 주제2\n- 주제3")
	return sb.String()
}

func (t *TopicOrchestrator) simpleExtractionPrompt(question string) string {
	return fmt.Sprintf(
		"다음 질문을 조사 가능한 3~4개의 세부 주제로 나눠주세요.\n\n질문: %s\n\n각 주제를 한 줄에 하나씩 '-'로 시작해서 답변해주세요.",
		question)
}

var topicLinePrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.):]|주제\s*\d*\s*[:：])\s*`)

// parseTopics turns the model's bullet or colon-delimited lines into at
// most four topic strings. Fewer than one parsed topic is a failure so the
// ladder advances.
func parseTopics(raw string) ([]string, error) {
	var topics []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		stripped := strings.TrimSpace(topicLinePrefix.ReplaceAllString(trimmed, ""))
		if stripped == trimmed {
			// No list marker; accept "이름: 값" style, otherwise it's prose.
			for _, sep := range []string{":", "："} {
				if parts := strings.SplitN(trimmed, sep, 2); len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
					stripped = strings.TrimSpace(parts[1])
					break
				}
			}
			if stripped == trimmed {
				continue
			}
		}
		if len([]rune(stripped)) < 2 {
			continue
		}
		topics = append(topics, stripped)
		if len(topics) == maxTopics {
			break
		}
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics parsed from extraction output")
	}
	return topics, nil
}

// =============================================================================
// Per-Topic Research
// =============================================================================

// interrogativeConcepts maps question words to the concept terms appended
// to per-topic search keywords.
var interrogativeConcepts = []struct {
	pattern  *regexp.Regexp
	concepts string
}{
	{regexp.MustCompile(`왜|(?i)\bwhy\b`), "이유 원인 배경"},
	{regexp.MustCompile(`어떻게|(?i)\bhow\b`), "방법 과정"},
	{regexp.MustCompile(`언제|(?i)\bwhen\b`), "시기 일정"},
	{regexp.MustCompile(`어디|(?i)\bwhere\b`), "위치 장소"},
	{regexp.MustCompile(`누구|누가|(?i)\bwho\b`), "인물 프로필"},
	{regexp.MustCompile(`무엇|뭐|(?i)\bwhat\b`), "정의 특징"},
}

// deriveKeywords combines the topic with concept words inferred from the
// original question's interrogative, falling back to bare nouns.
func deriveKeywords(topic, question string) string {
	for _, ic := range interrogativeConcepts {
		if ic.pattern.MatchString(question) {
			return topic + " " + ic.concepts
		}
	}
	if bare := extractBareKeywords(question); len(bare) > 0 {
		return topic + " " + strings.Join(bare, " ")
	}
	return topic
}

func (t *TopicOrchestrator) researchTopic(ctx context.Context, topic, question, conversationID string) topicResearch {
	keywords := deriveKeywords(topic, question)

	var items []researchItem
	if t.mode == TopicSearchVector {
		items = t.researchFromVector(ctx, topic, question, keywords, conversationID)
	} else {
		items = t.researchFromWeb(ctx, keywords)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > perTopicKeepN {
		items = items[:perTopicKeepN]
	}
	return topicResearch{Topic: topic, Items: items}
}

func (t *TopicOrchestrator) researchFromWeb(ctx context.Context, keywords string) []researchItem {
	results := t.search.Search(ctx, keywords, perTopicSearchK)

	var items []researchItem
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		page := t.fetcher.Fetch(ctx, r.URL)
		content := page.Content
		if content == "" {
			content = r.Snippet
		}
		if content == "" {
			continue
		}
		extracted := extractKeywordSentences(content, keywords)
		items = append(items, researchItem{
			Content: extracted,
			URL:     r.URL,
			Score:   scoreRelevance(extracted, keywords),
		})
	}
	return items
}

func (t *TopicOrchestrator) researchFromVector(ctx context.Context, topic, question, keywords, conversationID string) []researchItem {
	collection := t.memory.EnsureCollection(ctx, conversationID, TierShortTerm)
	hits, err := t.index.SimilaritySearch(ctx, collection, topic+" "+question, perTopicSearchK)
	if err != nil {
		slog.Warn("Per-topic vector search failed", "topic", topic, "error", err)
		return nil
	}

	var items []researchItem
	for _, hit := range hits {
		if hit.Content == "" {
			continue
		}
		extracted := extractKeywordSentences(hit.Content, keywords)
		items = append(items, researchItem{
			Content: extracted,
			URL:     hit.URL,
			Score:   scoreRelevance(extracted, keywords),
		})
	}
	return items
}

var sentenceDelimiter = regexp.MustCompile(`[.!?。]\s*|\n`)

// extractKeywordSentences keeps only sentences containing any keyword
// token (case-insensitive substring). When nothing matches it falls back
// to the first 200 characters.
func extractKeywordSentences(content, keywords string) string {
	tokens := strings.Fields(strings.ToLower(keywords))

	var matched []string
	for _, sentence := range sentenceDelimiter.Split(content, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				matched = append(matched, sentence)
				break
			}
		}
	}
	if len(matched) > 0 {
		return strings.Join(matched, ". ")
	}

	runes := []rune(content)
	if len(runes) > sentenceFallbackLen {
		runes = runes[:sentenceFallbackLen]
	}
	return string(runes)
}

// scoreRelevance scores extracted content: 0.1 per keyword occurrence
// plus 0.5 when the content is substantial.
func scoreRelevance(content, keywords string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, tok := range strings.Fields(strings.ToLower(keywords)) {
		score += 0.1 * float64(strings.Count(lower, tok))
	}
	if len([]rune(content)) > 100 {
		score += 0.5
	}
	return score
}

// =============================================================================
// Synthesis
// =============================================================================

func (t *TopicOrchestrator) synthesize(ctx context.Context, question string, research []topicResearch) (string, error) {
	var sb strings.Builder
	sb.WriteString("다음 질문에 대해 주제별로 조사한 자료입니다.\n\n질문: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	for i, tr := range research {
		sb.WriteString(fmt.Sprintf("### 주제 %d: %s\n", i+1, tr.Topic))
		if len(tr.Items) == 0 {
			sb.WriteString("(조사된 자료 없음)\n\n")
			continue
		}
		for _, item := range tr.Items {
			snippet := item.Content
			if runes := []rune(snippet); len(runes) > structuredSnippetChars {
				snippet = string(runes[:structuredSnippetChars]) + "..."
			}
			sb.WriteString(fmt.Sprintf("- %s (출처: %s)\n", snippet, item.URL))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`위 자료를 바탕으로 아래 마크다운 형식으로 답변을 작성해주세요:

## 요약
(질문에 대한 핵심 답변 요약)

## 주제별 분석
(각 주제마다 소제목을 만들어 분석하고, 근거가 된 출처 URL을 함께 표기)

## 결론
(전체 분석을 종합한 결론)

한국어로 답변해주세요.`)

	return t.llm.Generate(ctx, sb.String(), llm.GenerationParams{})
}
