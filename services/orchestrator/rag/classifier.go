// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pica-git0/websearch-rag-bot/services/llm"
)

// Classification describes what kind of thing a query asks about and how
// to search for it. Used by topic extraction to shape the decomposition.
type Classification struct {
	Category       string   `json:"category"`
	Subcategory    string   `json:"subcategory"`
	Confidence     float64  `json:"confidence"`
	SearchStrategy string   `json:"search_strategy"`
	Keywords       []string `json:"keywords"`
}

// Classifier assigns a category to a query. Implementations must not
// block the pipeline: errors fall through to the rule-based classifier.
type Classifier interface {
	Classify(ctx context.Context, query string) (Classification, error)
}

// =============================================================================
// Rule-Based Classifier
// =============================================================================

type categoryRule struct {
	category    string
	subcategory string
	strategy    string
	pattern     *regexp.Regexp
}

// RuleClassifier is a deterministic regex classifier over fixed category
// patterns. It is both a standalone implementation and the hard fallback
// when the LLM classifier fails or returns unparsable output.
type RuleClassifier struct {
	rules []categoryRule
}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{rules: []categoryRule{
		{
			category: "person", subcategory: "individual", strategy: "profile_search",
			pattern: regexp.MustCompile(`(?i)\b(who|singer|actor|author|ceo|president)\b|누구|가수|배우|작가|대표|선수|인물`),
		},
		{
			category: "animal", subcategory: "species", strategy: "encyclopedic_search",
			pattern: regexp.MustCompile(`(?i)\b(animal|dog|cat|bird|species)\b|동물|강아지|고양이|새|품종`),
		},
		{
			category: "organization", subcategory: "company", strategy: "corporate_search",
			pattern: regexp.MustCompile(`(?i)\b(company|corporation|startup|brand|organization)\b|회사|기업|브랜드|단체|스타트업`),
		},
		{
			category: "location", subcategory: "place", strategy: "local_search",
			pattern: regexp.MustCompile(`(?i)\b(where|city|country|region|place)\b|어디|도시|나라|지역|장소|근처`),
		},
		{
			category: "event", subcategory: "occurrence", strategy: "news_search",
			pattern: regexp.MustCompile(`(?i)\b(event|festival|concert|election|accident)\b|행사|축제|콘서트|선거|사건|사고`),
		},
		{
			category: "object", subcategory: "product", strategy: "product_search",
			pattern: regexp.MustCompile(`(?i)\b(product|phone|laptop|device|item)\b|제품|상품|폰|노트북|기기|물건`),
		},
		{
			category: "concept", subcategory: "idea", strategy: "explanatory_search",
			pattern: regexp.MustCompile(`(?i)\b(concept|theory|meaning|definition|principle)\b|개념|이론|의미|정의|원리|뜻`),
		},
	}}
}

// Classify never fails; unmatched queries land in "other".
func (r *RuleClassifier) Classify(_ context.Context, query string) (Classification, error) {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(query) {
			return Classification{
				Category:       rule.category,
				Subcategory:    rule.subcategory,
				Confidence:     0.6,
				SearchStrategy: rule.strategy,
				Keywords:       extractBareKeywords(query),
			}, nil
		}
	}
	return Classification{
		Category:       "other",
		Subcategory:    "general",
		Confidence:     0.3,
		SearchStrategy: "general_search",
		Keywords:       extractBareKeywords(query),
	}, nil
}

var keywordStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"of": true, "in": true, "on": true, "to": true, "and": true, "or": true,
	"이": true, "그": true, "저": true, "것": true, "수": true, "좀": true,
}

// extractBareKeywords keeps tokens of two or more characters that are not
// stopwords, capped at five.
func extractBareKeywords(query string) []string {
	var keywords []string
	for _, tok := range strings.Fields(query) {
		tok = strings.Trim(tok, "?!.,\"'()")
		if len([]rune(tok)) < 2 || keywordStopwords[strings.ToLower(tok)] {
			continue
		}
		keywords = append(keywords, tok)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

// =============================================================================
// LLM Classifier
// =============================================================================

// LLMClassifier asks the model for a structured classification and falls
// back to the rule classifier whenever the call or the parse fails.
type LLMClassifier struct {
	llm      llm.Client
	fallback Classifier
}

func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{llm: client, fallback: NewRuleClassifier()}
}

const classifyPromptTemplate = `다음 질문이 무엇에 관한 것인지 분류해주세요.

질문: %s

아래 JSON 형식으로만 답변해주세요:
{"category": "person|animal|organization|location|event|object|concept|other", "subcategory": "...", "confidence": 0.0, "search_strategy": "...", "keywords": ["..."]}`

func (c *LLMClassifier) Classify(ctx context.Context, query string) (Classification, error) {
	raw, err := c.llm.Generate(ctx, fmt.Sprintf(classifyPromptTemplate, query), llm.GenerationParams{})
	if err != nil {
		slog.Debug("LLM classification failed, using rule classifier", "error", err)
		return c.fallback.Classify(ctx, query)
	}

	parsed, err := parseClassification(raw)
	if err != nil {
		slog.Debug("LLM classification unparsable, using rule classifier", "error", err)
		return c.fallback.Classify(ctx, query)
	}
	return parsed, nil
}

var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseClassification extracts the first JSON object from the model
// output, tolerating fenced code blocks and surrounding prose.
func parseClassification(raw string) (Classification, error) {
	match := jsonBlockPattern.FindString(raw)
	if match == "" {
		return Classification{}, fmt.Errorf("no JSON object in classifier output")
	}

	var parsed Classification
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return Classification{}, fmt.Errorf("failed to parse classifier output: %w", err)
	}
	if parsed.Category == "" {
		return Classification{}, fmt.Errorf("classifier output missing category")
	}
	return parsed, nil
}

var (
	_ Classifier = (*RuleClassifier)(nil)
	_ Classifier = (*LLMClassifier)(nil)
)
