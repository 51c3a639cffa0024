// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"regexp"
	"strings"
)

// searchKeywords are recency, informational, locational and comparison
// terms that warrant a live web search. Korean terms are matched by
// substring; word boundaries are handled separately for English below.
var searchKeywords = []string{
	// recency
	"날씨", "뉴스", "최신", "오늘", "현재", "지금", "실시간", "속보",
	// informational
	"가격", "주가", "환율", "일정", "결과", "순위", "통계",
	// locational
	"근처", "위치", "어디서", "가는 길", "맛집",
	// comparison
	"비교", "차이", "추천", "어떤 게", "뭐가 나",
	// command-ish verbs that imply lookup
	"알려", "검색", "찾아", "조사",
	// english
	"weather", "news", "latest", "today", "current", "price", "stock",
	"compare", "difference", "recommend", "near", "location", "schedule",
}

var (
	interrogativeEnglish = regexp.MustCompile(`(?i)\b(what|how|why|when|where|who|which)\b`)
	interrogativeKorean  = regexp.MustCompile(`무엇|뭐야|뭔가|어떻게|어때|왜\s|왜\?|언제|어디|누구|누가|어느`)
	imperativeEnglish    = regexp.MustCompile(`(?i)\b(search|find|show|tell|look up)\b`)
	imperativeKorean     = regexp.MustCompile(`검색해|찾아줘|찾아봐|보여줘|알려줘|알려 줘`)
)

// ShouldSearch decides whether message warrants a web search. It is a pure
// heuristic over the text: false positives cost an unnecessary search,
// false negatives still get an answer from memory-only context fusion.
func ShouldSearch(message string) bool {
	text := strings.TrimSpace(message)
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)

	for _, kw := range searchKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if interrogativeEnglish.MatchString(text) || interrogativeKorean.MatchString(text) {
		return true
	}
	if imperativeEnglish.MatchString(text) || imperativeKorean.MatchString(text) {
		return true
	}
	return false
}
