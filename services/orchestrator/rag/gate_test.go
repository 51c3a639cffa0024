// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestShouldSearch_Decisions verifies the search gate over representative
// Korean and English messages.
func TestShouldSearch_Decisions(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"weather request with imperative", "서울 날씨 알려줘", true},
		{"plain thanks", "고마워", false},
		{"plain greeting", "안녕", false},
		{"recency keyword", "오늘 환율 어때", true},
		{"english interrogative", "What is the capital of France", true},
		{"english imperative", "search for golang tutorials", true},
		{"korean interrogative", "김치는 어떻게 만들어", true},
		{"comparison keyword", "아이폰과 갤럭시 비교", true},
		{"empty message", "", false},
		{"whitespace only", "   ", false},
		{"small talk", "그렇구나 재밌네", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSearch(tt.message), "message: %q", tt.message)
		})
	}
}

// TestShouldSearch_CaseInsensitiveEnglish verifies English keywords match
// regardless of case.
func TestShouldSearch_CaseInsensitiveEnglish(t *testing.T) {
	assert.True(t, ShouldSearch("LATEST news please"))
	assert.True(t, ShouldSearch("Weather in Seoul"))
}
