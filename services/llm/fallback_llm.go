// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"log/slog"
)

// FallbackClient is used when no real LLM backend is configured. It never
// fails and echoes a fixed apology so the pipeline stays exercisable in
// keyless environments.
type FallbackClient struct{}

func NewFallbackClient() *FallbackClient {
	slog.Warn("No LLM API key configured, using deterministic fallback client")
	return &FallbackClient{}
}

// Generate implements the Client interface.
func (f *FallbackClient) Generate(_ context.Context, prompt string, _ GenerationParams) (string, error) {
	return "죄송합니다. 현재 OpenAI API 키가 설정되지 않아 완전한 응답을 제공할 수 없습니다. 질문: " + prompt, nil
}
