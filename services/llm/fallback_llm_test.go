package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFallbackClient_NeverFails verifies the keyless client always answers
// and echoes the prompt.
func TestFallbackClient_NeverFails(t *testing.T) {
	client := NewFallbackClient()

	answer, err := client.Generate(context.Background(), "서울 날씨 알려줘", GenerationParams{})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer, "죄송합니다."))
	assert.Contains(t, answer, "서울 날씨 알려줘")
}
