// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// TestApplyConfigDefaults_AllDefaults verifies default values are applied.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 8000, result.Port, "default port should be 8000")
	assert.Equal(t, "localhost:4317", result.OTelEndpoint)
	assert.Equal(t, "1h0m0s", result.SweepInterval.String())
	assert.Equal(t, "24h0m0s", result.MaxIdle.String())
}

// TestApplyConfigDefaults_PreservesCustomValues verifies custom values are
// not overwritten.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:         9000,
		OTelEndpoint: "collector:4317",
		WeaviateURL:  "http://weaviate:8080",
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 9000, result.Port)
	assert.Equal(t, "collector:4317", result.OTelEndpoint)
	assert.Equal(t, "http://weaviate:8080", result.WeaviateURL)
}

// TestBuildEmbedder_LadderOrder verifies backend selection: OpenAI key
// first, then the sidecar, then the hash embedder.
func TestBuildEmbedder_LadderOrder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	s := &service{config: applyConfigDefaults(Config{})}
	embedder := s.buildEmbedder()
	require.IsType(t, &vectorstore.HashEmbedder{}, embedder,
		"no key and no sidecar should select the hash embedder")
	assert.Equal(t, 384, embedder.Dimensions())

	s = &service{config: applyConfigDefaults(Config{EmbeddingServiceURL: "http://embedder:8080/embed"})}
	assert.IsType(t, &vectorstore.ServiceEmbedder{}, s.buildEmbedder())

	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.IsType(t, &vectorstore.OpenAIEmbedder{}, s.buildEmbedder())
}

// TestInitIndex_WithoutWeaviateUsesMemoryIndex verifies keyless and
// databaseless setups stay functional.
func TestInitIndex_WithoutWeaviateUsesMemoryIndex(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	s := &service{config: applyConfigDefaults(Config{})}
	require.NoError(t, s.initIndex())

	assert.IsType(t, &vectorstore.MemoryIndex{}, s.index)
}

// TestInitIndex_RejectsMalformedWeaviateURL verifies an unparsable URL is
// a hard error rather than a silent downgrade.
func TestInitIndex_RejectsMalformedWeaviateURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	s := &service{config: applyConfigDefaults(Config{WeaviateURL: "http://:missing host"})}
	assert.Error(t, s.initIndex())
}
