// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/datatypes"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
)

// Root answers GET / with a short service banner.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "WebSearch RAG Bot API",
		"status":  "running",
	})
}

// HealthCheck answers GET /health with one boolean per collaborator.
func HealthCheck(svc *rag.Service, index vectorstore.Index, search rag.Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		vectorOK := probeIndex(ctx, index)
		searchOK := search.Healthy()
		ragOK := vectorOK && searchOK

		status := "healthy"
		if !ragOK {
			status = "degraded"
		}
		c.JSON(http.StatusOK, datatypes.HealthResponse{
			Status: status,
			Services: map[string]bool{
				"vector_store": vectorOK,
				"web_search":   searchOK,
				"rag_service":  ragOK,
			},
		})
	}
}

func probeIndex(ctx context.Context, index vectorstore.Index) bool {
	if index == nil {
		return false
	}
	return index.Ready(ctx)
}
