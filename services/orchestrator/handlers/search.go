// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/datatypes"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/observability"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
)

// HandleSearch answers POST /search with raw provider-chain results.
func HandleSearch(search rag.Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleSearch")
		defer span.End()
		start := time.Now()

		var req datatypes.SearchRequest
		if err := c.BindJSON(&req); err != nil {
			if m := metrics(); m != nil {
				m.RecordError("search", observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			if m := metrics(); m != nil {
				m.RecordError("search", observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results := search.Search(ctx, req.Query, req.MaxResults)
		if m := metrics(); m != nil {
			m.RecordRequest("search", true, time.Since(start).Seconds())
			if len(results) > 0 {
				m.WebSearchesTotal.WithLabelValues(results[0].Source).Inc()
			}
		}

		c.JSON(http.StatusOK, datatypes.SearchResponse{
			Results: results,
			Total:   len(results),
		})
	}
}
