// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/datatypes"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/observability"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
)

// HandleIndex answers POST /index: fetch, chunk and index each URL.
func HandleIndex(svc *rag.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleIndex")
		defer span.End()
		start := time.Now()

		var req datatypes.IndexRequest
		if err := c.BindJSON(&req); err != nil {
			if m := metrics(); m != nil {
				m.RecordError("index", observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			if m := metrics(); m != nil {
				m.RecordError("index", observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		indexed := svc.IndexURLs(ctx, req.URLs, req.ConversationID)
		if m := metrics(); m != nil {
			m.RecordRequest("index", true, time.Since(start).Seconds())
			m.RecordIndexed(indexed)
		}

		c.JSON(http.StatusOK, datatypes.IndexResponse{
			Message: fmt.Sprintf("Indexed %d URLs successfully", indexed),
		})
	}
}
