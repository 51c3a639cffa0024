// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/datatypes"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
)

// GetConversationHistory answers GET /conversations/:conversationId/history
// with the transcript folded into user/assistant pairs.
func GetConversationHistory(svc *rag.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			ConversationID: conversationID,
			History:        svc.History(conversationID),
		})
	}
}

// DeleteConversation answers DELETE /conversations/:conversationId by
// dropping the transcript and both backing collections.
func DeleteConversation(svc *rag.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "DeleteConversation")
		defer span.End()

		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		svc.DeleteConversation(ctx, conversationID)
		slog.Info("Deleted conversation", "conversation_id", conversationID)
		c.JSON(http.StatusOK, gin.H{"message": "conversation deleted", "conversation_id": conversationID})
	}
}
