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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/datatypes"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/observability"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("ragbot.handlers")

// metrics returns the initialized metrics instance or nil when metrics
// are disabled.
func metrics() *observability.RequestMetrics {
	return observability.DefaultMetrics
}

// HandleChat answers POST /chat by dispatching to the answer mode the
// request selects.
func HandleChat(svc *rag.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the chat request", "error", err)
			if m := metrics(); m != nil {
				m.RecordError("chat", observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			if m := metrics(); m != nil {
				m.RecordError("chat", observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var result rag.ChatResult
		var err error
		switch req.Mode {
		case "chat":
			result, err = svc.Chat(ctx, req.Message, req.ConversationID, *req.UseWebSearch)
		case "structured":
			result, err = svc.StructuredResponse(ctx, req.Message, req.ConversationID, *req.UseWebSearch)
		case "topic":
			result, err = svc.TopicBasedResponse(ctx, req.Message, req.ConversationID)
		default:
			result, err = svc.ChatWithMemory(ctx, req.Message, req.ConversationID, *req.UseWebSearch)
		}

		if m := metrics(); m != nil {
			m.RecordRequest("chat", err == nil, time.Since(start).Seconds())
			m.RecordEvidence(
				result.ContextInfo.ShortTermMemory,
				result.ContextInfo.LongTermMemory,
				result.ContextInfo.WebSearch)
			m.SetActiveConversations(svc.Memory().ConversationCount())
		}

		if err != nil {
			// Only recovered panics reach here; the pipeline still
			// produced its full tuple, but the client sees a 500.
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if m := metrics(); m != nil {
				m.RecordError("chat", observability.ErrorCodeInternal)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		info := result.ContextInfo
		c.JSON(http.StatusOK, datatypes.ChatResponse{
			Response:       result.Answer,
			Sources:        result.Sources,
			ConversationID: result.ConversationID,
			ContextInfo:    &info,
		})
	}
}
