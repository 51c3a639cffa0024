// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/handlers"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers all endpoints on the router.
func SetupRoutes(router *gin.Engine, svc *rag.Service, index vectorstore.Index, search rag.Searcher, enableMetrics bool) {
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.HealthCheck(svc, index, search))
	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.POST("/chat", handlers.HandleChat(svc))
	router.POST("/search", handlers.HandleSearch(search))
	router.POST("/index", handlers.HandleIndex(svc))

	conversations := router.Group("/conversations")
	{
		conversations.GET("/:conversationId/history", handlers.GetConversationHistory(svc))
		conversations.DELETE("/:conversationId", handlers.DeleteConversation(svc))
	}
}
