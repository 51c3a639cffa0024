// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pica-git0/websearch-rag-bot/services/llm"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/datatypes"
	"github.com/pica-git0/websearch-rag-bot/services/orchestrator/rag"
	"github.com/pica-git0/websearch-rag-bot/services/vectorstore"
	"github.com/pica-git0/websearch-rag-bot/services/websearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

type testHarness struct {
	router *gin.Engine
	svc    *rag.Service
	index  vectorstore.Index
	search rag.Searcher
}

// newHarness wires a full stack over the in-process index, the stub search
// provider and the deterministic fallback LLM.
func newHarness() *testHarness {
	index := vectorstore.NewMemoryIndex(vectorstore.NewHashEmbedder(64))
	search := websearch.NewChainWith(websearch.StubProvider{})
	svc := rag.NewService(llm.NewFallbackClient(), index, search, websearch.NewFetcher(), rag.Config{})

	router := gin.New()
	router.GET("/", Root)
	router.GET("/health", HealthCheck(svc, index, search))
	router.POST("/chat", HandleChat(svc))
	router.POST("/search", HandleSearch(search))
	router.POST("/index", HandleIndex(svc))
	router.GET("/conversations/:conversationId/history", GetConversationHistory(svc))
	router.DELETE("/conversations/:conversationId", DeleteConversation(svc))

	return &testHarness{router: router, svc: svc, index: index, search: search}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, req)
	return recorder
}

// TestRoot verifies the service banner.
func TestRoot(t *testing.T) {
	h := newHarness()

	recorder := h.do(t, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "WebSearch RAG Bot API", body["message"])
	assert.Equal(t, "running", body["status"])
}

// TestHealthCheck verifies the per-collaborator boolean shape.
func TestHealthCheck(t *testing.T) {
	h := newHarness()

	recorder := h.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var body datatypes.HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.Services["vector_store"])
	assert.True(t, body.Services["web_search"])
	assert.True(t, body.Services["rag_service"])
}

// TestHandleChat_BadJSON verifies a malformed body answers 400.
func TestHandleChat_BadJSON(t *testing.T) {
	h := newHarness()

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// TestHandleChat_UnknownMode verifies mode validation answers 400.
func TestHandleChat_UnknownMode(t *testing.T) {
	h := newHarness()

	recorder := h.do(t, http.MethodPost, "/chat", datatypes.ChatRequest{Message: "안녕", Mode: "bogus"})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// TestHandleChat_HappyPath verifies the default mode end to end with the
// fallback LLM.
func TestHandleChat_HappyPath(t *testing.T) {
	h := newHarness()
	useSearch := false

	recorder := h.do(t, http.MethodPost, "/chat", datatypes.ChatRequest{
		Message:        "안녕하세요",
		ConversationID: "handler-conv",
		UseWebSearch:   &useSearch,
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	var body datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Response)
	assert.Equal(t, "handler-conv", body.ConversationID)
	assert.NotNil(t, body.Sources)
	require.NotNil(t, body.ContextInfo)
	assert.Zero(t, body.ContextInfo.WebSearch)
}

// TestHandleChat_EmptyMessageIsGuidanceNotError verifies the empty-message
// contract at the HTTP boundary.
func TestHandleChat_EmptyMessageIsGuidanceNotError(t *testing.T) {
	h := newHarness()
	useSearch := false

	recorder := h.do(t, http.MethodPost, "/chat", datatypes.ChatRequest{
		Message:      "",
		UseWebSearch: &useSearch,
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	var body datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Contains(t, body.Response, "메시지를 입력해주세요")
	assert.NotEmpty(t, body.ConversationID, "a conversation id is still issued")
}

// TestHandleSearch verifies the raw search passthrough.
func TestHandleSearch(t *testing.T) {
	h := newHarness()

	recorder := h.do(t, http.MethodPost, "/search", datatypes.SearchRequest{Query: "서울 날씨"})

	require.Equal(t, http.StatusOK, recorder.Code)
	var body datatypes.SearchResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, len(body.Results), body.Total)
	require.NotEmpty(t, body.Results)
	assert.Equal(t, "검색 결과: 서울 날씨", body.Results[0].Title)
}

// TestHandleSearch_EmptyQuery verifies validation.
func TestHandleSearch_EmptyQuery(t *testing.T) {
	h := newHarness()

	recorder := h.do(t, http.MethodPost, "/search", datatypes.SearchRequest{Query: "  "})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// TestHandleIndex verifies fetch-and-index over a local server plus the
// success message format.
func TestHandleIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>자료</title></head><body>색인할 본문 내용</body></html>`))
	}))
	defer server.Close()

	h := newHarness()
	recorder := h.do(t, http.MethodPost, "/index", datatypes.IndexRequest{
		URLs:           []string{server.URL},
		ConversationID: "index-conv",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	var body datatypes.IndexResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Indexed 1 URLs successfully", body.Message)
}

// TestHandleIndex_NoURLs verifies validation.
func TestHandleIndex_NoURLs(t *testing.T) {
	h := newHarness()

	recorder := h.do(t, http.MethodPost, "/index", datatypes.IndexRequest{})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// TestConversationHistoryAndDelete verifies the transcript surfaces over
// HTTP and deletion clears it.
func TestConversationHistoryAndDelete(t *testing.T) {
	h := newHarness()
	useSearch := false
	h.do(t, http.MethodPost, "/chat", datatypes.ChatRequest{
		Message:        "기억해줘",
		ConversationID: "hist-conv",
		UseWebSearch:   &useSearch,
	})

	recorder := h.do(t, http.MethodGet, "/conversations/hist-conv/history", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var body datatypes.HistoryResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	assert.Equal(t, "기억해줘", body.History[0].User)

	deleteRec := h.do(t, http.MethodDelete, "/conversations/hist-conv", nil)
	require.Equal(t, http.StatusOK, deleteRec.Code)

	afterRec := h.do(t, http.MethodGet, "/conversations/hist-conv/history", nil)
	var after datatypes.HistoryResponse
	require.NoError(t, json.Unmarshal(afterRec.Body.Bytes(), &after))
	assert.Empty(t, after.History)
}
