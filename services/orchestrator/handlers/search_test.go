// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the search and health handlers

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianQuery/services/llm"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/pipeline"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(_ context.Context, _ string, _ int) (ragcontext.DocumentContextList, error) {
	doc, err := ragcontext.NewDocumentContext("supporting text", "doc-1", 0.9, 1)
	if err != nil {
		return ragcontext.DocumentContextList{}, err
	}
	return ragcontext.NewDocumentContextList(doc), nil
}

type stubLLM struct{ out string }

func (s stubLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return s.out, nil
}

func newSearchRouter(t *testing.T) *gin.Engine {
	t.Helper()
	p, err := pipeline.New(
		func(string) cot.Retriever { return stubRetriever{} },
		stubLLM{out: "A direct answer."},
		pipeline.DefaultPipelineConfig())
	require.NoError(t, err)

	router := gin.New()
	router.POST("/v1/search", HandleSearch(p))
	return router
}

func postSearch(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/search", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleSearch Tests
// =============================================================================

func TestHandleSearch_ValidRequest(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question":"When did production start?","collection_id":"col-1","user_id":"u-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var response map[string]any
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "A direct answer.", response["answer"])
	assert.Equal(t, pipeline.StrategySingleShot, response["strategy_used"])
}

func TestHandleSearch_RejectsUnknownFields(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question":"When did production start?","collection_id":"col-1","config_metadata":{"free":"form"}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "config_metadata")
}

func TestHandleSearch_RejectsMalformedJSON(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question": `)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_RejectsShortQuestion(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question":"  a  ","collection_id":"col-1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "question")
}

func TestHandleSearch_RejectsMissingCollection(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question":"When did production start?"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "collection_id")
}

func TestHandleSearch_RejectsInvalidStrategy(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question":"When did production start?","collection_id":"col-1","cot_config":{"enabled":true,"strategy":"galaxy_brain"}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "strategy")
}

func TestHandleSearch_ReasoningChainInResponse(t *testing.T) {
	router := newSearchRouter(t)
	w := postSearch(router, `{"question":"What happened first and what happened second?","collection_id":"col-1","cot_config":{"enabled":true,"strategy":"iterative","include_reasoning_chain":true}}`)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Contains(t, response, "reasoning_chain")
}

type fatalLLM struct{}

func (fatalLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return "", &llm.GenerationError{Provider: "openai", Fatal: true, Err: errors.New("invalid api key")}
}

func TestHandleSearch_ConfigurationErrorReturns503(t *testing.T) {
	p, err := pipeline.New(
		func(string) cot.Retriever { return stubRetriever{} },
		fatalLLM{},
		pipeline.DefaultPipelineConfig())
	require.NoError(t, err)

	router := gin.New()
	router.POST("/v1/search", HandleSearch(p))
	w := postSearch(router, `{"question":"When did production start?","collection_id":"col-1"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "remediation")
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/healthz", HealthCheck)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}
