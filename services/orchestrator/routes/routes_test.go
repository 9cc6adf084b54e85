// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianQuery/services/llm"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/pipeline"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
	"github.com/gin-gonic/gin"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

type mockRetriever struct{}

func (mockRetriever) Retrieve(_ context.Context, _ string, _ int) (ragcontext.DocumentContextList, error) {
	return ragcontext.DocumentContextList{}, nil
}

type mockLLMClient struct{}

func (m *mockLLMClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return "mock response", nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	p, err := pipeline.New(
		func(string) cot.Retriever { return mockRetriever{} },
		&mockLLMClient{},
		pipeline.DefaultPipelineConfig())
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	router := gin.New()
	SetupRoutes(router, p)
	return router
}

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := newRouter(t)

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/healthz"},
		{"GET", "/metrics"},
		{"POST", "/v1/search"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("route %s %s not registered", expected.method, expected.path)
		}
	}
}

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := newRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	router := newRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	// Prometheus metrics endpoint should return 200
	if w.Code != http.StatusOK {
		t.Errorf("Metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
}
