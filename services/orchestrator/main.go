// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianQuery/pkg/logging"
	"github.com/AleutianAI/AleutianQuery/services/llm"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cache"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/pipeline"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/retrieval"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/routes"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("query-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient builds a client from WEAVIATE_SERVICE_URL.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Sanitize: Trim quotes and whitespace just in case Podman passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		return nil
	}
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid", "url", weaviateURL, "error", err)
		return nil
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

func main() {
	port := os.Getenv("QUERY_SERVICE_PORT")
	if port == "" {
		port = "12220"
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "query-service",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient := newWeaviateClient()
	if weaviateClient == nil {
		log.Fatalf("FATAL: WEAVIATE_SERVICE_URL is not set or invalid; " +
			"the query service cannot run without its vector store")
	}

	// Ollama serves embeddings regardless of the generation backend.
	embedder, err := llm.NewOllamaClient()
	if err != nil {
		log.Fatalf("Failed to initialize the embedding client: %v", err)
	}

	log.Println("Configuring the LLM Client")
	llmBackendType := os.Getenv("LLM_BACKEND_TYPE")

	var generator llm.LLMClient
	switch llmBackendType {
	case "openai":
		generator, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		generator, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama")
		generator, err = llm.NewOllamaClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	generator = llm.NewRetryingClient(generator, 0)

	retriever := retrieval.NewWeaviateRetriever(weaviateClient, embedder,
		retrieval.DefaultRetrieverConfig())
	factory := func(collectionID string) cot.Retriever {
		return retriever.ForCollection(collectionID)
	}

	answerCache, err := cache.Open(cache.DefaultConfig())
	if err != nil {
		slog.Warn("Answer cache unavailable, continuing without caching", "error", err)
		answerCache = nil
	} else {
		defer answerCache.Close()
	}

	searchPipeline, err := pipeline.New(factory, generator, pipeline.LoadConfigFromEnv())
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the search pipeline: %v", err)
	}
	searchPipeline.WithCache(answerCache).WithMetrics(observability.InitMetrics())

	router := gin.Default()
	router.Use(otelgin.Middleware("query-service"))

	routes.SetupRoutes(router, searchPipeline)

	log.Println("Starting the query server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
