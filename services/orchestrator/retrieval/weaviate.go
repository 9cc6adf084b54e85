// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.query.retrieval")

// RetrieverConfig configures the Weaviate retriever.
type RetrieverConfig struct {
	// ClassName is the Weaviate class holding document chunks.
	ClassName string

	// MaxEmbedLength truncates queries before embedding.
	MaxEmbedLength int

	// MinCertainty drops hits below this similarity. Zero keeps all.
	MinCertainty float64

	// MaxRetries bounds transient-failure retries per call.
	MaxRetries int

	// RetryBackoff is the base backoff between retries.
	RetryBackoff time.Duration
}

// DefaultRetrieverConfig returns the production defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		ClassName:      "Document",
		MaxEmbedLength: 2048,
		MinCertainty:   0.0,
		MaxRetries:     3,
		RetryBackoff:   250 * time.Millisecond,
	}
}

// WeaviateRetriever retrieves document evidence by vector similarity.
//
// # Description
//
// Each Retrieve call embeds the query, runs a nearVector search scoped to
// one collection, and converts hits into immutable DocumentContext values
// ranked by certainty. Certainty is used as the relevance score because it
// is always in [0,1] regardless of the distance metric on the class.
// Transient search failures are retried with exponential backoff and
// jitter before surfacing a RetrievalError.
//
// # Thread Safety
//
// WeaviateRetriever is safe for concurrent use; the underlying client
// handles connection pooling.
type WeaviateRetriever struct {
	client     *weaviate.Client
	embedder   EmbeddingProvider
	collection string
	cfg        RetrieverConfig
}

// NewWeaviateRetriever creates a retriever, correcting invalid config
// values to defaults.
func NewWeaviateRetriever(client *weaviate.Client, embedder EmbeddingProvider, cfg RetrieverConfig) *WeaviateRetriever {
	defaults := DefaultRetrieverConfig()
	if cfg.ClassName == "" {
		cfg.ClassName = defaults.ClassName
	}
	if cfg.MaxEmbedLength < 1 {
		cfg.MaxEmbedLength = defaults.MaxEmbedLength
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	return &WeaviateRetriever{client: client, embedder: embedder, cfg: cfg}
}

// ForCollection returns a copy of the retriever scoped to one collection.
// Hits are filtered on the data_space field.
func (r *WeaviateRetriever) ForCollection(collectionID string) *WeaviateRetriever {
	scoped := *r
	scoped.collection = collectionID
	return &scoped
}

// Retrieve implements the reasoner's Retriever interface.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - query: The retrieval query text.
//   - topK: Maximum number of hits to return.
//
// # Outputs
//
//   - ragcontext.DocumentContextList: Hits in certainty order, deduplicated
//     by source id.
//   - error: A *RetrievalError after retries are exhausted.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, topK int) (ragcontext.DocumentContextList, error) {
	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.collection", r.collection),
		attribute.Int("retrieval.top_k", topK),
	)

	if topK < 1 {
		topK = 1
	}
	truncated := query
	if len(truncated) > r.cfg.MaxEmbedLength {
		truncated = truncated[:r.cfg.MaxEmbedLength]
		slog.Debug("Truncated query for embedding", "originalLen", len(query), "truncatedLen", len(truncated))
	}

	vector, err := r.embedder.Embed(ctx, truncated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ragcontext.DocumentContextList{}, &RetrievalError{
			Collection: r.collection, Attempts: 1,
			Err: fmt.Errorf("failed to embed query: %w", err),
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		docs, err := r.search(ctx, vector, topK)
		if err == nil {
			span.SetAttributes(attribute.Int("retrieval.hits", docs.Len()))
			return docs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < r.cfg.MaxRetries {
			backoff := r.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			backoff += time.Duration(rand.Int63n(int64(r.cfg.RetryBackoff)))
			slog.Warn("Weaviate search failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return ragcontext.DocumentContextList{}, &RetrievalError{
		Collection: r.collection, Attempts: r.cfg.MaxRetries, Err: lastErr,
	}
}

// search runs one nearVector query.
func (r *WeaviateRetriever) search(ctx context.Context, vector []float32, topK int) (ragcontext.DocumentContextList, error) {
	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty is requested instead of distance, which varies by metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "document_name"},
		{Name: "page_number"},
		{Name: "chunk_index"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	builder := r.client.GraphQL().Get().
		WithClassName(r.cfg.ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if r.collection != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"data_space"}).
			WithOperator(filters.Equal).
			WithValueString(r.collection))
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return ragcontext.DocumentContextList{}, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.DocumentSearchResponse](result)
	if err != nil {
		return ragcontext.DocumentContextList{}, fmt.Errorf("failed to parse results: %w", err)
	}
	return hitsToDocuments(parsed.Get[r.cfg.ClassName], r.cfg.MinCertainty), nil
}

// hitsToDocuments converts raw hits into ranked document contexts,
// dropping hits below the certainty floor and hits with no content.
func hitsToDocuments(hits []datatypes.DocumentHit, minCertainty float64) ragcontext.DocumentContextList {
	docs := make([]ragcontext.DocumentContext, 0, len(hits))
	rank := 0
	for _, hit := range hits {
		if hit.Additional.Certainty < minCertainty {
			continue
		}
		rank++
		doc, err := ragcontext.NewDocumentContext(hit.Content, hit.Source, hit.Additional.Certainty, rank)
		if err != nil {
			slog.Debug("Skipping unusable hit", "source", hit.Source, "error", err)
			rank--
			continue
		}
		if hit.DocumentName != "" {
			doc = doc.WithDocumentName(hit.DocumentName)
		}
		doc = doc.WithPage(hit.PageNumber, hit.ChunkIndex)
		docs = append(docs, doc)
	}
	return ragcontext.NewDocumentContextList(docs...)
}
