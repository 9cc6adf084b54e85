// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline sequences the search stages for one request: pipeline
// resolution, query enhancement, retrieval, reranking, conditional
// reasoning, and generation. It owns the fallback to single-shot mode
// when any reasoning stage fails.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianQuery/services/llm"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cache"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.query.pipeline")

// Stage names the pipeline states. A request moves Resolved through Done;
// Failed is terminal and reachable only through configuration errors.
type Stage string

const (
	StageResolved  Stage = "resolved"
	StageEnhanced  Stage = "enhanced"
	StageRetrieved Stage = "retrieved"
	StageReranked  Stage = "reranked"
	StageReasoned  Stage = "reasoned"
	StageSkipped   Stage = "skipped"
	StageGenerated Stage = "generated"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// StrategySingleShot labels responses answered without the reasoning
// subsystem.
const StrategySingleShot = "single_shot"

// RetrieverFactory returns a retriever scoped to one collection.
type RetrieverFactory func(collectionID string) cot.Retriever

// Pipeline executes search requests.
//
// # Description
//
// Pipeline is the sole entry point used by the API layer. Stage failures
// classified as degradable (retrieval timeouts, reasoning step failures)
// fall through to generation with whatever evidence and chain exist;
// only configuration errors propagate to the caller. All per-request
// state lives on the stack, so one Pipeline serves all requests
// concurrently.
type Pipeline struct {
	newRetriever RetrieverFactory
	generator    llm.LLMClient
	manager      *ragcontext.Manager
	reranker     retrieval.Reranker
	synthesizer  cot.Synthesizer
	decomposer   *cot.Decomposer
	cache        *cache.AnswerCache
	metrics      *observability.PipelineMetrics
	cfg          Config
}

// New creates a Pipeline.
//
// # Outputs
//
//   - *Pipeline: Ready to serve requests.
//   - error: A *ConfigurationError when a collaborator is missing.
func New(newRetriever RetrieverFactory, generator llm.LLMClient, cfg Config) (*Pipeline, error) {
	if newRetriever == nil {
		return nil, &ConfigurationError{
			Reason:      "no retriever configured",
			Remediation: "configure the Weaviate endpoint (WEAVIATE_HOST)",
		}
	}
	if generator == nil {
		return nil, &ConfigurationError{
			Reason:      "no LLM provider configured",
			Remediation: "set LLM_BACKEND_TYPE and the matching provider variables",
		}
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Pipeline{
		newRetriever: newRetriever,
		generator:    generator,
		manager:      ragcontext.NewManager(ragcontext.DefaultManagerConfig()),
		decomposer:   cot.NewDecomposer(generator),
		cfg:          cfg,
	}, nil
}

// WithCache attaches an optional answer cache.
func (p *Pipeline) WithCache(c *cache.AnswerCache) *Pipeline {
	p.cache = c
	return p
}

// WithMetrics attaches pipeline metrics.
func (p *Pipeline) WithMetrics(m *observability.PipelineMetrics) *Pipeline {
	p.metrics = m
	return p
}

// ExecuteSearch runs the full pipeline for one validated request.
//
// # Inputs
//
//   - ctx: Request context. The pipeline applies its own overall deadline
//     on top of whatever the caller set.
//   - req: A request that already passed Validate.
//
// # Outputs
//
//   - *datatypes.SearchResponse: The answer with evidence. Degraded
//     requests return the insufficient-information sentinel, never an
//     error.
//   - error: Only a *ConfigurationError.
func (p *Pipeline) ExecuteSearch(ctx context.Context, req *datatypes.SearchRequest) (*datatypes.SearchResponse, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Pipeline.ExecuteSearch")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	// === Stage: Resolved ===
	question := req.TrimmedQuestion()
	cfg, useReasoning := p.resolve(req, question)
	strategyLabel := StrategySingleShot
	if useReasoning {
		strategyLabel = string(cfg.Strategy)
	} else if req.CoTConfig != nil && cfg.Enabled && cfg.Strategy == cot.StrategyZeroShot {
		strategyLabel = string(cot.StrategyZeroShot)
	}
	span.SetAttributes(
		attribute.String("pipeline.strategy", strategyLabel),
		attribute.Bool("pipeline.reasoning", useReasoning),
	)
	p.logStage(StageResolved, strategyLabel)

	conv, err := req.Conversation.ToContext()
	if err != nil {
		// Validate catches payload problems before this point.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &ConfigurationError{Reason: "conversation payload could not be resolved", Err: err}
	}

	cacheKey := cache.Key(req.CollectionID, question, strategyLabel)
	if p.cache != nil && !cfg.IncludeReasoningChain {
		if cached, ok := p.cache.Get(cacheKey); ok {
			p.recordCacheLookup(true)
			cached.Cached = true
			p.logStage(StageDone, strategyLabel)
			return cached, nil
		}
		p.recordCacheLookup(false)
	}

	// === Stage: Enhanced ===
	tStage := time.Now()
	enhanced := enhanceQuery(question, conv)
	p.recordStage(observability.StageEnhance, tStage)
	p.logStage(StageEnhanced, strategyLabel)

	// === Stage: Retrieved ===
	tStage = time.Now()
	retriever := p.newRetriever(req.CollectionID)
	docs, err := retriever.Retrieve(ctx, enhanced, p.cfg.TopK)
	retrievalRounds := 1
	if err != nil {
		// Degradable: continue with whatever evidence exists.
		slog.Warn("Initial retrieval failed, continuing without evidence",
			"collection", req.CollectionID, "error", err)
		span.RecordError(err)
		docs = ragcontext.DocumentContextList{}
	}
	p.recordStage(observability.StageRetrieve, tStage)
	p.logStage(StageRetrieved, strategyLabel)

	// === Stage: Reranked ===
	tStage = time.Now()
	docs = p.reranker.Rerank(question, docs)
	docs = p.manager.Fit(docs)
	p.recordStage(observability.StageRerank, tStage)
	p.logStage(StageReranked, strategyLabel)

	// === Stage: Reasoned or Skipped ===
	var chain []cot.ReasoningStep
	var answer string
	success := true

	if useReasoning {
		tStage = time.Now()
		answer, chain = p.reason(ctx, retriever, question, conv, docs, cfg)
		retrievalRounds += len(chain)
		p.recordStage(observability.StageReason, tStage)
		p.logStage(StageReasoned, strategyLabel)
	} else {
		p.logStage(StageSkipped, strategyLabel)
		tStage = time.Now()
		answer, err = p.generateDirect(ctx, question, docs, conv)
		p.recordStage(observability.StageGenerate, tStage)
		if err != nil {
			if llm.IsFatalGeneration(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				p.recordRequest(strategyLabel, false, start)
				p.logStage(StageFailed, strategyLabel)
				return nil, &ConfigurationError{
					Reason:      "the LLM provider rejected the request",
					Remediation: "verify the configured model and credentials",
					Err:         err,
				}
			}
			slog.Warn("Single-shot generation failed", "error", err)
			span.RecordError(err)
			answer = cot.InsufficientInformation
			success = false
		}
	}
	p.logStage(StageGenerated, strategyLabel)

	if answer == cot.InsufficientInformation {
		success = false
	}
	resp := &datatypes.SearchResponse{
		Answer:               answer,
		Evidence:             datatypes.EvidenceFromDocuments(docs),
		StrategyUsed:         strategyLabel,
		TotalReasoningTimeMs: time.Since(start).Milliseconds(),
		RetrievalRounds:      retrievalRounds,
	}
	if cfg.IncludeReasoningChain {
		resp.ReasoningChain = chain
	}
	if p.cache != nil && success && !cfg.IncludeReasoningChain {
		p.cache.Set(cacheKey, resp)
	}
	p.recordRequest(strategyLabel, success, start)
	p.logStage(StageDone, strategyLabel)
	return resp, nil
}

// resolve merges the request configuration with the classifier verdict.
//
// An explicit cot_config always wins: enabled=false bypasses the
// reasoning subsystem entirely, enabled=true enters it (for strategies
// that decompose). Without a cot_config the classifier decides.
func (p *Pipeline) resolve(req *datatypes.SearchRequest, question string) (cot.Config, bool) {
	if req.CoTConfig != nil {
		cfg := req.CoTConfig.Normalize()
		return cfg, cfg.Enabled && cfg.Strategy.UsesDecomposition()
	}
	cfg := cot.DefaultConfig().Normalize()
	verdict := cot.Classify(question)
	return cfg, verdict.NeedsReasoning
}

// reason runs decomposition, iterative reasoning, and synthesis.
//
// An empty chain with time remaining falls back to single-shot
// generation from the reranked evidence; an empty chain at the deadline
// synthesizes the sentinel.
func (p *Pipeline) reason(ctx context.Context, retriever cot.Retriever, question string, conv ragcontext.ConversationContext, docs ragcontext.DocumentContextList, cfg cot.Config) (string, []cot.ReasoningStep) {
	plan, fellBack := p.decomposer.Decompose(ctx, question, cfg.MaxReasoningSteps)
	if fellBack {
		p.recordFallback(observability.FallbackDecomposition)
	}

	reasoner := cot.NewReasoner(retriever, p.generator, p.manager, p.cfg.Reasoner)
	chain := reasoner.Execute(ctx, plan, conv, cfg.ParallelDecomposition)
	for _, step := range chain {
		p.recordStep(step.Degraded)
	}

	if len(chain) < len(plan) && ctx.Err() != nil {
		p.recordFallback(observability.FallbackPartialSynthesis)
	}
	if len(chain) == 0 && ctx.Err() == nil {
		p.recordFallback(observability.FallbackSingleShot)
		answer, err := p.generateDirect(ctx, question, docs, conv)
		if err != nil {
			slog.Warn("Single-shot fallback failed after empty chain", "error", err)
			return cot.InsufficientInformation, nil
		}
		return answer, nil
	}
	return p.synthesizer.Synthesize(chain), chain
}

// generateDirect answers from the reranked evidence without reasoning.
func (p *Pipeline) generateDirect(ctx context.Context, question string, docs ragcontext.DocumentContextList, conv ragcontext.ConversationContext) (string, error) {
	rc, err := ragcontext.NewReasoningContext(question, docs, ragcontext.DefaultInstructions())
	if err != nil {
		return "", err
	}
	rc = rc.WithConversation(conv).WithDocumentBudget(p.manager.BudgetChars())
	return p.generator.Generate(ctx, rc.FormatForModel(), llm.GenerationParams{
		Temperature: llm.Float32Ptr(0.2),
	})
}

func (p *Pipeline) logStage(stage Stage, strategy string) {
	slog.Debug("Pipeline stage transition", "stage", stage, "strategy", strategy)
}

func (p *Pipeline) recordStage(stage string, since time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStage(stage, time.Since(since).Seconds())
	}
}

func (p *Pipeline) recordRequest(strategy string, success bool, since time.Time) {
	if p.metrics != nil {
		p.metrics.RecordRequest(strategy, success, time.Since(since).Seconds())
	}
}

func (p *Pipeline) recordStep(degraded bool) {
	if p.metrics != nil {
		p.metrics.RecordStep(degraded)
	}
}

func (p *Pipeline) recordFallback(kind observability.FallbackKind) {
	if p.metrics != nil {
		p.metrics.RecordFallback(kind)
	}
}

func (p *Pipeline) recordCacheLookup(hit bool) {
	if p.metrics != nil {
		p.metrics.RecordCacheLookup(hit)
	}
}
