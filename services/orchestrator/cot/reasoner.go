// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianQuery/services/llm"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var reasonerTracer = otel.Tracer("aleutian.query.cot.reasoner")

// Retriever fetches evidence for a retrieval query.
//
// Implementations may fail with a recoverable retrieval error; the reasoner
// records such failures as degraded steps and continues.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (ragcontext.DocumentContextList, error)
}

// Reasoner defaults.
const (
	DefaultStepTopK       = 5
	DefaultStepTimeout    = 20 * time.Second
	DefaultParallelSteps  = 4
	MaxParallelSteps      = 5
	DefaultStepsPerSecond = 2.0
	priorSummaryCharLimit = 400
)

// ReasonerConfig configures per-step behavior.
type ReasonerConfig struct {
	// TopK is the evidence count requested per step.
	TopK int

	// StepTimeout bounds each step's retrieval plus generation.
	StepTimeout time.Duration

	// ParallelSteps bounds concurrent steps when the plan runs in
	// parallel. Clamped to MaxParallelSteps.
	ParallelSteps int64

	// StepsPerSecond rate-limits provider calls across steps.
	StepsPerSecond float64
}

// DefaultReasonerConfig returns the production defaults.
func DefaultReasonerConfig() ReasonerConfig {
	return ReasonerConfig{
		TopK:           DefaultStepTopK,
		StepTimeout:    DefaultStepTimeout,
		ParallelSteps:  DefaultParallelSteps,
		StepsPerSecond: DefaultStepsPerSecond,
	}
}

// Reasoner executes a sub-question plan step by step.
//
// # Description
//
// For each sub-question the reasoner formulates a retrieval query (the
// sub-question plus a bounded summary of prior answers), retrieves top-k
// evidence, builds a ReasoningContext with hidden-visibility instructions,
// and generates an intermediate answer. Steps run sequentially by default
// because step i+1's retrieval query depends on step i's answer; a caller
// may opt in to bounded parallel execution for plans whose sub-questions
// are independent, in which case results are still committed to the chain
// in plan order.
//
// A step that fails or times out is recorded as degraded with the
// "unavailable" marker and the plan continues. A parent-context deadline
// stops the plan and returns the steps completed so far.
type Reasoner struct {
	retriever Retriever
	generator llm.LLMClient
	manager   *ragcontext.Manager
	cfg       ReasonerConfig
	limiter   *rate.Limiter
}

// NewReasoner creates a Reasoner, correcting invalid config values to
// defaults.
func NewReasoner(retriever Retriever, generator llm.LLMClient, manager *ragcontext.Manager, cfg ReasonerConfig) *Reasoner {
	defaults := DefaultReasonerConfig()
	if cfg.TopK < 1 {
		cfg.TopK = defaults.TopK
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaults.StepTimeout
	}
	if cfg.ParallelSteps < 1 {
		cfg.ParallelSteps = defaults.ParallelSteps
	}
	if cfg.ParallelSteps > MaxParallelSteps {
		cfg.ParallelSteps = MaxParallelSteps
	}
	if cfg.StepsPerSecond <= 0 {
		cfg.StepsPerSecond = defaults.StepsPerSecond
	}
	if manager == nil {
		manager = ragcontext.NewManager(ragcontext.DefaultManagerConfig())
	}
	return &Reasoner{
		retriever: retriever,
		generator: generator,
		manager:   manager,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.StepsPerSecond), int(cfg.ParallelSteps)),
	}
}

// Execute runs the plan and returns the reasoning chain in plan order.
//
// # Inputs
//
//   - ctx: Carries the request deadline. Expiry stops remaining steps and
//     returns the completed chain for partial synthesis.
//   - subQuestions: The ordered plan. Empty plans return an empty chain.
//   - conv: Optional conversation context, confined to instruction
//     sections during prompt formatting.
//   - parallel: Run independent steps concurrently when true.
//
// # Outputs
//
//   - []ReasoningStep: Completed steps in plan order. Degraded steps are
//     included; steps never started are not.
func (r *Reasoner) Execute(ctx context.Context, subQuestions []string, conv ragcontext.ConversationContext, parallel bool) []ReasoningStep {
	ctx, span := reasonerTracer.Start(ctx, "Reasoner.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("cot.plan_length", len(subQuestions)),
		attribute.Bool("cot.parallel", parallel),
	)

	if len(subQuestions) == 0 {
		return nil
	}
	if parallel && len(subQuestions) > 1 {
		return r.executeParallel(ctx, subQuestions, conv)
	}

	chain := make([]ReasoningStep, 0, len(subQuestions))
	for i, q := range subQuestions {
		if ctx.Err() != nil {
			slog.Warn("Request deadline reached, synthesizing from partial chain",
				"completed_steps", len(chain), "planned_steps", len(subQuestions))
			break
		}
		step, completed := r.runStep(ctx, conv, i+1, q, priorSummary(chain))
		if !completed {
			break
		}
		chain = append(chain, step)
	}
	return chain
}

// executeParallel runs independent steps concurrently, bounded by a
// semaphore, and commits results in plan order.
func (r *Reasoner) executeParallel(ctx context.Context, subQuestions []string, conv ragcontext.ConversationContext) []ReasoningStep {
	sem := semaphore.NewWeighted(r.cfg.ParallelSteps)
	results := make([]ReasoningStep, len(subQuestions))
	completed := make([]bool, len(subQuestions))
	var wg sync.WaitGroup

	for i, q := range subQuestions {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Warn("Request deadline reached while scheduling parallel steps",
				"scheduled_steps", i, "planned_steps", len(subQuestions))
			break
		}
		wg.Add(1)
		go func(idx int, question string) {
			defer wg.Done()
			defer sem.Release(1)
			// Independent sub-questions carry no prior-step summary.
			step, ok := r.runStep(ctx, conv, idx+1, question, "")
			if ok {
				results[idx] = step
				completed[idx] = true
			}
		}(i, q)
	}
	wg.Wait()

	chain := make([]ReasoningStep, 0, len(subQuestions))
	for i := range results {
		if completed[i] {
			chain = append(chain, results[i])
		}
	}
	return chain
}

// runStep executes one step under the per-step timeout.
//
// The second return value is false only when the parent context expired,
// meaning the step should not enter the chain at all. Step-local failures
// return a degraded step with completed=true.
func (r *Reasoner) runStep(ctx context.Context, conv ragcontext.ConversationContext, number int, question, prior string) (ReasoningStep, bool) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	defer cancel()

	stepCtx, span := reasonerTracer.Start(stepCtx, "Reasoner.runStep")
	defer span.End()
	span.SetAttributes(attribute.Int("cot.step_number", number))

	if err := r.limiter.Wait(stepCtx); err != nil {
		return r.degradedStep(ctx, span, number, question, start, fmt.Errorf("rate limit wait: %w", err))
	}

	query := question
	if prior != "" {
		query = question + "\nContext from earlier findings: " + prior
	}
	docs, err := r.retriever.Retrieve(stepCtx, query, r.cfg.TopK)
	if err != nil {
		return r.degradedStep(ctx, span, number, question, start, fmt.Errorf("retrieval: %w", err))
	}
	docs = r.manager.Fit(docs)

	instr := ragcontext.DefaultInstructions()
	rc, err := ragcontext.NewReasoningContext(question, docs, instr)
	if err != nil {
		return r.degradedStep(ctx, span, number, question, start, fmt.Errorf("context assembly: %w", err))
	}
	rc = rc.WithConversation(conv).WithDocumentBudget(r.manager.BudgetChars())

	answer, err := r.generator.Generate(stepCtx, rc.FormatForModel(), llm.GenerationParams{
		Temperature: llm.Float32Ptr(0.2),
	})
	if err != nil {
		return r.degradedStep(ctx, span, number, question, start, fmt.Errorf("generation: %w", err))
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return r.degradedStep(ctx, span, number, question, start, fmt.Errorf("generator returned empty answer"))
	}

	span.SetAttributes(attribute.Int("cot.evidence_count", docs.Len()))
	return ReasoningStep{
		StepNumber:         number,
		Question:           question,
		IntermediateAnswer: answer,
		Evidence:           docs.SourceIDs(),
		Confidence:         meanRelevance(docs),
		ElapsedMs:          time.Since(start).Milliseconds(),
	}, true
}

// degradedStep records a failed step, unless the parent deadline expired in
// which case the step is dropped entirely.
func (r *Reasoner) degradedStep(parent context.Context, span trace.Span, number int, question string, start time.Time, cause error) (ReasoningStep, bool) {
	span.RecordError(cause)
	slog.Warn("Reasoning step degraded", "step", number, "error", cause)
	if parent.Err() != nil {
		return ReasoningStep{}, false
	}
	return ReasoningStep{
		StepNumber:         number,
		Question:           question,
		IntermediateAnswer: StepUnavailable,
		ElapsedMs:          time.Since(start).Milliseconds(),
		Degraded:           true,
	}, true
}

// priorSummary condenses earlier usable answers into a bounded string for
// retrieval-query formulation. Raw prompts are never carried forward.
func priorSummary(chain []ReasoningStep) string {
	var parts []string
	for _, step := range chain {
		if step.Usable() {
			parts = append(parts, step.IntermediateAnswer)
		}
	}
	summary := strings.Join(parts, " ")
	if len(summary) > priorSummaryCharLimit {
		// Back up to a rune boundary so the cut never splits a
		// multibyte character.
		cut := priorSummaryCharLimit
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut]
	}
	return summary
}

// meanRelevance averages the evidence relevance scores.
func meanRelevance(docs ragcontext.DocumentContextList) float64 {
	if docs.Len() == 0 {
		return 0
	}
	total := 0.0
	for _, d := range docs.Items() {
		total += d.RelevanceScore
	}
	return total / float64(docs.Len())
}
