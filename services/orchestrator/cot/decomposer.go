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
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianQuery/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var decomposerTracer = otel.Tracer("aleutian.query.cot.decomposer")

// DefaultMaxDepth bounds how deep a decomposition prompt may nest.
const DefaultMaxDepth = 3

// nearDuplicateThreshold is the Jaccard token similarity above which two
// sub-questions are considered the same question rephrased.
const nearDuplicateThreshold = 0.9

// numberedLine extracts the text of one numbered or bulleted plan line.
var numberedLine = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s*(.+)$`)

// Decomposer plans sub-questions for a complex question.
//
// # Description
//
// Decomposer asks the generator for a numbered list of sub-questions, then
// validates the proposal: empty plans are rejected, sub-questions identical
// to the original are dropped to prevent loops, near-identical entries are
// deduplicated, and the plan is capped at the step limit. Any failure in
// that sequence degrades to a single-step plan containing the original
// question; decomposition is never fatal to a request.
type Decomposer struct {
	generator llm.LLMClient
	maxDepth  int
}

// NewDecomposer creates a Decomposer backed by the given generator.
func NewDecomposer(generator llm.LLMClient) *Decomposer {
	return &Decomposer{generator: generator, maxDepth: DefaultMaxDepth}
}

// Decompose returns an ordered plan of 1..maxSteps sub-questions.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - question: The original complex question.
//   - maxSteps: Plan cap. Non-positive or over-cap values are clamped.
//
// # Outputs
//
//   - []string: The ordered sub-questions, never empty.
//   - bool: True when the plan fell back to the original question.
func (d *Decomposer) Decompose(ctx context.Context, question string, maxSteps int) ([]string, bool) {
	ctx, span := decomposerTracer.Start(ctx, "Decomposer.Decompose")
	defer span.End()

	if maxSteps < 1 {
		maxSteps = DefaultMaxReasoningSteps
	}
	if maxSteps > MaxReasoningStepsCap {
		maxSteps = MaxReasoningStepsCap
	}
	span.SetAttributes(attribute.Int("cot.max_steps", maxSteps))

	plan, err := d.propose(ctx, question, maxSteps)
	if err != nil {
		span.RecordError(err)
		slog.Warn("Decomposition fell back to single-step plan", "error", err)
		return []string{question}, true
	}
	span.SetAttributes(attribute.Int("cot.plan_length", len(plan)))
	return plan, false
}

// propose runs the generator and validates its plan.
func (d *Decomposer) propose(ctx context.Context, question string, maxSteps int) ([]string, error) {
	prompt := d.buildPrompt(question, maxSteps)
	out, err := d.generator.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: llm.Float32Ptr(0.1),
		MaxTokens:   llm.IntPtr(512),
	})
	if err != nil {
		return nil, &DecompositionError{Question: question, Reason: "generator call failed", Err: err}
	}

	parsed := parsePlanLines(out)
	valid := make([]string, 0, len(parsed))
	for _, sub := range parsed {
		if sub == "" {
			continue
		}
		if sameQuestion(sub, question) {
			continue
		}
		if hasNearDuplicate(valid, sub) {
			continue
		}
		valid = append(valid, sub)
		if len(valid) == maxSteps {
			break
		}
	}
	if len(valid) == 0 {
		return nil, &DecompositionError{Question: question,
			Reason: fmt.Sprintf("no usable sub-questions in %d parsed lines", len(parsed))}
	}
	return valid, nil
}

func (d *Decomposer) buildPrompt(question string, maxSteps int) string {
	var b strings.Builder
	b.WriteString("Break the following question into the smallest ordered list of ")
	b.WriteString("independent sub-questions needed to answer it completely.\n")
	fmt.Fprintf(&b, "Rules:\n- At most %d sub-questions.\n", maxSteps)
	b.WriteString("- Each sub-question must be answerable on its own.\n")
	b.WriteString("- Do not repeat the original question.\n")
	b.WriteString("- Respond with a numbered list only, no commentary.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// parsePlanLines extracts sub-questions from a numbered or bulleted list.
func parsePlanLines(out string) []string {
	var subs []string
	for _, line := range strings.Split(out, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		subs = append(subs, strings.TrimSpace(m[1]))
	}
	return subs
}

// sameQuestion compares two questions ignoring case, surrounding space,
// and trailing punctuation.
func sameQuestion(a, b string) bool {
	return canonicalQuestion(a) == canonicalQuestion(b)
}

func canonicalQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.TrimRight(q, "?!. ")
}

// hasNearDuplicate reports whether candidate is a near-identical rephrase
// of any accepted sub-question.
func hasNearDuplicate(accepted []string, candidate string) bool {
	for _, a := range accepted {
		if jaccardSimilarity(a, candidate) >= nearDuplicateThreshold {
			return true
		}
	}
	return false
}

// jaccardSimilarity computes token-set overlap between two questions.
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(canonicalQuestion(s)) {
		set[strings.Trim(tok, ",.;:?!")] = true
	}
	delete(set, "")
	return set
}
