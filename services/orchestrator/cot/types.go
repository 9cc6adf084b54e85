// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cot implements the chain-of-thought reasoning subsystem: the
// classifier that decides whether a question needs multi-step reasoning,
// the decomposer that plans sub-questions, the iterative reasoner that
// retrieves and answers each step, and the synthesizer that merges step
// answers into one leak-free final answer.
package cot

import (
	"fmt"
	"time"
)

// Strategy selects how a complex question is planned.
type Strategy string

const (
	StrategyZeroShot      Strategy = "zero_shot"
	StrategyDecomposition Strategy = "decomposition"
	StrategyIterative     Strategy = "iterative"
	StrategyTreeOfThought Strategy = "tree_of_thought"
)

// Valid reports whether the strategy is one of the known values.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyZeroShot, StrategyDecomposition, StrategyIterative, StrategyTreeOfThought:
		return true
	}
	return false
}

// UsesDecomposition reports whether the strategy plans sub-questions.
// Tree-of-thought planning shares the decomposition path; only its
// branch-exploration differs, and that collapses to an ordered plan here.
func (s Strategy) UsesDecomposition() bool {
	return s == StrategyDecomposition || s == StrategyIterative || s == StrategyTreeOfThought
}

// Step planning bounds.
const (
	// DefaultMaxReasoningSteps is the per-request default plan length.
	DefaultMaxReasoningSteps = 5

	// MaxReasoningStepsCap is the hard upper bound; requests asking for
	// more are clamped, not rejected.
	MaxReasoningStepsCap = 10
)

// Config is the request-scoped chain-of-thought configuration.
//
// The zero value disables reasoning; use DefaultConfig for the enabled
// defaults. Config values are immutable once a request starts.
type Config struct {
	Enabled               bool     `json:"enabled"`
	Strategy              Strategy `json:"strategy"`
	MaxReasoningSteps     int      `json:"max_reasoning_steps"`
	IncludeReasoningChain bool     `json:"include_reasoning_chain"`
	ParallelDecomposition bool     `json:"parallel_decomposition"`
}

// DefaultConfig returns the enabled default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Strategy:          StrategyIterative,
		MaxReasoningSteps: DefaultMaxReasoningSteps,
	}
}

// Normalize returns a copy with defaults applied and bounds enforced.
//
// An empty strategy becomes iterative; step counts are clamped to
// [1, MaxReasoningStepsCap].
func (c Config) Normalize() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyIterative
	}
	if c.MaxReasoningSteps < 1 {
		c.MaxReasoningSteps = DefaultMaxReasoningSteps
	}
	if c.MaxReasoningSteps > MaxReasoningStepsCap {
		c.MaxReasoningSteps = MaxReasoningStepsCap
	}
	return c
}

// Validate checks the strategy value. Step bounds are handled by
// Normalize since out-of-range counts are clamped rather than rejected.
func (c Config) Validate() error {
	if c.Strategy != "" && !c.Strategy.Valid() {
		return fmt.Errorf("unknown reasoning strategy %q", c.Strategy)
	}
	return nil
}

// StepUnavailable is the intermediate-answer marker recorded for a step
// that failed or timed out.
const StepUnavailable = "unavailable"

// ReasoningStep is one completed step of the reasoning chain.
//
// Steps are append-only; the ordered list forms the chain consumed by the
// synthesizer and, when requested for debugging, returned to the caller as
// a separate response field.
type ReasoningStep struct {
	// StepNumber is the 1-based plan position.
	StepNumber int `json:"step_number"`

	// Question is the sub-question this step answered.
	Question string `json:"question"`

	// IntermediateAnswer is the step's answer, or StepUnavailable when
	// the step degraded.
	IntermediateAnswer string `json:"intermediate_answer"`

	// Evidence lists source ids of the documents used, in retrieval order.
	Evidence []string `json:"evidence"`

	// Confidence is the mean relevance of the evidence, zero when degraded.
	Confidence float64 `json:"confidence"`

	// ElapsedMs is the wall time the step took.
	ElapsedMs int64 `json:"elapsed_ms"`

	// Degraded marks a step that failed retrieval or generation.
	Degraded bool `json:"degraded"`
}

// Usable reports whether the step carries a real intermediate answer.
func (s ReasoningStep) Usable() bool {
	return !s.Degraded && s.IntermediateAnswer != "" && s.IntermediateAnswer != StepUnavailable
}

// Elapsed returns the step duration.
func (s ReasoningStep) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMs) * time.Millisecond
}
