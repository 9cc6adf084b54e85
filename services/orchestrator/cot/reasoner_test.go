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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianQuery/services/llm"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
)

// fakeRetriever serves canned evidence and records the queries it saw.
type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	failOn  map[int]error // 1-based call number -> error
	calls   int
	delay   time.Duration
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) (ragcontext.DocumentContextList, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.failOn[call]; ok {
		return ragcontext.DocumentContextList{}, err
	}
	doc, err := ragcontext.NewDocumentContext(
		fmt.Sprintf("evidence for call %d", call),
		fmt.Sprintf("doc-%d", call), 0.8, 1)
	if err != nil {
		return ragcontext.DocumentContextList{}, err
	}
	return ragcontext.NewDocumentContextList(doc), nil
}

// stepGenerator answers with the step question so tests can trace outputs.
type stepGenerator struct {
	mu      sync.Mutex
	failOn  map[int]error
	calls   int
	onCall  func(call int)
	answers map[int]string
}

func (g *stepGenerator) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()
	if g.onCall != nil {
		g.onCall(call)
	}
	if err, ok := g.failOn[call]; ok {
		return "", err
	}
	if ans, ok := g.answers[call]; ok {
		return ans, nil
	}
	return fmt.Sprintf("answer %d", call), nil
}

func testReasoner(ret Retriever, gen llm.LLMClient) *Reasoner {
	cfg := DefaultReasonerConfig()
	cfg.StepsPerSecond = 1000
	return NewReasoner(ret, gen, nil, cfg)
}

func TestExecute_SequentialChainInPlanOrder(t *testing.T) {
	ret := &fakeRetriever{}
	gen := &stepGenerator{}
	chain := testReasoner(ret, gen).Execute(context.Background(),
		[]string{"first?", "second?", "third?"}, ragcontext.ConversationContext{}, false)

	if len(chain) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(chain))
	}
	for i, step := range chain {
		if step.StepNumber != i+1 {
			t.Errorf("step %d has number %d", i, step.StepNumber)
		}
		if step.Degraded {
			t.Errorf("step %d unexpectedly degraded", step.StepNumber)
		}
		if len(step.Evidence) == 0 {
			t.Errorf("step %d has no evidence ids", step.StepNumber)
		}
	}
}

func TestExecute_PriorAnswersFeedLaterQueries(t *testing.T) {
	ret := &fakeRetriever{}
	gen := &stepGenerator{answers: map[int]string{1: "the Hemi debuted in 1951"}}
	testReasoner(ret, gen).Execute(context.Background(),
		[]string{"first?", "second?"}, ragcontext.ConversationContext{}, false)

	if len(ret.queries) != 2 {
		t.Fatalf("expected 2 retrieval calls, got %d", len(ret.queries))
	}
	if strings.Contains(ret.queries[0], "Hemi debuted") {
		t.Error("first query should not carry prior findings")
	}
	if !strings.Contains(ret.queries[1], "the Hemi debuted in 1951") {
		t.Errorf("second query should carry the first answer, got %q", ret.queries[1])
	}
}

func TestExecute_RetrievalFailureDegradesOnlyThatStep(t *testing.T) {
	ret := &fakeRetriever{failOn: map[int]error{2: errors.New("vector store timeout")}}
	gen := &stepGenerator{}
	chain := testReasoner(ret, gen).Execute(context.Background(),
		[]string{"first?", "second?", "third?"}, ragcontext.ConversationContext{}, false)

	if len(chain) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(chain))
	}
	if !chain[1].Degraded || chain[1].IntermediateAnswer != StepUnavailable {
		t.Errorf("step 2 should be degraded with the unavailable marker, got %+v", chain[1])
	}
	if chain[0].Degraded || chain[2].Degraded {
		t.Error("steps 1 and 3 should still succeed")
	}
}

func TestExecute_GenerationFailureDegradesStep(t *testing.T) {
	ret := &fakeRetriever{}
	gen := &stepGenerator{failOn: map[int]error{1: errors.New("provider overloaded")}}
	chain := testReasoner(ret, gen).Execute(context.Background(),
		[]string{"only?"}, ragcontext.ConversationContext{}, false)

	if len(chain) != 1 || !chain[0].Degraded {
		t.Fatalf("expected one degraded step, got %+v", chain)
	}
	if chain[0].Confidence != 0 {
		t.Errorf("degraded step should carry zero confidence, got %f", chain[0].Confidence)
	}
}

func TestExecute_AllStepsFailing(t *testing.T) {
	ret := &fakeRetriever{failOn: map[int]error{1: errors.New("down"), 2: errors.New("down")}}
	gen := &stepGenerator{}
	chain := testReasoner(ret, gen).Execute(context.Background(),
		[]string{"first?", "second?"}, ragcontext.ConversationContext{}, false)

	for _, step := range chain {
		if step.Usable() {
			t.Errorf("no step should be usable, got %+v", step)
		}
	}
	if got := (Synthesizer{}).Synthesize(chain); got != InsufficientInformation {
		t.Errorf("fully failed chain should synthesize the sentinel, got %q", got)
	}
}

func TestExecute_DeadlineStopsRemainingSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &fakeRetriever{}
	gen := &stepGenerator{onCall: func(call int) {
		if call == 2 {
			cancel()
		}
	}}
	chain := testReasoner(ret, gen).Execute(ctx,
		[]string{"one?", "two?", "three?", "four?"}, ragcontext.ConversationContext{}, false)

	if len(chain) > 2 {
		t.Errorf("expected at most 2 completed steps after cancellation, got %d", len(chain))
	}
	if len(chain) == 0 {
		t.Error("completed steps before cancellation should be kept")
	}
}

func TestExecute_ParallelCommitsInPlanOrder(t *testing.T) {
	ret := &fakeRetriever{delay: 2 * time.Millisecond}
	gen := &stepGenerator{}
	chain := testReasoner(ret, gen).Execute(context.Background(),
		[]string{"one?", "two?", "three?"}, ragcontext.ConversationContext{}, true)

	if len(chain) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(chain))
	}
	for i, step := range chain {
		if step.StepNumber != i+1 {
			t.Errorf("parallel chain out of plan order at index %d: step %d", i, step.StepNumber)
		}
		if step.Question != []string{"one?", "two?", "three?"}[i] {
			t.Errorf("step %d answered the wrong question: %q", step.StepNumber, step.Question)
		}
	}
}

func TestExecute_EmptyPlan(t *testing.T) {
	chain := testReasoner(&fakeRetriever{}, &stepGenerator{}).Execute(
		context.Background(), nil, ragcontext.ConversationContext{}, false)
	if len(chain) != 0 {
		t.Errorf("empty plan should produce an empty chain, got %d steps", len(chain))
	}
}

func TestPriorSummary_TruncatesAtRuneBoundary(t *testing.T) {
	// Three-byte runes that do not divide the limit evenly, so a byte
	// cut would land mid-rune.
	chain := []ReasoningStep{{
		StepNumber:         1,
		Question:           "one?",
		IntermediateAnswer: strings.Repeat("產", 200),
	}}

	got := priorSummary(chain)
	if len(got) > priorSummaryCharLimit {
		t.Errorf("summary length %d exceeds limit %d", len(got), priorSummaryCharLimit)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated summary is not valid UTF-8")
	}
}
