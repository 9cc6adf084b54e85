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
	"testing"

	"github.com/AleutianAI/AleutianQuery/services/llm"
)

type fakeGenerator struct {
	output  string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func TestDecompose_ParsesNumberedList(t *testing.T) {
	gen := &fakeGenerator{output: "1. What is the Hemi engine?\n2. How does the Hemi relate to the 300 series?\n"}
	plan, fellBack := NewDecomposer(gen).Decompose(context.Background(),
		"What is the Hemi engine and how does it relate to the 300 series?", 5)
	if fellBack {
		t.Fatal("unexpected fallback")
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 sub-questions, got %d: %v", len(plan), plan)
	}
	if plan[0] != "What is the Hemi engine?" {
		t.Errorf("unexpected first sub-question: %q", plan[0])
	}
}

func TestDecompose_ParsesBulletedList(t *testing.T) {
	gen := &fakeGenerator{output: "- First sub-question?\n* Second sub-question?\n"}
	plan, fellBack := NewDecomposer(gen).Decompose(context.Background(), "Original question?", 5)
	if fellBack || len(plan) != 2 {
		t.Fatalf("expected 2 sub-questions without fallback, got %v (fellBack=%v)", plan, fellBack)
	}
}

func TestDecompose_CapsAtMaxSteps(t *testing.T) {
	gen := &fakeGenerator{output: "1. Q one?\n2. Q two?\n3. Q three?\n4. Q four?\n"}
	plan, _ := NewDecomposer(gen).Decompose(context.Background(), "Big question?", 2)
	if len(plan) != 2 {
		t.Errorf("expected plan capped at 2, got %d", len(plan))
	}
}

func TestDecompose_ClampsToHardCap(t *testing.T) {
	var lines string
	for i := 0; i < 15; i++ {
		lines += "1. Distinct sub-question number " + string(rune('a'+i)) + "?\n"
	}
	gen := &fakeGenerator{output: lines}
	plan, _ := NewDecomposer(gen).Decompose(context.Background(), "Big question?", 50)
	if len(plan) > MaxReasoningStepsCap {
		t.Errorf("plan length %d exceeds hard cap %d", len(plan), MaxReasoningStepsCap)
	}
}

func TestDecompose_DropsEchoOfOriginalQuestion(t *testing.T) {
	original := "What caused the 1957 quality problems?"
	gen := &fakeGenerator{output: "1. what caused the 1957 quality problems\n2. What changed in the 1957 production schedule?\n"}
	plan, fellBack := NewDecomposer(gen).Decompose(context.Background(), original, 5)
	if fellBack {
		t.Fatal("unexpected fallback")
	}
	if len(plan) != 1 || plan[0] != "What changed in the 1957 production schedule?" {
		t.Errorf("echo of original should be dropped, got %v", plan)
	}
}

func TestDecompose_DeduplicatesNearIdenticalSubQuestions(t *testing.T) {
	gen := &fakeGenerator{output: "1. What engines were offered in 1957?\n2. What engines were offered in 1957\n3. Which transmissions were available?\n"}
	plan, _ := NewDecomposer(gen).Decompose(context.Background(), "Tell me about the 1957 drivetrain options?", 5)
	if len(plan) != 2 {
		t.Errorf("expected near-duplicate dropped, got %v", plan)
	}
}

func TestDecompose_FallsBackOnGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	original := "Why did sales fall and what was the response?"
	plan, fellBack := NewDecomposer(gen).Decompose(context.Background(), original, 5)
	if !fellBack {
		t.Fatal("expected fallback")
	}
	if len(plan) != 1 || plan[0] != original {
		t.Errorf("fallback plan should be the original question, got %v", plan)
	}
}

func TestDecompose_FallsBackOnUnusableOutput(t *testing.T) {
	gen := &fakeGenerator{output: "I cannot break this question down."}
	plan, fellBack := NewDecomposer(gen).Decompose(context.Background(), "Original?", 5)
	if !fellBack || len(plan) != 1 {
		t.Errorf("unparseable output should fall back to a single step, got %v (fellBack=%v)", plan, fellBack)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if got := jaccardSimilarity("What engines were offered?", "what engines were offered"); got < nearDuplicateThreshold {
		t.Errorf("identical questions should score above the threshold, got %f", got)
	}
	if got := jaccardSimilarity("What engines were offered?", "Which transmissions were available?"); got >= nearDuplicateThreshold {
		t.Errorf("distinct questions should score below the threshold, got %f", got)
	}
}
