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
	"testing"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
)

func doc(t *testing.T, text, id string, score float64, rank int) ragcontext.DocumentContext {
	t.Helper()
	d, err := ragcontext.NewDocumentContext(text, id, score, rank)
	if err != nil {
		t.Fatalf("NewDocumentContext: %v", err)
	}
	return d
}

func TestRerank_LexicalOverlapBreaksNearTies(t *testing.T) {
	question := "When did the turbine program end?"
	list := ragcontext.NewDocumentContextList(
		doc(t, "Production figures for sedans across several decades.", "off-topic", 0.80, 1),
		doc(t, "The turbine program ended after the fiftieth prototype.", "on-topic", 0.79, 2),
	)
	got := Reranker{}.Rerank(question, list)
	if got.At(0).SourceID != "on-topic" {
		t.Errorf("expected lexically matching chunk first, got %q", got.At(0).SourceID)
	}
}

func TestRerank_ReassignsRanks(t *testing.T) {
	list := ragcontext.NewDocumentContextList(
		doc(t, "alpha text", "a", 0.5, 1),
		doc(t, "beta text", "b", 0.9, 2),
	)
	got := Reranker{}.Rerank("unrelated question terms", list)
	for i := 0; i < got.Len(); i++ {
		if got.At(i).RetrievalRank != i+1 {
			t.Errorf("rank %d not reassigned, got %d", i+1, got.At(i).RetrievalRank)
		}
	}
	if got.At(0).SourceID != "b" {
		t.Errorf("higher certainty should lead with no lexical signal, got %q", got.At(0).SourceID)
	}
}

func TestRerank_SingleItemUnchanged(t *testing.T) {
	list := ragcontext.NewDocumentContextList(doc(t, "only item", "a", 0.5, 1))
	got := Reranker{}.Rerank("question", list)
	if got.Len() != 1 || got.At(0).SourceID != "a" {
		t.Errorf("single-item list should pass through, got %v", got.SourceIDs())
	}
}

func TestRerank_DoesNotMutateInput(t *testing.T) {
	list := ragcontext.NewDocumentContextList(
		doc(t, "first", "a", 0.2, 1),
		doc(t, "second", "b", 0.9, 2),
	)
	Reranker{}.Rerank("second", list)
	if list.At(0).SourceID != "a" || list.At(0).RetrievalRank != 1 {
		t.Error("rerank mutated its input list")
	}
}

func TestTermOverlap(t *testing.T) {
	terms := termSet("When did the turbine program end?")
	if got := termOverlap(terms, "The turbine program ended in the sixties."); got == 0 {
		t.Error("expected non-zero overlap for shared terms")
	}
	if got := termOverlap(terms, "Completely unrelated sentence about sedans."); got != 0 {
		t.Errorf("expected zero overlap, got %f", got)
	}
}
