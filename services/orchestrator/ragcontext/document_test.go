// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ragcontext

import (
	"strings"
	"testing"
)

func mustDoc(t *testing.T, text, sourceID string, score float64, rank int) DocumentContext {
	t.Helper()
	d, err := NewDocumentContext(text, sourceID, score, rank)
	if err != nil {
		t.Fatalf("NewDocumentContext(%q): %v", sourceID, err)
	}
	return d
}

func TestNewDocumentContext_EmptyText(t *testing.T) {
	if _, err := NewDocumentContext("   ", "doc-1", 0.9, 1); err == nil {
		t.Error("expected error for empty text, got nil")
	}
}

func TestNewDocumentContext_EmptySourceID(t *testing.T) {
	if _, err := NewDocumentContext("content", "", 0.9, 1); err == nil {
		t.Error("expected error for empty source id, got nil")
	}
}

func TestNewDocumentContext_ClampsScoreAndRank(t *testing.T) {
	d := mustDoc(t, "content", "doc-1", 1.7, 0)
	if d.RelevanceScore != 1.0 {
		t.Errorf("expected score clamped to 1.0, got %f", d.RelevanceScore)
	}
	if d.RetrievalRank != 1 {
		t.Errorf("expected rank floored to 1, got %d", d.RetrievalRank)
	}

	d = mustDoc(t, "content", "doc-2", -0.2, 3)
	if d.RelevanceScore != 0.0 {
		t.Errorf("expected score clamped to 0.0, got %f", d.RelevanceScore)
	}
}

func TestDocumentContextList_DeduplicatesBySourceID(t *testing.T) {
	list := NewDocumentContextList(
		mustDoc(t, "first occurrence", "doc-1", 0.9, 1),
		mustDoc(t, "other doc", "doc-2", 0.8, 2),
		mustDoc(t, "duplicate of first", "doc-1", 0.7, 3),
	)
	if list.Len() != 2 {
		t.Fatalf("expected 2 items after dedup, got %d", list.Len())
	}
	if list.At(0).Text != "first occurrence" {
		t.Errorf("expected first occurrence to win, got %q", list.At(0).Text)
	}
}

func TestDocumentContextList_TopK(t *testing.T) {
	list := NewDocumentContextList(
		mustDoc(t, "a", "doc-1", 0.9, 1),
		mustDoc(t, "b", "doc-2", 0.8, 2),
		mustDoc(t, "c", "doc-3", 0.7, 3),
	)

	top := list.TopK(2)
	if top.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", top.Len())
	}
	if top.At(0).SourceID != "doc-1" || top.At(1).SourceID != "doc-2" {
		t.Errorf("TopK changed ordering: %v", top.SourceIDs())
	}

	if list.TopK(10).Len() != 3 {
		t.Error("TopK larger than list should return whole list")
	}
	if list.TopK(0).Len() != 0 {
		t.Error("TopK(0) should return empty list")
	}
}

func TestDocumentContextList_AppendPreservesDedup(t *testing.T) {
	list := NewDocumentContextList(mustDoc(t, "a", "doc-1", 0.9, 1))
	grown := list.Append(
		mustDoc(t, "b", "doc-2", 0.8, 2),
		mustDoc(t, "dup", "doc-1", 0.5, 3),
	)
	if grown.Len() != 2 {
		t.Errorf("expected 2 items, got %d", grown.Len())
	}
	if list.Len() != 1 {
		t.Error("Append mutated the receiver")
	}
}

func TestDocumentContextList_FormatForPrompt_NumbersAndLabels(t *testing.T) {
	list := NewDocumentContextList(
		mustDoc(t, "alpha content", "doc-1", 0.9, 1).WithDocumentName("auth.md").WithPage(3, 0),
		mustDoc(t, "beta content", "doc-2", 0.8, 2),
	)
	out := list.FormatForPrompt(10000)
	if !strings.Contains(out, "[Document 1: auth.md p.3]") {
		t.Errorf("missing labeled header, got:\n%s", out)
	}
	if !strings.Contains(out, "[Document 2: doc-2]") {
		t.Errorf("missing fallback source-id label, got:\n%s", out)
	}
	if !strings.Contains(out, "alpha content") || !strings.Contains(out, "beta content") {
		t.Error("document text missing from formatted output")
	}
}

func TestDocumentContextList_FormatForPrompt_DropsWholeDocsOverBudget(t *testing.T) {
	list := NewDocumentContextList(
		mustDoc(t, strings.Repeat("x", 50), "doc-1", 0.9, 1),
		mustDoc(t, strings.Repeat("y", 500), "doc-2", 0.8, 2),
	)
	out := list.FormatForPrompt(100)
	if !strings.Contains(out, "doc-1") {
		t.Error("first document should fit the budget")
	}
	if strings.Contains(out, "yyy") {
		t.Error("second document should be dropped whole, not truncated")
	}
}
