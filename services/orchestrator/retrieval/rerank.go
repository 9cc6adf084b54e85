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
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
)

// Reranking weights. Vector certainty dominates; lexical overlap breaks
// near-ties between chunks with similar embeddings.
const (
	certaintyWeight = 0.7
	overlapWeight   = 0.3
)

// Reranker reorders retrieved evidence by a second-pass relevance estimate.
//
// # Description
//
// The estimate blends the vector certainty with the query-term overlap of
// the chunk text. Reranking is pure and CPU-bound; it returns a new list
// with scores and ranks reassigned, leaving the input untouched.
type Reranker struct{}

// Rerank returns the evidence reordered by blended relevance.
func (Reranker) Rerank(question string, list ragcontext.DocumentContextList) ragcontext.DocumentContextList {
	if list.Len() < 2 {
		return list
	}
	queryTerms := termSet(question)

	type rescored struct {
		doc   ragcontext.DocumentContext
		score float64
	}
	items := list.Items()
	scored := make([]rescored, len(items))
	for i, d := range items {
		scored[i] = rescored{
			doc:   d,
			score: certaintyWeight*d.RelevanceScore + overlapWeight*termOverlap(queryTerms, d.Text),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]ragcontext.DocumentContext, 0, len(scored))
	for i, s := range scored {
		doc, err := ragcontext.NewDocumentContext(s.doc.Text, s.doc.SourceID, clamp01(s.score), i+1)
		if err != nil {
			continue
		}
		if s.doc.DocumentName != "" {
			doc = doc.WithDocumentName(s.doc.DocumentName)
		}
		doc = doc.WithPage(s.doc.PageNumber, s.doc.ChunkIndex)
		out = append(out, doc)
	}
	return ragcontext.NewDocumentContextList(out...)
}

// termOverlap is the fraction of query terms present in the text.
func termOverlap(queryTerms map[string]bool, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	textTerms := termSet(text)
	matched := 0
	for term := range queryTerms {
		if textTerms[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

func termSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ",.;:?!()[]\"'")
		if len(tok) > 2 && !stopWords[tok] {
			set[tok] = true
		}
	}
	return set
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "was": true, "are": true, "has": true, "had": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"which": true, "did": true, "does": true, "were": true, "its": true,
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
