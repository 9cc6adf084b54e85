// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ragcontext provides the typed context objects that flow through the
// question-answering pipeline.
//
// # Description
//
// Every piece of state the pipeline hands to the model is represented here as
// an explicit value type: retrieved evidence (DocumentContext), conversation
// state (ConversationEntity, ConversationTurn, ConversationContext), and
// prompt instructions (PromptInstructions). There are no untyped key/value
// metadata maps; each field has a known type and bound. This eliminates the
// class of bugs where metadata strings leak verbatim into generated prompts.
//
// All types are constructed once per request and treated as immutable:
// operations return new values rather than mutating in place, so no locking
// is required when requests are processed concurrently.
//
// # Thread Safety
//
// All types in this package are value types and safe for concurrent read
// access. Modifications should be done on copies.
package ragcontext

import (
	"fmt"
	"strings"
)

// DocumentContext is a single piece of retrieved evidence.
//
// # Description
//
// DocumentContext is produced by the retrieval stage and consumed read-only
// by reasoning and generation. The relevance score is normalized to [0,1]
// (Weaviate certainty) and the retrieval rank is 1-based.
//
// # Thread Safety
//
// DocumentContext is a value type and safe for concurrent read access.
type DocumentContext struct {
	// Text is the chunk content.
	Text string

	// SourceID uniquely identifies the chunk within the collection.
	// Used for deduplication and for evidence references in reasoning steps.
	SourceID string

	// DocumentName is the human-readable source document name, if known.
	DocumentName string

	// PageNumber is the 1-based page within the source document.
	// Zero means unknown.
	PageNumber int

	// ChunkIndex is the 0-based chunk position within the document.
	// Negative means unknown.
	ChunkIndex int

	// RelevanceScore is the retrieval relevance in [0,1].
	RelevanceScore float64

	// RetrievalRank is the 1-based rank assigned at retrieval time.
	RetrievalRank int
}

// NewDocumentContext creates a DocumentContext with validated bounds.
//
// The relevance score is clamped to [0,1] and the rank floored at 1, so a
// retriever returning slightly out-of-range values degrades to a valid
// context object instead of propagating a bad bound downstream.
//
// Returns an error only when the evidence is unusable (empty text or
// empty source id).
func NewDocumentContext(text, sourceID string, score float64, rank int) (DocumentContext, error) {
	if strings.TrimSpace(text) == "" {
		return DocumentContext{}, fmt.Errorf("document context requires non-empty text")
	}
	if sourceID == "" {
		return DocumentContext{}, fmt.Errorf("document context requires a source id")
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if rank < 1 {
		rank = 1
	}
	return DocumentContext{
		Text:           text,
		SourceID:       sourceID,
		ChunkIndex:     -1,
		RelevanceScore: score,
		RetrievalRank:  rank,
	}, nil
}

// WithDocumentName returns a copy with the document name set.
func (d DocumentContext) WithDocumentName(name string) DocumentContext {
	d.DocumentName = name
	return d
}

// WithPage returns a copy with page number and chunk index set.
func (d DocumentContext) WithPage(page, chunk int) DocumentContext {
	d.PageNumber = page
	d.ChunkIndex = chunk
	return d
}

// Label returns the display label used when formatting evidence for the
// model, e.g. "auth.md p.3" or the source id when no name is known.
func (d DocumentContext) Label() string {
	if d.DocumentName == "" {
		return d.SourceID
	}
	if d.PageNumber > 0 {
		return fmt.Sprintf("%s p.%d", d.DocumentName, d.PageNumber)
	}
	return d.DocumentName
}

// DocumentContextList is an ordered, deduplicated collection of evidence.
//
// # Description
//
// The list preserves insertion order and drops later duplicates by SourceID,
// so the first (highest-ranked) occurrence of a chunk wins. It supports
// top-k selection and bounded-length formatting for prompt assembly.
//
// The zero value is an empty, usable list.
type DocumentContextList struct {
	docs []DocumentContext
}

// NewDocumentContextList builds a list from the given contexts, preserving
// order and deduplicating by SourceID.
func NewDocumentContextList(docs ...DocumentContext) DocumentContextList {
	list := DocumentContextList{}
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.SourceID == "" || seen[d.SourceID] {
			continue
		}
		seen[d.SourceID] = true
		list.docs = append(list.docs, d)
	}
	return list
}

// Len returns the number of evidence items.
func (l DocumentContextList) Len() int {
	return len(l.docs)
}

// At returns the item at index i.
func (l DocumentContextList) At(i int) DocumentContext {
	return l.docs[i]
}

// Items returns a copy of the underlying slice.
//
// The copy keeps callers from mutating the list through the returned slice.
func (l DocumentContextList) Items() []DocumentContext {
	out := make([]DocumentContext, len(l.docs))
	copy(out, l.docs)
	return out
}

// TopK returns a new list containing the first k items.
//
// If k is larger than the list, the whole list is returned; k < 1 returns
// an empty list.
func (l DocumentContextList) TopK(k int) DocumentContextList {
	if k < 1 {
		return DocumentContextList{}
	}
	if k > len(l.docs) {
		k = len(l.docs)
	}
	out := make([]DocumentContext, k)
	copy(out, l.docs[:k])
	return DocumentContextList{docs: out}
}

// Append returns a new list with the given contexts added, preserving the
// deduplication invariant. The receiver is not modified.
func (l DocumentContextList) Append(docs ...DocumentContext) DocumentContextList {
	merged := make([]DocumentContext, 0, len(l.docs)+len(docs))
	merged = append(merged, l.docs...)
	merged = append(merged, docs...)
	return NewDocumentContextList(merged...)
}

// SourceIDs returns the ordered source ids of the evidence.
func (l DocumentContextList) SourceIDs() []string {
	ids := make([]string, len(l.docs))
	for i, d := range l.docs {
		ids[i] = d.SourceID
	}
	return ids
}

// FormatForPrompt renders the evidence as numbered document blocks, bounded
// to maxChars. Documents that would exceed the bound are dropped whole; a
// document is never truncated mid-chunk because partial sentences measurably
// degrade grounding.
//
// Output shape:
//
//	[Document 1: auth.md p.3]
//	<chunk text>
//
//	[Document 2: tokens.md]
//	<chunk text>
func (l DocumentContextList) FormatForPrompt(maxChars int) string {
	if maxChars < 1 || len(l.docs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range l.docs {
		block := fmt.Sprintf("[Document %d: %s]\n%s\n\n", i+1, d.Label(), strings.TrimSpace(d.Text))
		if b.Len()+len(block) > maxChars {
			break
		}
		b.WriteString(block)
	}
	return strings.TrimRight(b.String(), "\n")
}
