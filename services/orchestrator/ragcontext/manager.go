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
	"log/slog"
	"sort"
)

// Default manager configuration.
const (
	// DefaultTokenBudget is the evidence token budget per generation call.
	DefaultTokenBudget = 3000

	// CharsPerToken approximates characters per token.
	CharsPerToken = 4.0

	// DefaultMaxDocuments caps how many evidence items survive pruning
	// regardless of budget headroom.
	DefaultMaxDocuments = 12
)

// ManagerConfig configures the context manager.
type ManagerConfig struct {
	// TokenBudget is the maximum estimated tokens of evidence text.
	TokenBudget int

	// MaxDocuments caps the number of evidence items.
	MaxDocuments int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TokenBudget:  DefaultTokenBudget,
		MaxDocuments: DefaultMaxDocuments,
	}
}

// Manager bounds evidence lists to a token budget.
//
// # Description
//
// Manager deduplicates evidence (NewDocumentContextList already guarantees
// this) and prunes low-value items until the estimated token cost fits the
// budget. Pruning removes the lowest relevance score first, ties broken by
// worse retrieval rank, and preserves the original ordering of the
// survivors so reranked order reaches the prompt intact.
//
// Manager is pure and CPU-bound; it never suspends and holds no mutable
// state, so one instance serves all requests concurrently.
type Manager struct {
	cfg ManagerConfig
}

// NewManager creates a Manager, correcting non-positive config values to
// defaults.
func NewManager(cfg ManagerConfig) *Manager {
	defaults := DefaultManagerConfig()
	if cfg.TokenBudget < 1 {
		cfg.TokenBudget = defaults.TokenBudget
	}
	if cfg.MaxDocuments < 1 {
		cfg.MaxDocuments = defaults.MaxDocuments
	}
	return &Manager{cfg: cfg}
}

// EstimateTokens approximates the token cost of a string.
func EstimateTokens(s string) int {
	return int(float64(len(s))/CharsPerToken) + 1
}

// Budget returns the configured token budget.
func (m *Manager) Budget() int {
	return m.cfg.TokenBudget
}

// BudgetChars returns the budget expressed in characters, for use as a
// FormatForPrompt bound.
func (m *Manager) BudgetChars() int {
	return int(float64(m.cfg.TokenBudget) * CharsPerToken)
}

// Fit returns a new list pruned to the token budget and document cap.
//
// The input list is not modified. When pruning occurs the drop is logged at
// debug level with the surviving count.
func (m *Manager) Fit(list DocumentContextList) DocumentContextList {
	docs := list.Items()
	if len(docs) > m.cfg.MaxDocuments {
		docs = m.pruneLowestValue(docs, len(docs)-m.cfg.MaxDocuments)
	}
	for len(docs) > 1 && m.totalTokens(docs) > m.cfg.TokenBudget {
		docs = m.pruneLowestValue(docs, 1)
	}
	if len(docs) < list.Len() {
		slog.Debug("pruned evidence to fit context budget",
			"before", list.Len(),
			"after", len(docs),
			"token_budget", m.cfg.TokenBudget,
		)
	}
	return NewDocumentContextList(docs...)
}

// totalTokens sums the estimated token cost of the evidence text.
func (m *Manager) totalTokens(docs []DocumentContext) int {
	total := 0
	for _, d := range docs {
		total += EstimateTokens(d.Text)
	}
	return total
}

// pruneLowestValue removes n items with the lowest relevance score (worse
// retrieval rank loses ties), keeping the remaining items in their original
// order.
func (m *Manager) pruneLowestValue(docs []DocumentContext, n int) []DocumentContext {
	if n >= len(docs) {
		return nil
	}
	type scored struct {
		idx int
		doc DocumentContext
	}
	ranked := make([]scored, len(docs))
	for i, d := range docs {
		ranked[i] = scored{idx: i, doc: d}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].doc.RelevanceScore != ranked[j].doc.RelevanceScore {
			return ranked[i].doc.RelevanceScore < ranked[j].doc.RelevanceScore
		}
		return ranked[i].doc.RetrievalRank > ranked[j].doc.RetrievalRank
	})
	drop := make(map[int]bool, n)
	for _, s := range ranked[:n] {
		drop[s.idx] = true
	}
	out := make([]DocumentContext, 0, len(docs)-n)
	for i, d := range docs {
		if !drop[i] {
			out = append(out, d)
		}
	}
	return out
}
