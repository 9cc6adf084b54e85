// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
)

// Question length bounds after trimming.
const (
	MinQuestionLength = 3
	MaxQuestionLength = 1000
)

// SearchRequest is the request body for POST /v1/search.
//
// Conversation state must arrive as typed entities and turns; the API
// rejects unknown fields at decode time, so an opaque config_metadata
// payload never reaches the pipeline.
type SearchRequest struct {
	Question     string               `json:"question"`
	CollectionID string               `json:"collection_id"`
	UserID       string               `json:"user_id"`
	CoTConfig    *cot.Config          `json:"cot_config,omitempty"`
	Conversation *ConversationPayload `json:"conversation,omitempty"`
}

// Validate checks the request and returns a caller-facing error message.
func (r *SearchRequest) Validate() error {
	// Bounds are in characters, not bytes, so multibyte questions are
	// measured the way callers count them.
	q := strings.TrimSpace(r.Question)
	runes := utf8.RuneCountInString(q)
	if runes < MinQuestionLength {
		return fmt.Errorf("question must be at least %d characters after trimming", MinQuestionLength)
	}
	if runes > MaxQuestionLength {
		return fmt.Errorf("question must be at most %d characters after trimming", MaxQuestionLength)
	}
	if strings.TrimSpace(r.CollectionID) == "" {
		return fmt.Errorf("collection_id is required")
	}
	if r.CoTConfig != nil {
		if err := r.CoTConfig.Validate(); err != nil {
			return err
		}
	}
	if r.Conversation != nil {
		if err := r.Conversation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TrimmedQuestion returns the question with surrounding space removed.
func (r *SearchRequest) TrimmedQuestion() string {
	return strings.TrimSpace(r.Question)
}

// ConversationPayload is the typed wire form of conversation state.
type ConversationPayload struct {
	Entities     []EntityPayload `json:"entities,omitempty"`
	Turns        []TurnPayload   `json:"turns,omitempty"`
	CurrentTopic string          `json:"current_topic,omitempty"`
}

// EntityPayload is one recognized entity on the wire.
type EntityPayload struct {
	Text               string  `json:"text"`
	Type               string  `json:"type"`
	Confidence         float64 `json:"confidence"`
	FirstMentionedTurn int     `json:"first_mentioned_turn"`
	MentionCount       int     `json:"mention_count"`
}

// TurnPayload is one conversation turn on the wire.
type TurnPayload struct {
	TurnNumber int    `json:"turn_number"`
	Role       string `json:"role"`
	Content    string `json:"content"`
}

// Validate checks the payload shape without building context objects.
func (p *ConversationPayload) Validate() error {
	for i, e := range p.Entities {
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("conversation entity %d has empty text", i)
		}
	}
	for i, t := range p.Turns {
		if t.TurnNumber < 1 {
			return fmt.Errorf("conversation turn %d has invalid turn_number %d", i, t.TurnNumber)
		}
		if !ragcontext.Role(t.Role).Valid() {
			return fmt.Errorf("conversation turn %d has invalid role %q", i, t.Role)
		}
		if strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("conversation turn %d has empty content", i)
		}
	}
	return nil
}

// ToContext converts the payload into an immutable conversation context.
func (p *ConversationPayload) ToContext() (ragcontext.ConversationContext, error) {
	if p == nil {
		return ragcontext.ConversationContext{}, nil
	}
	entities := make([]ragcontext.ConversationEntity, 0, len(p.Entities))
	for i, e := range p.Entities {
		entity, err := ragcontext.NewEntityFromRecognizer(ragcontext.RecognizedEntity{
			Text:       e.Text,
			Type:       ragcontext.EntityType(e.Type),
			Confidence: e.Confidence,
		}, e.FirstMentionedTurn)
		if err != nil {
			return ragcontext.ConversationContext{}, fmt.Errorf("entity %d: %w", i, err)
		}
		entities = append(entities, entity.WithMentions(e.MentionCount))
	}
	turns := make([]ragcontext.ConversationTurn, 0, len(p.Turns))
	for i, t := range p.Turns {
		turn, err := ragcontext.NewConversationTurn(t.TurnNumber, ragcontext.Role(t.Role), t.Content)
		if err != nil {
			return ragcontext.ConversationContext{}, fmt.Errorf("turn %d: %w", i, err)
		}
		turns = append(turns, turn)
	}
	return ragcontext.NewConversationContext(entities, turns, p.CurrentTopic), nil
}

// EvidenceItem is one supporting document in the response.
type EvidenceItem struct {
	SourceID       string  `json:"source_id"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
	Rank           int     `json:"rank"`
}

// EvidenceFromDocuments converts an evidence list to its wire form.
func EvidenceFromDocuments(list ragcontext.DocumentContextList) []EvidenceItem {
	out := make([]EvidenceItem, 0, list.Len())
	for _, d := range list.Items() {
		out = append(out, EvidenceItem{
			SourceID:       d.SourceID,
			Text:           d.Text,
			RelevanceScore: d.RelevanceScore,
			Rank:           d.RetrievalRank,
		})
	}
	return out
}

// SearchResponse is the response body for POST /v1/search.
//
// ReasoningChain is populated only when the request set
// include_reasoning_chain; the chain is a separate field and is never
// interpolated into Answer.
type SearchResponse struct {
	Answer               string              `json:"answer"`
	Evidence             []EvidenceItem      `json:"evidence"`
	ReasoningChain       []cot.ReasoningStep `json:"reasoning_chain,omitempty"`
	StrategyUsed         string              `json:"strategy_used"`
	TotalReasoningTimeMs int64               `json:"total_reasoning_time_ms"`
	RetrievalRounds      int                 `json:"retrieval_rounds"`
	Cached               bool                `json:"cached,omitempty"`
}
