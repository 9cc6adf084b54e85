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
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
)

func validRequest() SearchRequest {
	return SearchRequest{
		Question:     "What year did production start?",
		CollectionID: "col-1",
		UserID:       "user-1",
	}
}

func TestSearchRequest_Validate(t *testing.T) {
	req := validRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestSearchRequest_QuestionLengthBounds(t *testing.T) {
	req := validRequest()
	req.Question = "  ab  "
	if err := req.Validate(); err == nil {
		t.Error("question under 3 chars after trimming should be rejected")
	}

	req.Question = strings.Repeat("x", 1001)
	if err := req.Validate(); err == nil {
		t.Error("question over 1000 chars should be rejected")
	}

	req.Question = "  " + strings.Repeat("x", 1000) + "  "
	if err := req.Validate(); err != nil {
		t.Errorf("1000 chars after trimming should be accepted: %v", err)
	}
}

func TestSearchRequest_QuestionBoundsCountRunes(t *testing.T) {
	req := validRequest()

	// 400 CJK characters is roughly 1,200 bytes but well inside the
	// 1000-character bound.
	req.Question = strings.Repeat("產", 400) + "?"
	if err := req.Validate(); err != nil {
		t.Errorf("400-rune multibyte question rejected: %v", err)
	}

	req.Question = strings.Repeat("產", 1001)
	if err := req.Validate(); err == nil {
		t.Error("question over 1000 runes should be rejected")
	}

	req.Question = "產品?"
	if err := req.Validate(); err != nil {
		t.Errorf("3-rune multibyte question rejected: %v", err)
	}
}

func TestSearchRequest_RequiresCollection(t *testing.T) {
	req := validRequest()
	req.CollectionID = "   "
	if err := req.Validate(); err == nil {
		t.Error("missing collection_id should be rejected")
	}
}

func TestSearchRequest_RejectsUnknownStrategy(t *testing.T) {
	req := validRequest()
	req.CoTConfig = &cot.Config{Enabled: true, Strategy: "chain_of_density"}
	if err := req.Validate(); err == nil {
		t.Error("unknown strategy should be rejected")
	}
}

func TestConversationPayload_ToContext(t *testing.T) {
	p := &ConversationPayload{
		Entities: []EntityPayload{
			{Text: "Chrysler", Type: "organization", Confidence: 0.9, FirstMentionedTurn: 1, MentionCount: 3},
		},
		Turns: []TurnPayload{
			{TurnNumber: 2, Role: "assistant", Content: "answer"},
			{TurnNumber: 1, Role: "user", Content: "question"},
		},
		CurrentTopic: "automotive history",
	}
	ctx, err := p.ToContext()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctx.Entities()) != 1 || ctx.Entities()[0].EntityText != "Chrysler" {
		t.Errorf("entity not carried over: %+v", ctx.Entities())
	}
	if turns := ctx.Turns(); turns[0].TurnNumber != 1 {
		t.Error("turns should be ordered by turn number")
	}
	if ctx.CurrentTopic != "automotive history" {
		t.Errorf("topic not carried over: %q", ctx.CurrentTopic)
	}
}

func TestConversationPayload_ToContext_RejectsBadRole(t *testing.T) {
	p := &ConversationPayload{
		Turns: []TurnPayload{{TurnNumber: 1, Role: "narrator", Content: "hi"}},
	}
	if _, err := p.ToContext(); err == nil {
		t.Error("invalid role should be rejected")
	}
}

func TestConversationPayload_NilIsEmptyContext(t *testing.T) {
	var p *ConversationPayload
	ctx, err := p.ToContext()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ctx.Empty() {
		t.Error("nil payload should convert to an empty context")
	}
}
