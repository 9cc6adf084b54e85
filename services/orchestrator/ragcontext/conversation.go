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
	"fmt"
	"sort"
	"strings"
)

// EntityType categorizes a conversation entity.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityPerson       EntityType = "person"
	EntityLocation     EntityType = "location"
	EntityDate         EntityType = "date"
	EntityConcept      EntityType = "concept"
	EntityOther        EntityType = "other"
)

// Valid reports whether the entity type is one of the known values.
func (t EntityType) Valid() bool {
	switch t {
	case EntityOrganization, EntityPerson, EntityLocation, EntityDate, EntityConcept, EntityOther:
		return true
	}
	return false
}

// ConversationEntity is a named entity tracked across conversation turns.
//
// # Description
//
// Entities arrive from the caller as typed values, never as opaque strings,
// and are created through the factory functions below. The caller chooses
// the constructor matching its input shape; there is no runtime type
// inspection.
//
// # Thread Safety
//
// ConversationEntity is a value type and safe for concurrent read access.
type ConversationEntity struct {
	// EntityText is the surface form, e.g. "Chrysler".
	EntityText string

	// Type categorizes the entity.
	Type EntityType

	// Confidence is the recognizer confidence in [0,1]. Entities created
	// from free text carry 1.0 (the user literally said it).
	Confidence float64

	// FirstMentionedTurn is the 1-based turn of first mention.
	FirstMentionedTurn int

	// MentionCount is how many turns mention the entity. At least 1.
	MentionCount int
}

// NewEntityFromText creates an entity from free text mentioned by the user.
//
// The entity type defaults to concept and confidence to 1.0. Use
// NewEntityFromRecognizer for NER output.
func NewEntityFromText(text string, firstTurn int) (ConversationEntity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ConversationEntity{}, fmt.Errorf("entity text must not be empty")
	}
	if firstTurn < 1 {
		firstTurn = 1
	}
	return ConversationEntity{
		EntityText:         text,
		Type:               EntityConcept,
		Confidence:         1.0,
		FirstMentionedTurn: firstTurn,
		MentionCount:       1,
	}, nil
}

// RecognizedEntity is the shape produced by a named-entity recognizer.
type RecognizedEntity struct {
	Text       string
	Type       EntityType
	Confidence float64
}

// NewEntityFromRecognizer creates an entity from recognizer output.
//
// Unknown entity types map to "other"; confidence is clamped to [0,1].
func NewEntityFromRecognizer(rec RecognizedEntity, firstTurn int) (ConversationEntity, error) {
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		return ConversationEntity{}, fmt.Errorf("entity text must not be empty")
	}
	typ := rec.Type
	if !typ.Valid() {
		typ = EntityOther
	}
	conf := rec.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	if firstTurn < 1 {
		firstTurn = 1
	}
	return ConversationEntity{
		EntityText:         text,
		Type:               typ,
		Confidence:         conf,
		FirstMentionedTurn: firstTurn,
		MentionCount:       1,
	}, nil
}

// WithMentions returns a copy with the mention count set (floor 1).
func (e ConversationEntity) WithMentions(n int) ConversationEntity {
	if n < 1 {
		n = 1
	}
	e.MentionCount = n
	return e
}

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// ConversationTurn is a single immutable turn of dialogue.
type ConversationTurn struct {
	// TurnNumber is the 1-based sequential position within the session.
	TurnNumber int

	// TurnRole identifies the speaker.
	TurnRole Role

	// Content is the turn text.
	Content string

	// TokenCount is the measured token count, zero when unknown.
	TokenCount int

	// Confidence applies to assistant turns; zero when not scored.
	Confidence float64
}

// NewConversationTurn creates a validated turn.
func NewConversationTurn(number int, role Role, content string) (ConversationTurn, error) {
	if number < 1 {
		return ConversationTurn{}, fmt.Errorf("turn number must be >= 1, got %d", number)
	}
	if !role.Valid() {
		return ConversationTurn{}, fmt.Errorf("invalid turn role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return ConversationTurn{}, fmt.Errorf("turn content must not be empty")
	}
	return ConversationTurn{TurnNumber: number, TurnRole: role, Content: content}, nil
}

// ConversationContext is the typed conversation state for one request.
//
// # Description
//
// ConversationContext holds entities and turns as structured values and
// exposes derived views (top entities by mention, recent turns). It never
// exposes the raw history as a single opaque string; prompt assembly goes
// through ReasoningContext.FormatForModel, which confines conversation
// material to labeled instruction sections.
//
// The turn list is append-only: AppendTurn returns a new context.
type ConversationContext struct {
	entities []ConversationEntity
	turns    []ConversationTurn

	// CurrentTopic is an optional short topic label, e.g. "automotive history".
	CurrentTopic string
}

// NewConversationContext builds a context from entities and turns.
//
// Turns are kept in turn-number order regardless of input order.
func NewConversationContext(entities []ConversationEntity, turns []ConversationTurn, topic string) ConversationContext {
	es := make([]ConversationEntity, len(entities))
	copy(es, entities)
	ts := make([]ConversationTurn, len(turns))
	copy(ts, turns)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].TurnNumber < ts[j].TurnNumber })
	return ConversationContext{entities: es, turns: ts, CurrentTopic: topic}
}

// Entities returns a copy of the entity list.
func (c ConversationContext) Entities() []ConversationEntity {
	out := make([]ConversationEntity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Turns returns a copy of the turn list in turn order.
func (c ConversationContext) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

// AppendTurn returns a new context with the turn appended.
func (c ConversationContext) AppendTurn(turn ConversationTurn) ConversationContext {
	turns := make([]ConversationTurn, 0, len(c.turns)+1)
	turns = append(turns, c.turns...)
	turns = append(turns, turn)
	return NewConversationContext(c.entities, turns, c.CurrentTopic)
}

// TopEntities returns up to k entities ordered by mention count descending,
// ties broken by earlier first mention.
func (c ConversationContext) TopEntities(k int) []ConversationEntity {
	if k < 1 {
		return nil
	}
	sorted := c.Entities()
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MentionCount != sorted[j].MentionCount {
			return sorted[i].MentionCount > sorted[j].MentionCount
		}
		return sorted[i].FirstMentionedTurn < sorted[j].FirstMentionedTurn
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

// RecentTurns returns the last n turns in turn order.
func (c ConversationContext) RecentTurns(n int) []ConversationTurn {
	if n < 1 {
		return nil
	}
	if n > len(c.turns) {
		n = len(c.turns)
	}
	out := make([]ConversationTurn, n)
	copy(out, c.turns[len(c.turns)-n:])
	return out
}

// Empty reports whether the context carries no entities, turns, or topic.
func (c ConversationContext) Empty() bool {
	return len(c.entities) == 0 && len(c.turns) == 0 && c.CurrentTopic == ""
}
