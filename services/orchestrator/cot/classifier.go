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
	"regexp"
	"strings"
)

// PatternTag names the question pattern the classifier detected.
type PatternTag string

const (
	PatternNone         PatternTag = ""
	PatternMultiPart    PatternTag = "multi_part"
	PatternCausal       PatternTag = "causal"
	PatternComparative  PatternTag = "comparative"
	PatternProcedural   PatternTag = "procedural"
	PatternDefinitional PatternTag = "definitional_with_examples"
)

// Verdict is the classifier's decision for one question.
type Verdict struct {
	NeedsReasoning bool
	Pattern        PatternTag
}

// complexityRules maps question patterns to their tag.
// Order matters - first match wins, so more specific patterns come first.
var complexityRules = []struct {
	pattern *regexp.Regexp
	tag     PatternTag
}{
	// Comparisons between two or more subjects
	{regexp.MustCompile(`(?i)\bcompare\b|\bversus\b|\bvs\.?\s|\bdifference(s)? between\b|\bsimilarit(y|ies)\b|\bbetter than\b|\bworse than\b|\bpros and cons\b`), PatternComparative},

	// Procedures and step-wise instructions
	{regexp.MustCompile(`(?i)\bstep[- ]by[- ]step\b|\bwalk me through\b|\bhow (do|can|would|should) (i|we|you|one)\b|\bprocess (of|for)\b|\bprocedure for\b`), PatternProcedural},

	// Cause and effect
	{regexp.MustCompile(`(?i)\bwhy (does|did|do|is|are|was|were)\b|\bwhat caused\b|\bwhat causes\b|\blead(s)? to\b|\bresult(s|ed)? in\b|\b(impact|effect|consequence)s? of\b|\bdue to what\b`), PatternCausal},

	// Definition plus illustration
	{regexp.MustCompile(`(?i)\b(what is|what are|define|explain)\b.*\b(example|examples|such as|for instance|instances)\b`), PatternDefinitional},

	// Multiple asks joined in one sentence
	{regexp.MustCompile(`(?i)\band (what|how|why|when|where|who|which)\b|\bas well as\b|\balong with\b|;\s*(what|how|why|when|where)\b`), PatternMultiPart},
}

// multiQuestion matches more than one question mark, a strong multi-part
// signal even without an explicit connective.
var multiQuestion = regexp.MustCompile(`\?.*\?`)

// interrogatives counts distinct question openers inside one sentence.
var interrogatives = regexp.MustCompile(`(?i)\b(what|how|why|when|where|who|which)\b`)

// Classify decides whether a question warrants multi-step reasoning.
//
// # Description
//
// Classify is a pure function over the question text: no side effects and
// no external calls, so a verdict is always returned. The heuristics bias
// toward sensitivity because a false positive only costs latency while a
// false negative merely degrades to the single-shot path.
//
// # Inputs
//
//   - question: Raw question text. Blank input returns a negative verdict.
//
// # Outputs
//
//   - Verdict: Whether reasoning is warranted plus the detected pattern.
func Classify(question string) Verdict {
	q := strings.TrimSpace(question)
	if q == "" {
		return Verdict{}
	}
	for _, rule := range complexityRules {
		if rule.pattern.MatchString(q) {
			return Verdict{NeedsReasoning: true, Pattern: rule.tag}
		}
	}
	if multiQuestion.MatchString(q) {
		return Verdict{NeedsReasoning: true, Pattern: PatternMultiPart}
	}
	if len(interrogatives.FindAllString(q, -1)) >= 2 {
		return Verdict{NeedsReasoning: true, Pattern: PatternMultiPart}
	}
	return Verdict{}
}
