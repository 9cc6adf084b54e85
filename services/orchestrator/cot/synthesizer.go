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
	"unicode"
)

// InsufficientInformation is the answer returned when no reasoning step
// produced a usable result.
const InsufficientInformation = "Unable to generate an answer due to insufficient information."

// connectives join multi-step answers. Cycled in order so long chains do
// not repeat the same transition back to back.
var connectives = []string{"Additionally, ", "Furthermore, ", "Moreover, "}

// metaPrefix matches openings that reference the reasoning process itself.
// Synthesized output must read like a single-shot answer, so these are
// stripped from step answers before merging.
var metaPrefix = regexp.MustCompile(`(?i)^(based on (the|my|this) (analysis|reasoning|research|review)( of [^,.:]*)?|according to (the|my) (analysis|reasoning|research)( process)?|after (analyzing|reviewing|examining) the (documents|evidence|information|context)|from the (analysis|reasoning|documents provided))[,.:]?\s*`)

// Synthesizer merges a reasoning chain into one final answer.
//
// # Description
//
// Synthesis follows three rules. An empty chain (or one with only degraded
// steps) yields the insufficient-information sentinel. A single usable
// step's answer is returned verbatim, with no added framing. Multiple
// usable answers are joined with natural connective transitions, never
// with a meta-phrase referencing the analysis, so the merged answer is
// indistinguishable in tone from a single-shot answer. The chain itself is
// surfaced to callers only through the separate reasoning-chain response
// field, never interpolated into the answer text.
//
// Synthesizer is pure and CPU-bound.
type Synthesizer struct{}

// Synthesize returns the final answer for the chain.
func (Synthesizer) Synthesize(chain []ReasoningStep) string {
	var usable []string
	for _, step := range chain {
		if step.Usable() {
			usable = append(usable, strings.TrimSpace(step.IntermediateAnswer))
		}
	}

	switch len(usable) {
	case 0:
		return InsufficientInformation
	case 1:
		return usable[0]
	}

	var b strings.Builder
	b.WriteString(stripMetaPrefix(usable[0]))
	for i, answer := range usable[1:] {
		b.WriteString(" ")
		b.WriteString(connectives[i%len(connectives)])
		b.WriteString(lowerFirst(stripMetaPrefix(answer)))
	}
	return b.String()
}

// stripMetaPrefix removes a meta-referential opening and restores the
// capitalization of what remains.
func stripMetaPrefix(answer string) string {
	stripped := metaPrefix.ReplaceAllString(answer, "")
	if stripped == "" {
		return answer
	}
	return upperFirst(stripped)
}

func upperFirst(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// sentenceOpeners are safe to lowercase after a connective. Anything else
// may be a proper noun and keeps its capitalization.
var sentenceOpeners = map[string]bool{
	"The": true, "A": true, "An": true, "It": true, "This": true,
	"That": true, "These": true, "Those": true, "There": true,
}

func lowerFirst(s string) string {
	first, _, _ := strings.Cut(s, " ")
	if !sentenceOpeners[first] {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
