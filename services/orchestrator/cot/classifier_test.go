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

import "testing"

func TestClassify_MultiPartQuestion(t *testing.T) {
	v := Classify("What is the Hemi engine and how does it relate to the 300 letter series?")
	if !v.NeedsReasoning {
		t.Fatal("multi-part question should need reasoning")
	}
	if v.Pattern != PatternMultiPart {
		t.Errorf("expected multi_part pattern, got %q", v.Pattern)
	}
}

func TestClassify_ComparativeQuestion(t *testing.T) {
	v := Classify("What is the difference between the 1955 and 1956 model years?")
	if !v.NeedsReasoning || v.Pattern != PatternComparative {
		t.Errorf("expected comparative verdict, got %+v", v)
	}
}

func TestClassify_CausalQuestion(t *testing.T) {
	v := Classify("Why did the company discontinue the turbine program?")
	if !v.NeedsReasoning || v.Pattern != PatternCausal {
		t.Errorf("expected causal verdict, got %+v", v)
	}
}

func TestClassify_ProceduralQuestion(t *testing.T) {
	v := Classify("How do I configure the retrieval backend step by step?")
	if !v.NeedsReasoning || v.Pattern != PatternProcedural {
		t.Errorf("expected procedural verdict, got %+v", v)
	}
}

func TestClassify_DefinitionalWithExamples(t *testing.T) {
	v := Classify("What is a letter series car, with examples from the 1950s?")
	if !v.NeedsReasoning || v.Pattern != PatternDefinitional {
		t.Errorf("expected definitional verdict, got %+v", v)
	}
}

func TestClassify_MultipleQuestionMarks(t *testing.T) {
	v := Classify("Who founded the company? When did it merge?")
	if !v.NeedsReasoning || v.Pattern != PatternMultiPart {
		t.Errorf("expected multi_part verdict, got %+v", v)
	}
}

func TestClassify_SimpleQuestionDoesNotNeedReasoning(t *testing.T) {
	for _, q := range []string{
		"What year was the company founded?",
		"Who designed the Airflow?",
		"List the engines offered in 1960.",
	} {
		if v := Classify(q); v.NeedsReasoning {
			t.Errorf("simple question %q flagged as complex (%q)", q, v.Pattern)
		}
	}
}

func TestClassify_BlankQuestion(t *testing.T) {
	if v := Classify("   "); v.NeedsReasoning || v.Pattern != PatternNone {
		t.Errorf("blank question should return a negative verdict, got %+v", v)
	}
}
