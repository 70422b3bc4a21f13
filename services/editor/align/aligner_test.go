// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package align

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// fixedOracle returns one score for every pair, or an error.
type fixedOracle struct {
	score float64
	err   error
}

func (o fixedOracle) Similarity(context.Context, string, string) (float64, error) {
	return o.score, o.err
}

func alignSpans() []manuscript.Span {
	spans := []manuscript.Span{
		{ID: "s1", Order: manuscript.BaseKey(0), Text: "The sampling methodology used stratified random selection across districts."},
		{ID: "s2", Order: manuscript.BaseKey(1), Text: "Climate outcomes varied considerably between coastal and inland regions."},
		{ID: "s3", Order: manuscript.BaseKey(2), Text: "We conclude that policy interventions require localized evidence."},
	}
	for i := range spans {
		spans[i].Recount()
	}
	return spans
}

func TestAlign_QuotedTargetForcesAlignment(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)

	comms := []comments.Comment{{
		ID:           "c1",
		RawText:      "This needs work",
		Type:         comments.TypeClarify,
		Priority:     comments.PriorityMedium,
		QuotedTarget: "stratified random selection",
	}}

	res, err := a.Align(context.Background(), alignSpans(), comms)
	if err != nil {
		t.Fatal(err)
	}

	got := res.ByComment("c1")
	if len(got) == 0 {
		t.Fatal("quoted comment must align")
	}
	if got[0].SpanID != "s1" || got[0].Confidence != 1.0 || got[0].Method != MethodQuoted {
		t.Errorf("forced alignment = %+v", got[0])
	}
}

func TestAlign_LexicalThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.SimilarityThreshold = 0.2
	a := New(cfg)

	comms := []comments.Comment{
		{ID: "c1", RawText: "Clarify the sampling methodology and the stratified selection", Type: comments.TypeClarify, Priority: comments.PriorityMedium},
		{ID: "c2", RawText: "Totally unrelated gardening advice about tomatoes", Type: comments.TypeClarify, Priority: comments.PriorityMedium},
	}

	res, err := a.Align(context.Background(), alignSpans(), comms)
	if err != nil {
		t.Fatal(err)
	}

	if got := res.ByComment("c1"); len(got) == 0 || got[0].SpanID != "s1" {
		t.Errorf("c1 should align to s1, got %+v", got)
	}
	if len(res.Unaligned) != 1 || res.Unaligned[0] != "c2" {
		t.Errorf("c2 should be unaligned, got %v", res.Unaligned)
	}
}

func TestAlign_OracleBlending(t *testing.T) {
	cfg := config.Default()
	cfg.SimilarityThreshold = 0.3
	cfg.KeywordWeight = 0.5

	// A strong oracle lifts a weak lexical match over the threshold.
	a := New(cfg, WithOracle(fixedOracle{score: 0.9}))

	comms := []comments.Comment{{
		ID: "c1", RawText: "Discuss regional climate variation",
		Type: comments.TypeClarify, Priority: comments.PriorityMedium,
	}}

	res, err := a.Align(context.Background(), alignSpans(), comms)
	if err != nil {
		t.Fatal(err)
	}
	got := res.ByComment("c1")
	if len(got) == 0 {
		t.Fatal("hybrid score should clear the threshold")
	}
	if got[0].Method != MethodHybrid {
		t.Errorf("method = %v, want hybrid", got[0].Method)
	}
}

func TestAlign_OracleFailureFallsBackToLexical(t *testing.T) {
	cfg := config.Default()
	cfg.SimilarityThreshold = 0.2
	a := New(cfg, WithOracle(fixedOracle{err: errors.New("oracle down")}))

	comms := []comments.Comment{{
		ID: "c1", RawText: "Clarify the sampling methodology and stratified selection approach",
		Type: comments.TypeClarify, Priority: comments.PriorityMedium,
	}}

	res, err := a.Align(context.Background(), alignSpans(), comms)
	if err != nil {
		t.Fatalf("oracle failure must degrade, not fail: %v", err)
	}
	got := res.ByComment("c1")
	if len(got) == 0 || got[0].Method != MethodLexical {
		t.Errorf("expected lexical fallback, got %+v", got)
	}
}

func TestAlign_ContextWindowCapsMatches(t *testing.T) {
	cfg := config.Default()
	cfg.SimilarityThreshold = 0
	cfg.ContextWindow = 1
	// Threshold zero: every span with any token overlap scores.
	a := New(cfg)

	comms := []comments.Comment{{
		ID: "c1", RawText: "methodology districts regions evidence conclusions sampling climate policy",
		Type: comments.TypeClarify, Priority: comments.PriorityMedium,
	}}

	res, err := a.Align(context.Background(), alignSpans(), comms)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.ByComment("c1"); len(got) > 1 {
		t.Errorf("context_window=1 should keep one match, got %d", len(got))
	}
}

func TestAlign_Deterministic(t *testing.T) {
	cfg := config.Default()
	cfg.SimilarityThreshold = 0.1
	a := New(cfg)

	comms := []comments.Comment{
		{ID: "c2", RawText: "sampling methodology stratified selection", Type: comments.TypeClarify, Priority: comments.PriorityMedium},
		{ID: "c1", RawText: "climate outcomes coastal inland regions", Type: comments.TypeClarify, Priority: comments.PriorityMedium},
	}

	first, err := a.Align(context.Background(), alignSpans(), comms)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := a.Align(context.Background(), alignSpans(), comms)
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Alignments) != len(first.Alignments) {
			t.Fatal("alignment count varies across runs")
		}
		for j := range again.Alignments {
			if again.Alignments[j] != first.Alignments[j] {
				t.Fatalf("run %d: alignment %d differs: %+v vs %+v",
					i, j, again.Alignments[j], first.Alignments[j])
			}
		}
	}
	// Comment-id ordering regardless of input order.
	if len(first.Alignments) > 1 && first.Alignments[0].CommentID > first.Alignments[1].CommentID {
		t.Error("alignments must be grouped in comment-id order")
	}
}
