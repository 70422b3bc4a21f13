// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
)

func newStore(t *testing.T) *manuscript.SpanStore {
	t.Helper()
	spans := []manuscript.Span{
		{ID: "s1", Order: manuscript.BaseKey(0), Text: "one two three four five six seven eight nine ten", OriginLines: manuscript.LineRange{Start: 0, End: 1}},
		{ID: "s2", Order: manuscript.BaseKey(1), Text: "alpha beta gamma delta epsilon zeta eta theta iota kappa", OriginLines: manuscript.LineRange{Start: 2, End: 3}},
	}
	st, err := manuscript.NewSpanStore(spans)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestApply_GrowthCommits(t *testing.T) {
	st := newStore(t)
	p := New(config.Default())

	intents := []plan.Intent{{
		ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"},
		Operation: plan.OpExpand, ProposedText: "an appended clarification sentence",
		Priority: 2, Confidence: 0.9, Status: plan.StatusAccepted,
	}}

	rep, err := p.Apply(st, intents, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.FinalWords != 24 {
		t.Errorf("FinalWords = %d, want 24", rep.FinalWords)
	}
	if intents[0].Status != plan.StatusApplied {
		t.Errorf("intent status = %v, want applied", intents[0].Status)
	}
	got, _ := st.Get("s1")
	if !strings.HasSuffix(got.Text, "an appended clarification sentence") {
		t.Errorf("expand did not append: %q", got.Text)
	}
	if len(rep.Entries) != 1 || rep.Entries[0].TextBefore == rep.Entries[0].TextAfter {
		t.Error("log entry must capture before and after text")
	}
}

func TestApply_ShedsLowestReplace(t *testing.T) {
	st := newStore(t)
	p := New(config.Default()) // ratio 0.95 over 20 words: floor is 19

	intents := []plan.Intent{
		{
			ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"},
			Operation: plan.OpReplace, ProposedText: "short replacement text here now done",
			Priority: 3, Confidence: 0.9, Status: plan.StatusAccepted,
		},
		{
			ID: "i2", SpanID: "s2", SourceCommentIDs: []string{"c2"},
			Operation: plan.OpReplace, ProposedText: "tiny",
			Priority: 1, Confidence: 0.5, Status: plan.StatusAccepted,
		},
	}

	rep, err := p.Apply(st, intents, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}

	// i2 (lowest priority) is shed; i1 alone gives 6+10=16 words,
	// still below 19, so i1 is shed too and the batch applies empty.
	if len(rep.ShedIntentIDs) != 2 {
		t.Fatalf("shed = %v, want both replaces", rep.ShedIntentIDs)
	}
	if rep.ShedIntentIDs[0] != "i2" {
		t.Errorf("lowest priority must shed first, got %v", rep.ShedIntentIDs)
	}
	if intents[1].Status != plan.StatusRejected || intents[1].Reason != "word_count_floor" {
		t.Errorf("shed intent = %v (%s)", intents[1].Status, intents[1].Reason)
	}
	if rep.FinalWords != 20 {
		t.Errorf("FinalWords = %d, want 20 (unchanged)", rep.FinalWords)
	}
}

func TestApply_BatchAborted(t *testing.T) {
	st := newStore(t)
	cfg := config.Default()
	p := New(cfg)

	// A growth-free batch cannot shed its way out: expand cannot lose
	// words, so a brief demanding more total words than exist aborts.
	intents := []plan.Intent{{
		ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"},
		Operation: plan.OpExpand, ProposedText: "small addition",
		Priority: 2, Confidence: 0.9, Status: plan.StatusAccepted,
	}}
	brief := manuscript.VisionBrief{MinTotalWords: 500}

	_, err := p.Apply(st, intents, brief)
	if !errors.Is(err, ErrBatchAborted) {
		t.Fatalf("want ErrBatchAborted, got %v", err)
	}

	// Store untouched on abort.
	if st.TotalWords() != 20 {
		t.Errorf("aborted batch mutated the store: %d words", st.TotalWords())
	}
	got, _ := st.Get("s1")
	if strings.Contains(got.Text, "small addition") {
		t.Error("aborted batch left residue in span text")
	}
}

func TestApply_ProtectedSpanIsContractViolation(t *testing.T) {
	spans := []manuscript.Span{
		{ID: "s1", Order: manuscript.BaseKey(0), Text: "guarded text here", Protected: true, OriginLines: manuscript.LineRange{Start: 0, End: 1}},
	}
	st, err := manuscript.NewSpanStore(spans)
	if err != nil {
		t.Fatal(err)
	}
	p := New(config.Default())

	intents := []plan.Intent{{
		ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"},
		Operation: plan.OpExpand, ProposedText: "x",
		Priority: 2, Confidence: 0.9, Status: plan.StatusAccepted,
	}}

	_, err = p.Apply(st, intents, manuscript.VisionBrief{})
	if !errors.Is(err, manuscript.ErrInvalidInput) {
		t.Errorf("accepted intent on protected span must fail the contract, got %v", err)
	}
}

func TestApply_InsertAsNewSpans(t *testing.T) {
	st := newStore(t)
	cfg := config.Default()
	cfg.InsertAsNewSpans = true
	p := New(cfg)

	intents := []plan.Intent{{
		ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"},
		Operation: plan.OpInsertAfter, ProposedText: "inserted evidence paragraph",
		Priority: 2, Confidence: 0.9, Status: plan.StatusAccepted,
	}}

	rep, err := p.Apply(st, intents, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Entries[0].NewSpanID == "" {
		t.Fatal("insert_as_new_spans must report the new span id")
	}

	snap := st.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("span count = %d, want 3", len(snap))
	}
	// New span sits strictly between its anchor and the next span.
	if snap[1].Text != "inserted evidence paragraph" {
		t.Errorf("inserted span out of position: %q", snap[1].Text)
	}
	if snap[0].ID != "s1" || snap[2].ID != "s2" {
		t.Error("existing spans were renumbered or reordered")
	}
}

func TestRecompute_RollbackRemovesOnlyTargetEdit(t *testing.T) {
	st := newStore(t)
	p := New(config.Default())

	intents := []plan.Intent{
		{
			ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"},
			Operation: plan.OpExpand, ProposedText: "kept expansion",
			Priority: 2, Confidence: 0.9, Status: plan.StatusAccepted,
		},
		{
			ID: "i2", SpanID: "s2", SourceCommentIDs: []string{"c2"},
			Operation: plan.OpExpand, ProposedText: "doomed expansion",
			Priority: 2, Confidence: 0.9, Status: plan.StatusAccepted,
		},
	}
	originals := st.Snapshot()

	if _, err := p.Apply(st, intents, manuscript.VisionBrief{}); err != nil {
		t.Fatal(err)
	}

	// Roll back i2 and rebuild from the originals.
	intents[1].Status = plan.StatusRolledBack
	rebuilt, entries, err := p.Recompute(originals, intents)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].IntentID != "i1" {
		t.Fatalf("entries after rollback = %+v", entries)
	}

	var s1, s2 manuscript.Span
	for _, s := range rebuilt {
		switch s.ID {
		case "s1":
			s1 = s
		case "s2":
			s2 = s
		}
	}
	if !strings.Contains(s1.Text, "kept expansion") {
		t.Error("surviving edit lost in rollback")
	}
	if s2.Text != originals[1].Text {
		t.Errorf("rolled-back span must equal original, got %q", s2.Text)
	}
}
