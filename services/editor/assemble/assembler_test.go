// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assemble

import (
	"strings"
	"testing"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/align"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/verify"
)

func sampleSpans() []manuscript.Span {
	spans := []manuscript.Span{
		{ID: "s1", Order: manuscript.BaseKey(0), SectionPath: []string{"Introduction"}, Text: "The study motivation goes here.", OriginLines: manuscript.LineRange{Start: 2, End: 3}},
		{ID: "s2", Order: manuscript.BaseKey(1), SectionPath: []string{"Methods", "Sampling"}, Text: "We sampled twelve hundred households.", OriginLines: manuscript.LineRange{Start: 6, End: 7}},
		{ID: "s3", Order: manuscript.BaseKey(2), SectionPath: []string{"Methods", "Sampling"}, Text: "Districts were stratified by region.", OriginLines: manuscript.LineRange{Start: 8, End: 9}},
	}
	for i := range spans {
		spans[i].Recount()
	}
	return spans
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown(sampleSpans())

	wantOrder := []string{
		"# Introduction",
		"The study motivation goes here.",
		"# Methods",
		"## Sampling",
		"We sampled twelve hundred households.",
		"Districts were stratified by region.",
	}
	pos := -1
	for _, want := range wantOrder {
		idx := strings.Index(out, want)
		if idx < 0 {
			t.Fatalf("missing %q in rendered output:\n%s", want, out)
		}
		if idx < pos {
			t.Fatalf("%q out of order in rendered output:\n%s", want, out)
		}
		pos = idx
	}
	// Shared section prefix must not repeat the heading.
	if strings.Count(out, "## Sampling") != 1 {
		t.Errorf("Sampling heading emitted more than once:\n%s", out)
	}
}

func TestAssemble_RecordsAndDiff(t *testing.T) {
	a := New(config.Default())
	originals := sampleSpans()

	final := manuscript.CloneSpans(originals)
	final[1].Text = "We sampled twelve hundred households across three districts."
	final[1].Recount()
	inserted := manuscript.Span{
		ID:          "s2.c9",
		Order:       manuscript.Between(final[1].Order, final[2].Order),
		SectionPath: final[1].SectionPath,
		Text:        "Response rates exceeded eighty percent.",
		OriginLines: manuscript.LineRange{Start: 7, End: 7},
	}
	inserted.Recount()
	final = append(final[:2], append([]manuscript.Span{inserted}, final[2:]...)...)

	intents := []plan.Intent{
		{ID: "i1", SpanID: "s2", SourceCommentIDs: []string{"c9"}, Operation: plan.OpExpand, Status: plan.StatusApplied},
	}

	res, err := a.Assemble("sess-1", originals, final, intents, verify.Result{}, align.Result{}, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reverted {
		t.Fatal("growth-only session must not revert")
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2: %+v", len(res.Records), res.Records)
	}

	mod := res.Records[0]
	if mod.SpanID != "s2" || mod.Operation != plan.OpExpand || mod.OldText == "" {
		t.Errorf("modified record = %+v", mod)
	}
	ins := res.Records[1]
	if ins.SpanID != "s2.c9" || ins.Operation != plan.OpInsertAfter || ins.OldText != "" {
		t.Errorf("inserted record = %+v", ins)
	}
	if len(ins.CommentIDs) != 1 || ins.CommentIDs[0] != "c9" {
		t.Errorf("inserted record must inherit the parent's comments, got %v", ins.CommentIDs)
	}

	for _, want := range []string{
		"--- a/manuscript.md",
		"+++ b/manuscript.md",
		"-We sampled twelve hundred households.",
		"+We sampled twelve hundred households across three districts.",
		"+Response rates exceeded eighty percent.",
	} {
		if !strings.Contains(res.Diff, want) {
			t.Errorf("diff missing %q:\n%s", want, res.Diff)
		}
	}
}

func TestAssemble_RevertsOnFloorFailure(t *testing.T) {
	a := New(config.Default())
	originals := sampleSpans()

	// Final state lost most of the words; the last gate must refuse it.
	final := manuscript.CloneSpans(originals)
	final[0].Text = "Short."
	final[1].Text = "Cut."
	final[2].Text = "Gone."
	for i := range final {
		final[i].Recount()
	}

	res, err := a.Assemble("sess-2", originals, final, nil, verify.Result{}, align.Result{}, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Reverted {
		t.Fatal("floor failure must revert")
	}
	if res.Manuscript != RenderMarkdown(originals) {
		t.Error("reverted session must emit the original manuscript")
	}
	if res.FinalWords != res.OriginalWords {
		t.Errorf("reverted word counts = %d vs %d", res.FinalWords, res.OriginalWords)
	}
	if !strings.Contains(res.Report, "Session reverted") {
		t.Error("report must state the reversion")
	}
}

func TestAssemble_RevertsOnProtectedViolation(t *testing.T) {
	a := New(config.Default())
	originals := sampleSpans()
	final := manuscript.CloneSpans(originals)
	final[0].Text = final[0].Text + " With extra words appended here."
	final[0].Recount()

	vres := verify.Result{ProtectedViolations: []string{"s1"}}
	res, err := a.Assemble("sess-3", originals, final, nil, vres, align.Result{}, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Reverted {
		t.Error("protected violation must revert even when the floor holds")
	}
}

func TestAssemble_ReportSections(t *testing.T) {
	a := New(config.Default())
	originals := sampleSpans()
	final := manuscript.CloneSpans(originals)
	final[0].Text = final[0].Text + " Expanded for clarity."
	final[0].Recount()

	intents := []plan.Intent{
		{ID: "i1", SpanID: "s1", SourceCommentIDs: []string{"c1"}, Operation: plan.OpExpand, Status: plan.StatusApplied},
		{ID: "i2", SpanID: "s2", SourceCommentIDs: []string{"c2"}, Operation: plan.OpReplace, Status: plan.StatusRejected, Reason: "protected"},
	}
	vres := verify.Result{Findings: []verify.Finding{
		{IntentID: "i1", CommentID: "c1", SpanID: "s1", Similarity: 0.7, Action: verify.ActionFlag, Note: "similarity 0.70 below 0.80"},
	}}
	ares := align.Result{Unaligned: []string{"c3"}}

	res, err := a.Assemble("sess-4", originals, final, intents, vres, ares, manuscript.VisionBrief{})
	if err != nil {
		t.Fatal(err)
	}

	if res.CommentCoverage != 0.5 {
		t.Errorf("coverage = %v, want 0.5", res.CommentCoverage)
	}

	for _, want := range []string{
		"# Revision Report",
		"sess-4",
		"Comment coverage: 50%",
		"## Edits",
		"## Changes",
		"## Not applied",
		"comment c2 on `s2` (rejected): protected",
		"## Unaligned comments",
		"- c3",
		"## Verification findings",
		"`s1` comment c1: flag",
	} {
		if !strings.Contains(res.Report, want) {
			t.Errorf("report missing %q:\n%s", want, res.Report)
		}
	}
}
