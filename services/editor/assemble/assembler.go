// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assemble reconstructs the revised manuscript and its audit
// trail from the final span state.
//
// Assembly is the last gate: it re-checks the word-count floor on the
// final state and, if the floor fails here, discards the revision and
// emits the original manuscript with the session marked reverted.
package assemble

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/align"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/verify"
)

// DiffRecord is one span-level change in the audit trail.
type DiffRecord struct {
	SpanID      string               `json:"span_id"`
	Operation   plan.Operation       `json:"operation"`
	CommentIDs  []string             `json:"comment_ids"`
	OriginLines manuscript.LineRange `json:"origin_lines"`
	OldText     string               `json:"old_text"`
	NewText     string               `json:"new_text"`
}

// RevisionResult is the complete output of one session.
type RevisionResult struct {
	SessionID string `json:"session_id"`

	// Manuscript is the revised document rendered as markdown. When
	// Reverted is true it is the original, unmodified.
	Manuscript string `json:"manuscript"`

	// Diff is a unified diff of the revision against the original.
	Diff string `json:"diff"`

	// Report is the human-readable audit trail in markdown.
	Report string `json:"report"`

	Records  []DiffRecord     `json:"records"`
	Intents  []plan.Intent    `json:"intents"`
	Findings []verify.Finding `json:"findings"`

	// Unaligned lists comment ids no span could be found for.
	Unaligned []string `json:"unaligned,omitempty"`

	OriginalWords int `json:"original_words"`
	FinalWords    int `json:"final_words"`

	// CommentCoverage is the fraction of distinct comments that produced
	// at least one applied intent.
	CommentCoverage float64 `json:"comment_coverage"`

	// Reverted means the final floor check failed and the original
	// manuscript was emitted instead of the revision.
	Reverted bool `json:"reverted"`
}

// Assembler renders the session output.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Assembler struct {
	cfg    config.Config
	logger *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New creates an Assembler with the given configuration.
func New(cfg config.Config, opts ...Option) *Assembler {
	a := &Assembler{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the revision result from the final span state.
//
// Description:
//
//	Re-checks the word-count floor on the final state; a failure here
//	means an upstream stage miscounted, and the safe output is the
//	original manuscript with Reverted set. Otherwise renders the
//	revised markdown, a unified diff anchored to origin line ranges,
//	and the audit report.
//
// Inputs:
//
//	sessionID - Session identifier for the report and archive key.
//	originals - Span snapshot taken before patching.
//	final - Final span state after patching and rollback.
//	intents - All intents with their terminal statuses.
//	vres - Verification outcome.
//	ares - Alignment result (for unaligned accounting).
//	brief - Session contract; may override the configured floor.
//
// Outputs:
//
//	RevisionResult - The complete session output.
//	error - Non-nil when diff rendering fails.
func (a *Assembler) Assemble(sessionID string, originals, final []manuscript.Span, intents []plan.Intent, vres verify.Result, ares align.Result, brief manuscript.VisionBrief) (RevisionResult, error) {
	res := RevisionResult{
		SessionID:     sessionID,
		Intents:       intents,
		Findings:      vres.Findings,
		Unaligned:     ares.Unaligned,
		OriginalWords: manuscript.TotalWords(originals),
		FinalWords:    manuscript.TotalWords(final),
	}
	res.CommentCoverage = commentCoverage(intents)

	minRatio := a.cfg.EffectiveMinRatio(brief.MinWordRatio)
	minTotal := a.cfg.EffectiveMinTotal(brief.MinTotalWords)
	if !floorHolds(res.FinalWords, res.OriginalWords, minRatio, minTotal) || len(vres.ProtectedViolations) > 0 {
		a.logger.Error("final state failed safety checks, emitting original",
			"session_id", sessionID,
			"final_words", res.FinalWords, "original_words", res.OriginalWords,
			"protected_violations", len(vres.ProtectedViolations))
		res.Reverted = true
		res.FinalWords = res.OriginalWords
		res.Manuscript = RenderMarkdown(originals)
		res.Report = a.renderReport(res)
		return res, nil
	}

	res.Records = buildRecords(originals, final, intents)
	res.Manuscript = RenderMarkdown(final)

	patchText, err := renderDiff(res.Records)
	if err != nil {
		return res, fmt.Errorf("rendering diff: %w", err)
	}
	res.Diff = patchText
	res.Report = a.renderReport(res)

	a.logger.Info("session assembled",
		"session_id", sessionID, "changes", len(res.Records),
		"original_words", res.OriginalWords, "final_words", res.FinalWords)
	return res, nil
}

// RenderMarkdown reconstructs the document, emitting a heading line
// whenever the section path changes.
func RenderMarkdown(spans []manuscript.Span) string {
	var b strings.Builder
	var current []string

	for _, s := range spans {
		depth := sharedPrefix(current, s.SectionPath)
		for level := depth; level < len(s.SectionPath); level++ {
			b.WriteString(strings.Repeat("#", level+1))
			b.WriteString(" ")
			b.WriteString(s.SectionPath[level])
			b.WriteString("\n\n")
		}
		current = s.SectionPath

		b.WriteString(s.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sharedPrefix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && strings.EqualFold(a[n], b[n]) {
		n++
	}
	return n
}

// buildRecords diffs the final state against the originals span by span.
func buildRecords(originals, final []manuscript.Span, intents []plan.Intent) []DiffRecord {
	origByID := make(map[string]manuscript.Span, len(originals))
	for _, s := range originals {
		origByID[s.ID] = s
	}
	commentsBySpan := make(map[string][]string)
	opBySpan := make(map[string]plan.Operation)
	for _, in := range intents {
		if in.Status != plan.StatusApplied {
			continue
		}
		commentsBySpan[in.SpanID] = append(commentsBySpan[in.SpanID], in.SourceCommentIDs...)
		// Replace dominates for labeling a span touched by several edits.
		if opBySpan[in.SpanID] != plan.OpReplace {
			opBySpan[in.SpanID] = in.Operation
		}
	}

	var records []DiffRecord
	for _, s := range final {
		orig, existed := origByID[s.ID]
		if existed && orig.Text == s.Text {
			continue
		}
		rec := DiffRecord{
			SpanID:  s.ID,
			NewText: s.Text,
		}
		if existed {
			rec.Operation = opBySpan[s.ID]
			rec.CommentIDs = commentsBySpan[s.ID]
			rec.OriginLines = orig.OriginLines
			rec.OldText = orig.Text
		} else {
			// Inserted span: anchored after its parent's origin range.
			rec.Operation = plan.OpInsertAfter
			parentID := strings.SplitN(s.ID, ".", 2)[0]
			rec.CommentIDs = commentsBySpan[parentID]
			rec.OriginLines = s.OriginLines
		}
		sort.Strings(rec.CommentIDs)
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].OriginLines.Start != records[j].OriginLines.Start {
			return records[i].OriginLines.Start < records[j].OriginLines.Start
		}
		return records[i].SpanID < records[j].SpanID
	})
	return records
}

// renderDiff emits a unified diff with one hunk per changed span,
// anchored to the span's origin line range.
func renderDiff(records []DiffRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	fd := &diff.FileDiff{
		OrigName: "a/manuscript.md",
		NewName:  "b/manuscript.md",
	}
	for _, rec := range records {
		var body strings.Builder
		origLines := 0
		newLines := 0
		if rec.OldText != "" {
			for _, line := range strings.Split(rec.OldText, "\n") {
				body.WriteString("-")
				body.WriteString(line)
				body.WriteString("\n")
				origLines++
			}
		}
		for _, line := range strings.Split(rec.NewText, "\n") {
			body.WriteString("+")
			body.WriteString(line)
			body.WriteString("\n")
			newLines++
		}
		fd.Hunks = append(fd.Hunks, &diff.Hunk{
			OrigStartLine: int32(rec.OriginLines.Start + 1),
			OrigLines:     int32(origLines),
			NewStartLine:  int32(rec.OriginLines.Start + 1),
			NewLines:      int32(newLines),
			Section:       rec.SpanID,
			Body:          []byte(body.String()),
		})
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// renderReport writes the audit trail as markdown.
func (a *Assembler) renderReport(res RevisionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Revision Report\n\n")
	fmt.Fprintf(&b, "Session: %s\n\n", res.SessionID)
	if res.Reverted {
		fmt.Fprintf(&b, "**Session reverted.** The final state failed the safety checks; the original manuscript was emitted unchanged.\n\n")
	}
	fmt.Fprintf(&b, "Words: %d -> %d\n\n", res.OriginalWords, res.FinalWords)
	fmt.Fprintf(&b, "Comment coverage: %.0f%%\n\n", res.CommentCoverage*100)

	counts := map[plan.Status]int{}
	for _, in := range res.Intents {
		counts[in.Status]++
	}
	fmt.Fprintf(&b, "## Edits\n\n")
	fmt.Fprintf(&b, "| Status | Count |\n|---|---|\n")
	for _, st := range []plan.Status{plan.StatusApplied, plan.StatusRejected, plan.StatusRolledBack} {
		fmt.Fprintf(&b, "| %s | %d |\n", st, counts[st])
	}
	b.WriteString("\n")

	if len(res.Records) > 0 {
		fmt.Fprintf(&b, "## Changes\n\n")
		for _, rec := range res.Records {
			fmt.Fprintf(&b, "- `%s` (%s, lines %s): comments %s\n",
				rec.SpanID, rec.Operation, rec.OriginLines, strings.Join(rec.CommentIDs, ", "))
		}
		b.WriteString("\n")
	}

	var rejected []plan.Intent
	for _, in := range res.Intents {
		if in.Status == plan.StatusRejected || in.Status == plan.StatusRolledBack {
			rejected = append(rejected, in)
		}
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&b, "## Not applied\n\n")
		for _, in := range rejected {
			fmt.Fprintf(&b, "- comment %s on `%s` (%s): %s\n",
				in.CommentID(), in.SpanID, in.Status, in.Reason)
		}
		b.WriteString("\n")
	}

	if len(res.Unaligned) > 0 {
		fmt.Fprintf(&b, "## Unaligned comments\n\n")
		for _, id := range res.Unaligned {
			fmt.Fprintf(&b, "- %s\n", id)
		}
		b.WriteString("\n")
	}

	var flagged []verify.Finding
	for _, f := range res.Findings {
		if f.Action != verify.ActionKeep {
			flagged = append(flagged, f)
		}
	}
	if len(flagged) > 0 {
		fmt.Fprintf(&b, "## Verification findings\n\n")
		for _, f := range flagged {
			fmt.Fprintf(&b, "- `%s` comment %s: %s (%s)\n", f.SpanID, f.CommentID, f.Action, f.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// commentCoverage is the fraction of distinct source comments whose
// intent reached applied status.
func commentCoverage(intents []plan.Intent) float64 {
	all := make(map[string]struct{})
	applied := make(map[string]struct{})
	for _, in := range intents {
		for _, id := range in.SourceCommentIDs {
			all[id] = struct{}{}
			if in.Status == plan.StatusApplied {
				applied[id] = struct{}{}
			}
		}
	}
	if len(all) == 0 {
		return 0
	}
	return float64(len(applied)) / float64(len(all))
}

func floorHolds(finalWords, originalWords int, minRatio float64, minTotal int) bool {
	if minTotal > 0 && finalWords < minTotal {
		return false
	}
	return float64(finalWords) >= minRatio*float64(originalWords)
}
