// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify scores applied edits for semantic drift and decides
// which ones must be rolled back.
//
// Verification never edits spans itself. It emits findings; the session
// acts on rollback findings by recomputing the patch batch without the
// offending intents. An edit is risky when the revised span retains too
// little of the original meaning; a risky edit on a span that carries
// the thesis or a claim is rolled back when preserve_thesis is set,
// otherwise it is flagged for the report.
package verify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/align"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/patch"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
)

// claimOverlapFloor is the token-retention fraction above which a span
// is considered to carry the thesis or a claim.
const claimOverlapFloor = 0.5

// Action is the verifier's decision for one applied intent.
type Action string

const (
	// ActionKeep means the edit passed verification.
	ActionKeep Action = "keep"

	// ActionFlag means the edit drifted but stays in, surfaced in the
	// report for the author's judgment.
	ActionFlag Action = "flag"

	// ActionRollback means the edit must be undone before assembly.
	ActionRollback Action = "rollback"
)

// Finding is the verdict on one applied intent.
type Finding struct {
	IntentID      string  `json:"intent_id"`
	CommentID     string  `json:"comment_id"`
	SpanID        string  `json:"span_id"`
	Similarity    float64 `json:"similarity"`
	CarriesThesis bool    `json:"carries_thesis"`
	Action        Action  `json:"action"`
	Note          string  `json:"note,omitempty"`
}

// Result is the full verification outcome for one batch.
type Result struct {
	Findings []Finding `json:"findings"`

	// RollbackIntentIDs lists the intents the session must undo.
	RollbackIntentIDs []string `json:"rollback_intent_ids,omitempty"`

	// ProtectedViolations lists protected spans whose text changed.
	// Always empty unless an upstream stage broke its contract.
	ProtectedViolations []string `json:"protected_violations,omitempty"`
}

// Verifier scores a committed batch against the session contract.
//
// Thread Safety:
//
//	Safe for concurrent use; Verify holds no mutable state between calls.
type Verifier struct {
	cfg    config.Config
	oracle align.Oracle
	logger *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithOracle attaches a semantic similarity oracle. Without one the
// verifier falls back to lexical token retention.
func WithOracle(o align.Oracle) Option {
	return func(v *Verifier) { v.oracle = o }
}

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New creates a Verifier with the given configuration.
func New(cfg config.Config, opts ...Option) *Verifier {
	v := &Verifier{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify scores every applied entry and checks that protected spans
// survived patching untouched.
//
// Description:
//
//	Insert entries (empty before-text) cannot lose original meaning and
//	always keep. Replace and expand entries score before/after
//	similarity; below semantic_similarity_threshold the edit is risky.
//	Risky edits on thesis- or claim-carrying spans roll back when
//	preserve_thesis is set. Scoring runs on a bounded worker pool and
//	findings come back in entry order.
//
// Inputs:
//
//	ctx - Context for cancellation; also bounds oracle calls.
//	originals - Span snapshot taken before patching.
//	entries - Applied log entries from the patch report.
//	patched - Span snapshot after patching.
//	brief - Session contract (thesis and claims).
//
// Outputs:
//
//	Result - Findings plus the rollback set.
//	error - Non-nil only on context cancellation.
func (v *Verifier) Verify(ctx context.Context, originals []manuscript.Span, entries []patch.LogEntry, patched []manuscript.Span, brief manuscript.VisionBrief) (Result, error) {
	findings := make([]Finding, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.ParallelLimit)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			f, err := v.verifyOne(gctx, e, brief)
			if err != nil {
				return err
			}
			findings[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("verifying batch: %w", err)
	}

	res := Result{Findings: findings}
	for _, f := range findings {
		if f.Action == ActionRollback {
			res.RollbackIntentIDs = append(res.RollbackIntentIDs, f.IntentID)
		}
	}
	res.ProtectedViolations = protectedViolations(originals, patched)
	for _, id := range res.ProtectedViolations {
		v.logger.Error("protected span text changed", "span_id", id)
	}
	return res, nil
}

// verifyOne scores a single applied entry.
func (v *Verifier) verifyOne(ctx context.Context, e patch.LogEntry, brief manuscript.VisionBrief) (Finding, error) {
	f := Finding{
		IntentID:  e.IntentID,
		CommentID: e.CommentID,
		SpanID:    e.SpanID,
		Action:    ActionKeep,
	}

	// Pure insertion: nothing original was at stake.
	if e.TextBefore == "" {
		f.Similarity = 1.0
		return f, nil
	}

	f.Similarity = v.similarity(ctx, e.TextBefore, e.TextAfter)
	f.CarriesThesis = carriesClaim(e.TextBefore, brief)

	if f.Similarity >= v.cfg.SemanticSimilarityThreshold {
		return f, nil
	}

	if v.cfg.PreserveThesis && f.CarriesThesis {
		f.Action = ActionRollback
		f.Note = fmt.Sprintf("similarity %.2f below %.2f on a thesis-carrying span",
			f.Similarity, v.cfg.SemanticSimilarityThreshold)
		v.logger.Warn("edit rolled back",
			"intent_id", e.IntentID, "span_id", e.SpanID, "similarity", f.Similarity)
		return f, nil
	}

	f.Action = ActionFlag
	f.Note = fmt.Sprintf("similarity %.2f below %.2f", f.Similarity, v.cfg.SemanticSimilarityThreshold)
	v.logger.Info("edit flagged for drift",
		"intent_id", e.IntentID, "span_id", e.SpanID, "similarity", f.Similarity)
	return f, nil
}

// similarity prefers the oracle and falls back to lexical retention:
// the fraction of the original span's tokens that survive the edit.
func (v *Verifier) similarity(ctx context.Context, before, after string) float64 {
	lexical := align.OverlapRatio(before, after)
	if v.oracle == nil {
		return lexical
	}
	octx := ctx
	if v.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, v.cfg.OracleTimeout)
		defer cancel()
	}
	score, err := v.oracle.Similarity(octx, before, after)
	if err != nil || score < 0 || score > 1 {
		v.logger.Warn("oracle unavailable, using lexical retention", "error", err)
		return lexical
	}
	return score
}

// carriesClaim reports whether the span's original text carries the
// thesis or any protected claim, by token retention of the claim text
// inside the span.
func carriesClaim(spanText string, brief manuscript.VisionBrief) bool {
	if brief.Thesis != "" && align.OverlapRatio(brief.Thesis, spanText) >= claimOverlapFloor {
		return true
	}
	for _, claim := range brief.Claims {
		if claim != "" && align.OverlapRatio(claim, spanText) >= claimOverlapFloor {
			return true
		}
	}
	return false
}

// protectedViolations compares protected spans across the patch.
func protectedViolations(originals, patched []manuscript.Span) []string {
	after := make(map[string]string, len(patched))
	for _, s := range patched {
		after[s.ID] = s.Text
	}
	var out []string
	for _, s := range originals {
		if !s.Protected {
			continue
		}
		if text, ok := after[s.ID]; !ok || text != s.Text {
			out = append(out, s.ID)
		}
	}
	return out
}

// MarkRolledBack flips the status of every rolled-back intent so the
// batch can be recomputed without them. Returns how many were marked.
func MarkRolledBack(intents []plan.Intent, rollbackIDs []string) int {
	ids := make(map[string]struct{}, len(rollbackIDs))
	for _, id := range rollbackIDs {
		ids[id] = struct{}{}
	}
	n := 0
	for i := range intents {
		if _, ok := ids[intents[i].ID]; ok && intents[i].Status == plan.StatusApplied {
			intents[i].Status = plan.StatusRolledBack
			intents[i].Reason = "semantic drift on preserved content"
			n++
		}
	}
	return n
}
