// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch applies accepted intents to the span sequence under the
// word-count safety floor.
//
// Application is batch-atomic: the candidate state is computed from the
// original spans, the floor is checked on the whole batch, and only a
// passing batch is committed. A failing batch sheds its lowest-ranked
// replace intents one at a time; if the floor still cannot be met with
// zero replaces the batch aborts and the store is left untouched.
package patch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
)

// ErrBatchAborted means the word-count floor cannot be satisfied even
// after shedding every replace intent. The manuscript is unchanged.
var ErrBatchAborted = errors.New("batch aborted: word count floor unsatisfiable")

// LogEntry records one applied intent with enough state to verify and
// to roll back: the target span's text before and after the edit.
type LogEntry struct {
	IntentID   string         `json:"intent_id"`
	CommentID  string         `json:"comment_id"`
	SpanID     string         `json:"span_id"`
	Operation  plan.Operation `json:"operation"`
	TextBefore string         `json:"text_before"`
	TextAfter  string         `json:"text_after"`

	// NewSpanID is set when insert_as_new_spans materialized the edit
	// as a fresh span instead of trailing text.
	NewSpanID string `json:"new_span_id,omitempty"`
}

// Report summarizes one committed batch.
type Report struct {
	Entries       []LogEntry `json:"entries"`
	OriginalWords int        `json:"original_words"`
	FinalWords    int        `json:"final_words"`
	MinRatio      float64    `json:"min_ratio"`
	MinTotalWords int        `json:"min_total_words"`

	// ShedIntentIDs are replace intents dropped to satisfy the floor.
	ShedIntentIDs []string `json:"shed_intent_ids,omitempty"`
}

// Patcher applies a planned batch to a span store.
//
// Thread Safety:
//
//	Safe for concurrent use on distinct stores.
type Patcher struct {
	cfg    config.Config
	logger *slog.Logger
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Patcher) { p.logger = l }
}

// New creates a Patcher with the given configuration.
func New(cfg config.Config, opts ...Option) *Patcher {
	p := &Patcher{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply computes the batch result from the store's current state,
// enforces the word-count floor, and commits on success.
//
// Description:
//
//	Intents arrive in application order from the planner; only accepted
//	intents are applied. When the candidate state falls below the
//	floor, the lowest-ranked accepted replace is rejected with reason
//	"word_count_floor" and the candidate is recomputed from the
//	originals. Intent statuses are mutated in place so the caller's
//	slice reflects what was actually applied.
//
// Inputs:
//
//	store - Session span store; committed only on success.
//	intents - Planned intents, statuses mutated in place.
//	brief - Session contract; may override the configured floor.
//
// Outputs:
//
//	Report - Applied entries and floor accounting.
//	error - ErrBatchAborted when the floor is unsatisfiable, or a
//	        wrapped manuscript.ErrInvalidInput on contract violations.
func (p *Patcher) Apply(store *manuscript.SpanStore, intents []plan.Intent, brief manuscript.VisionBrief) (Report, error) {
	originals := store.Snapshot()
	originalWords := manuscript.TotalWords(originals)
	minRatio := p.cfg.EffectiveMinRatio(brief.MinWordRatio)
	minTotal := p.cfg.EffectiveMinTotal(brief.MinTotalWords)

	rep := Report{
		OriginalWords: originalWords,
		MinRatio:      minRatio,
		MinTotalWords: minTotal,
	}

	for {
		candidate, entries, err := p.Recompute(originals, intents)
		if err != nil {
			return rep, err
		}
		finalWords := manuscript.TotalWords(candidate)

		if floorSatisfied(finalWords, originalWords, minRatio, minTotal) {
			if err := store.Commit(candidate); err != nil {
				return rep, err
			}
			for i := range intents {
				if intents[i].Status == plan.StatusAccepted {
					intents[i].Status = plan.StatusApplied
				}
			}
			rep.Entries = entries
			rep.FinalWords = finalWords
			p.logger.Info("batch committed",
				"applied", len(entries), "shed", len(rep.ShedIntentIDs),
				"original_words", originalWords, "final_words", finalWords)
			return rep, nil
		}

		shed := shedCandidate(intents)
		if shed < 0 {
			p.logger.Error("batch aborted",
				"original_words", originalWords, "candidate_words", finalWords,
				"min_ratio", minRatio, "min_total_words", minTotal)
			return rep, ErrBatchAborted
		}
		intents[shed].Status = plan.StatusRejected
		intents[shed].Reason = "word_count_floor"
		rep.ShedIntentIDs = append(rep.ShedIntentIDs, intents[shed].ID)
		p.logger.Warn("replace shed to satisfy word count floor",
			"intent_id", intents[shed].ID, "comment_id", intents[shed].CommentID(),
			"span_id", intents[shed].SpanID)
	}
}

// Recompute builds the candidate span sequence by applying every
// accepted (or already applied) intent, in order, to a copy of the
// originals. Pure with respect to the store; rollback reuses it to
// rebuild the post-rollback state from the same originals.
func (p *Patcher) Recompute(originals []manuscript.Span, intents []plan.Intent) ([]manuscript.Span, []LogEntry, error) {
	spans := manuscript.CloneSpans(originals)
	index := make(map[string]int, len(spans))
	for i, s := range spans {
		index[s.ID] = i
	}
	// Tracks the most recent span inserted after each target, so a
	// second insert lands after the first instead of before it.
	insertTail := make(map[string]string)

	var entries []LogEntry
	for _, in := range intents {
		if in.Status != plan.StatusAccepted && in.Status != plan.StatusApplied {
			continue
		}
		i, ok := index[in.SpanID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: intent %s targets unknown span %q",
				manuscript.ErrInvalidInput, in.ID, in.SpanID)
		}
		if spans[i].Protected {
			return nil, nil, fmt.Errorf("%w: intent %s reached patching on protected span %q",
				manuscript.ErrInvalidInput, in.ID, in.SpanID)
		}

		entry := LogEntry{
			IntentID:   in.ID,
			CommentID:  in.CommentID(),
			SpanID:     in.SpanID,
			Operation:  in.Operation,
			TextBefore: spans[i].Text,
		}

		switch in.Operation {
		case plan.OpReplace:
			spans[i].Text = in.ProposedText
			spans[i].Recount()
			entry.TextAfter = spans[i].Text
		case plan.OpExpand:
			spans[i].Text = spans[i].Text + "\n\n" + in.ProposedText
			spans[i].Recount()
			entry.TextAfter = spans[i].Text
		case plan.OpInsertAfter:
			if p.cfg.InsertAsNewSpans {
				anchorID := in.SpanID
				if tail, ok := insertTail[in.SpanID]; ok {
					anchorID = tail
				}
				ns := newSpanAfter(spans, index[anchorID], in)
				spans = append(spans, ns)
				index[ns.ID] = len(spans) - 1
				insertTail[in.SpanID] = ns.ID
				entry.TextBefore = ""
				entry.TextAfter = ns.Text
				entry.NewSpanID = ns.ID
			} else {
				spans[i].Text = spans[i].Text + "\n\n" + in.ProposedText
				spans[i].Recount()
				entry.TextAfter = spans[i].Text
			}
		default:
			return nil, nil, fmt.Errorf("%w: intent %s has unknown operation %q",
				manuscript.ErrInvalidInput, in.ID, in.Operation)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(spans, func(a, b int) bool {
		return spans[a].Order.Less(spans[b].Order)
	})
	return spans, entries, nil
}

// newSpanAfter allocates a span strictly between the anchor and its
// successor, inheriting the anchor's section path. The id is derived
// from the anchor and comment so recomputation is stable.
func newSpanAfter(spans []manuscript.Span, anchor int, in plan.Intent) manuscript.Span {
	lo := spans[anchor].Order
	var succ *manuscript.OrderKey
	for i := range spans {
		o := spans[i].Order
		if lo.Less(o) && (succ == nil || o.Less(*succ)) {
			succ = &o
		}
	}
	key := manuscript.After(lo)
	if succ != nil {
		key = manuscript.Between(lo, *succ)
	}
	ns := manuscript.Span{
		ID:          fmt.Sprintf("%s.%s", spans[anchor].ID, in.CommentID()),
		Order:       key,
		SectionPath: append([]string(nil), spans[anchor].SectionPath...),
		Text:        in.ProposedText,
		OriginLines: manuscript.LineRange{Start: spans[anchor].OriginLines.End, End: spans[anchor].OriginLines.End},
	}
	ns.Recount()
	return ns
}

// shedCandidate returns the index of the lowest-ranked accepted replace
// intent, or -1 when none remain. Lowest priority goes first, then
// lowest confidence, then highest comment id.
func shedCandidate(intents []plan.Intent) int {
	best := -1
	for i, in := range intents {
		if in.Status != plan.StatusAccepted || in.Operation != plan.OpReplace {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := intents[best]
		switch {
		case in.Priority != b.Priority:
			if in.Priority < b.Priority {
				best = i
			}
		case in.Confidence != b.Confidence:
			if in.Confidence < b.Confidence {
				best = i
			}
		case in.CommentID() > b.CommentID():
			best = i
		}
	}
	return best
}

func floorSatisfied(finalWords, originalWords int, minRatio float64, minTotal int) bool {
	if minTotal > 0 && finalWords < minTotal {
		return false
	}
	return float64(finalWords) >= minRatio*float64(originalWords)
}
