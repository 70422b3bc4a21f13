// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/align"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// Planner maps aligned comments to intents and resolves span conflicts.
//
// Thread Safety:
//
//	Safe for concurrent use; Plan holds no mutable state between calls.
type Planner struct {
	cfg    config.Config
	logger *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// New creates a Planner with the given configuration.
func New(cfg config.Config, opts ...Option) *Planner {
	p := &Planner{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan turns alignments into intents, vetoes edits on protected spans,
// and resolves conflicts between intents targeting the same span.
//
// Description:
//
//	Each aligned comment produces exactly one intent, targeting its
//	highest-confidence span. The operation follows the comment type;
//	the default mapping is augmentation-first and only tighten (always)
//	and restructure (with allow_restructure) plan a replace. Rejected
//	intents stay in the result with their reason so the report can
//	account for every comment.
//
// Inputs:
//
//	res - Alignment result from the align stage.
//	spans - Snapshot of the span sequence.
//	comms - Normalized comments.
//	brief - Session preservation contract.
//
// Outputs:
//
//	[]Intent - All intents, accepted and rejected, in application order.
//	error - Non-nil only on a contract violation.
func (p *Planner) Plan(res align.Result, spans []manuscript.Span, comms []comments.Comment, brief manuscript.VisionBrief) ([]Intent, error) {
	byID := make(map[string]manuscript.Span, len(spans))
	for _, s := range spans {
		byID[s.ID] = s
	}

	ordered := make([]comments.Comment, len(comms))
	copy(ordered, comms)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var intents []Intent
	for _, c := range ordered {
		matches := res.ByComment(c.ID)
		if len(matches) == 0 {
			continue
		}
		best := matches[0]
		span, ok := byID[best.SpanID]
		if !ok {
			continue
		}

		op := p.operationFor(c)
		in := Intent{
			ID:               fmt.Sprintf("%s.%s", c.ID, span.ID),
			SpanID:           span.ID,
			SourceCommentIDs: []string{c.ID},
			Operation:        op,
			ProposedText:     proposedText(c, op, span.Text),
			Priority:         c.Priority,
			Confidence:       best.Confidence,
			Status:           StatusProposed,
		}

		switch {
		case span.Protected || brief.ProtectsPath(span.SectionPath):
			in.Status = StatusRejected
			in.Reason = "protected"
			p.logger.Info("intent rejected on protected span",
				"comment_id", c.ID, "span_id", span.ID)
		case op == OpReplace && p.cfg.AugmentOnlyMode:
			in.Status = StatusRejected
			in.Reason = "augment_only_mode"
		}
		intents = append(intents, in)
	}

	p.resolveConflicts(intents)

	for i := range intents {
		if intents[i].Status == StatusProposed {
			intents[i].Status = StatusAccepted
		}
	}
	sortForApplication(intents, byID)
	return intents, nil
}

// operationFor maps a comment type to its planned operation. Only
// tighten and, with allow_restructure, restructure ever plan a replace.
func (p *Planner) operationFor(c comments.Comment) Operation {
	switch c.Type {
	case comments.TypeAddCitation, comments.TypeCounterargument, comments.TypeEvidenceGap:
		return OpInsertAfter
	case comments.TypeTighten:
		return OpReplace
	case comments.TypeRestructure:
		if p.cfg.AllowRestructure {
			return OpReplace
		}
		return OpExpand
	default:
		// clarify, copyedit, unknown
		return OpExpand
	}
}

// resolveConflicts mutates the intent statuses in place.
//
// A span group with more than one live intent conflicts when any of
// them is a replace: a replace discards the text the others target.
// Growth-only groups are compatible but capped at max_edits_per_span.
func (p *Planner) resolveConflicts(intents []Intent) {
	groups := make(map[string][]int)
	for i, in := range intents {
		if in.Status != StatusProposed {
			continue
		}
		groups[in.SpanID] = append(groups[in.SpanID], i)
	}

	for spanID, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}

		hasReplace := false
		for _, i := range idxs {
			if intents[i].Operation == OpReplace {
				hasReplace = true
				break
			}
		}

		if hasReplace {
			if p.cfg.ConflictResolution == config.Manual {
				for _, i := range idxs {
					intents[i].Status = StatusRejected
					intents[i].Reason = "conflict: manual review required"
				}
				p.logger.Info("conflict deferred to manual review",
					"span_id", spanID, "intents", len(idxs))
				continue
			}
			p.rank(intents, idxs)
			for _, i := range idxs[1:] {
				intents[i].Status = StatusRejected
				intents[i].Reason = "conflict: replace"
			}
			p.logger.Info("conflict resolved",
				"span_id", spanID, "winner_comment", intents[idxs[0]].CommentID(),
				"rejected", len(idxs)-1)
			continue
		}

		if len(idxs) > p.cfg.MaxEditsPerSpan {
			p.rank(intents, idxs)
			for _, i := range idxs[p.cfg.MaxEditsPerSpan:] {
				intents[i].Status = StatusRejected
				intents[i].Reason = "conflict: max_edits_per_span"
			}
		}
	}
}

// rank sorts the group's indices so the winner under the configured
// policy comes first. Comment id is always the final tie-breaker.
func (p *Planner) rank(intents []Intent, idxs []int) {
	sort.Slice(idxs, func(a, b int) bool {
		x, y := intents[idxs[a]], intents[idxs[b]]
		if p.cfg.ConflictResolution == config.PrioritizeConfidence {
			if x.Confidence != y.Confidence {
				return x.Confidence > y.Confidence
			}
			if x.Priority != y.Priority {
				return x.Priority > y.Priority
			}
		} else {
			if x.Priority != y.Priority {
				return x.Priority > y.Priority
			}
			if x.Confidence != y.Confidence {
				return x.Confidence > y.Confidence
			}
		}
		return x.CommentID() < y.CommentID()
	})
}

// sortForApplication orders intents by target span position, then by
// priority, confidence, and comment id within a span. The patcher
// applies them in exactly this order.
func sortForApplication(intents []Intent, byID map[string]manuscript.Span) {
	sort.SliceStable(intents, func(a, b int) bool {
		sa, sb := byID[intents[a].SpanID], byID[intents[b].SpanID]
		if !sa.Order.Equal(sb.Order) {
			return sa.Order.Less(sb.Order)
		}
		x, y := intents[a], intents[b]
		if x.Priority != y.Priority {
			return x.Priority > y.Priority
		}
		if x.Confidence != y.Confidence {
			return x.Confidence > y.Confidence
		}
		return x.CommentID() < y.CommentID()
	})
}
