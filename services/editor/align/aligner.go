// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package align maps reviewer comments to manuscript spans.
//
// Each comment is scored against every span with a blend of lexical
// overlap and an optional semantic oracle. Scoring is embarrassingly
// parallel per comment; results are merged in comment-id order so the
// output is deterministic regardless of completion order.
package align

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// Oracle is an externally supplied semantic similarity function over
// [0,1]. Calls are bounded by the configured timeout; on timeout or
// error the caller falls back to the lexical-only score.
type Oracle interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Method records how an alignment was established.
type Method string

const (
	// MethodQuoted means the comment's quoted target was found
	// verbatim (after normalization) inside the span.
	MethodQuoted Method = "quoted"

	// MethodLexical means only token overlap contributed (no oracle,
	// or the oracle was skipped or timed out).
	MethodLexical Method = "lexical"

	// MethodHybrid means the score blends lexical and oracle scores.
	MethodHybrid Method = "hybrid"
)

// Alignment is a scored association between one comment and one span.
type Alignment struct {
	CommentID  string  `json:"comment_id"`
	SpanID     string  `json:"span_id"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Result carries all alignments plus the comments that matched nothing.
// Unaligned comments are a reported condition, not an error: they are
// excluded from planning and surfaced for manual review.
type Result struct {
	Alignments []Alignment `json:"alignments"`
	Unaligned  []string    `json:"unaligned"`
}

// ByComment returns the alignments for one comment, best first.
func (r Result) ByComment(commentID string) []Alignment {
	var out []Alignment
	for _, a := range r.Alignments {
		if a.CommentID == commentID {
			out = append(out, a)
		}
	}
	return out
}

// Aligner scores comments against spans.
//
// Thread Safety:
//
//	Safe for concurrent use; Align holds no mutable state between calls.
type Aligner struct {
	cfg    config.Config
	oracle Oracle
	logger *slog.Logger
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithOracle attaches a semantic similarity oracle.
func WithOracle(o Oracle) Option {
	return func(a *Aligner) { a.oracle = o }
}

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aligner) { a.logger = l }
}

// New creates an Aligner with the given configuration.
func New(cfg config.Config, opts ...Option) *Aligner {
	a := &Aligner{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Align scores every comment against every span and keeps, per comment,
// the top context_window matches at or above the similarity threshold.
//
// Description:
//
//	A quoted target found inside a span forces that alignment at
//	confidence 1.0 regardless of score. Per-comment work runs on a
//	bounded worker pool; the merged result is sorted by comment id,
//	descending confidence, then span id, so identical inputs always
//	produce the identical Result.
//
// Inputs:
//
//	ctx - Context for cancellation; also bounds oracle calls.
//	spans - Snapshot of the span sequence.
//	comms - Normalized comments, any order.
//
// Outputs:
//
//	Result - Alignments plus unaligned comment ids.
//	error - Non-nil only on context cancellation.
func (a *Aligner) Align(ctx context.Context, spans []manuscript.Span, comms []comments.Comment) (Result, error) {
	ordered := make([]comments.Comment, len(comms))
	copy(ordered, comms)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	perComment := make([][]Alignment, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ParallelLimit)
	for i, c := range ordered {
		i, c := i, c
		g.Go(func() error {
			matches, err := a.alignOne(gctx, spans, c)
			if err != nil {
				return err
			}
			perComment[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("aligning comments: %w", err)
	}

	var res Result
	for i, c := range ordered {
		if len(perComment[i]) == 0 {
			res.Unaligned = append(res.Unaligned, c.ID)
			a.logger.Info("comment unaligned", "comment_id", c.ID, "type", c.Type)
			continue
		}
		res.Alignments = append(res.Alignments, perComment[i]...)
	}
	return res, nil
}

// alignOne scores a single comment against all spans.
func (a *Aligner) alignOne(ctx context.Context, spans []manuscript.Span, c comments.Comment) ([]Alignment, error) {
	var forced []Alignment
	var scored []Alignment

	for _, span := range spans {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if c.QuotedTarget != "" && ContainsQuoted(span.Text, c.QuotedTarget) {
			forced = append(forced, Alignment{
				CommentID:  c.ID,
				SpanID:     span.ID,
				Confidence: 1.0,
				Method:     MethodQuoted,
			})
			continue
		}

		lexical := LexicalScore(c.RawText, span.Text)
		score := lexical
		method := MethodLexical

		if a.oracle != nil && a.cfg.KeywordWeight < 1.0 {
			semantic, err := a.oracleSimilarity(ctx, c.RawText, span.Text)
			if err != nil {
				// Degraded mode: lexical only.
				a.logger.Warn("oracle unavailable, using lexical score",
					"comment_id", c.ID, "span_id", span.ID, "error", err)
			} else {
				score = a.cfg.KeywordWeight*lexical + (1-a.cfg.KeywordWeight)*semantic
				method = MethodHybrid
			}
		}

		if score >= a.cfg.SimilarityThreshold {
			scored = append(scored, Alignment{
				CommentID:  c.ID,
				SpanID:     span.ID,
				Confidence: score,
				Method:     method,
			})
		}
	}

	// Best matches first; span id breaks score ties deterministically.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return scored[i].SpanID < scored[j].SpanID
	})
	if len(scored) > a.cfg.ContextWindow {
		scored = scored[:a.cfg.ContextWindow]
	}

	sort.Slice(forced, func(i, j int) bool { return forced[i].SpanID < forced[j].SpanID })
	return append(forced, scored...), nil
}

// oracleSimilarity runs one bounded oracle call.
func (a *Aligner) oracleSimilarity(ctx context.Context, textA, textB string) (float64, error) {
	if a.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.OracleTimeout)
		defer cancel()
	}
	score, err := a.oracle.Similarity(ctx, textA, textB)
	if err != nil {
		return 0, err
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("oracle score %v outside [0,1]", score)
	}
	return score, nil
}
