// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates a revision session end to end:
// align, plan, patch, verify, assemble.
//
// The pipeline owns stage sequencing and the rollback loop; all edit
// semantics live in the stage packages. Stages communicate through
// snapshots, so a failed session never leaves the span store in a
// half-edited state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/align"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/assemble"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/patch"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/verify"
)

// Archiver persists completed sessions. The badger-backed archive
// satisfies this; tests use in-memory fakes.
type Archiver interface {
	Store(res assemble.RevisionResult) error
}

// Preview is the dry-run output: what would change, without patching.
type Preview struct {
	SessionID  string        `json:"session_id"`
	Alignments align.Result  `json:"alignments"`
	Intents    []plan.Intent `json:"intents"`
}

// Pipeline wires the five stages with one configuration.
//
// Thread Safety:
//
//	Safe for concurrent sessions; each call builds its own stores.
type Pipeline struct {
	cfg      config.Config
	oracle   align.Oracle
	archiver Archiver
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOracle attaches a semantic similarity oracle to the align and
// verify stages.
func WithOracle(o align.Oracle) Option {
	return func(p *Pipeline) { p.oracle = o }
}

// WithArchiver persists every completed session.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline with the given configuration.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Plan runs ingest validation, alignment, and planning without touching
// the manuscript. The preview shows every intent with its status and
// reason, so an author can inspect what Revise would do.
func (p *Pipeline) Plan(ctx context.Context, spans []manuscript.Span, comms []comments.Comment, brief manuscript.VisionBrief) (Preview, error) {
	sessionID := uuid.NewString()
	logger := p.logger.With("session_id", sessionID)

	store, registry, err := p.validate(spans, comms, brief)
	if err != nil {
		return Preview{}, err
	}

	snapshot := store.Snapshot()
	ares, err := align.New(p.cfg, align.WithOracle(p.oracle), align.WithLogger(logger)).
		Align(ctx, snapshot, registry.All())
	if err != nil {
		return Preview{}, err
	}

	intents, err := plan.New(p.cfg, plan.WithLogger(logger)).
		Plan(ares, snapshot, registry.All(), brief)
	if err != nil {
		return Preview{}, err
	}

	logger.Info("plan preview ready",
		"comments", registry.Len(), "intents", len(intents), "unaligned", len(ares.Unaligned))
	return Preview{SessionID: sessionID, Alignments: ares, Intents: intents}, nil
}

// Revise runs the full session and returns the assembled result.
//
// Description:
//
//	Align, plan, patch, verify, assemble, in order. Verification
//	rollbacks recompute the batch from the pre-patch snapshot without
//	the rolled-back intents and commit the rebuilt state, so a rollback
//	can never leave residue of the undone edit. The result is archived
//	when an archiver is configured; archive failures are logged, not
//	fatal, since the revision itself succeeded.
//
// Inputs:
//
//	ctx - Context for cancellation; bounds all oracle calls.
//	spans - Ingested spans, protection already resolvable via brief.
//	comms - Normalized comments.
//	brief - Session preservation contract.
//
// Outputs:
//
//	assemble.RevisionResult - The complete session output.
//	error - patch.ErrBatchAborted when the word floor is unsatisfiable,
//	        or a wrapped stage error.
func (p *Pipeline) Revise(ctx context.Context, spans []manuscript.Span, comms []comments.Comment, brief manuscript.VisionBrief) (assemble.RevisionResult, error) {
	sessionID := uuid.NewString()
	logger := p.logger.With("session_id", sessionID)
	logger.Info("session started", "spans", len(spans), "comments", len(comms))

	store, registry, err := p.validate(spans, comms, brief)
	if err != nil {
		return assemble.RevisionResult{}, err
	}
	originals := store.Snapshot()

	ares, err := align.New(p.cfg, align.WithOracle(p.oracle), align.WithLogger(logger)).
		Align(ctx, originals, registry.All())
	if err != nil {
		return assemble.RevisionResult{}, err
	}

	intents, err := plan.New(p.cfg, plan.WithLogger(logger)).
		Plan(ares, originals, registry.All(), brief)
	if err != nil {
		return assemble.RevisionResult{}, err
	}

	patcher := patch.New(p.cfg, patch.WithLogger(logger))
	rep, err := patcher.Apply(store, intents, brief)
	if err != nil {
		return assemble.RevisionResult{}, fmt.Errorf("patching session %s: %w", sessionID, err)
	}

	verifier := verify.New(p.cfg, verify.WithOracle(p.oracle), verify.WithLogger(logger))
	vres, err := verifier.Verify(ctx, originals, rep.Entries, store.Snapshot(), brief)
	if err != nil {
		return assemble.RevisionResult{}, err
	}

	if len(vres.RollbackIntentIDs) > 0 {
		n := verify.MarkRolledBack(intents, vres.RollbackIntentIDs)
		logger.Info("recomputing batch after rollback", "rolled_back", n)
		rebuilt, entries, err := patcher.Recompute(originals, intents)
		if err != nil {
			return assemble.RevisionResult{}, fmt.Errorf("rollback in session %s: %w", sessionID, err)
		}
		if err := store.Commit(rebuilt); err != nil {
			return assemble.RevisionResult{}, err
		}
		rep.Entries = entries
	}

	res, err := assemble.New(p.cfg, assemble.WithLogger(logger)).
		Assemble(sessionID, originals, store.Snapshot(), intents, vres, ares, brief)
	if err != nil {
		return assemble.RevisionResult{}, err
	}

	if p.archiver != nil {
		if err := p.archiver.Store(res); err != nil {
			logger.Error("archiving session failed", "error", err)
		}
	}
	logger.Info("session finished",
		"reverted", res.Reverted, "changes", len(res.Records),
		"original_words", res.OriginalWords, "final_words", res.FinalWords)
	return res, nil
}

// validate builds the session stores, failing fast on malformed input.
// The brief's protected sections are applied to the spans before the
// store snapshot is taken, so every stage sees the same protection.
func (p *Pipeline) validate(spans []manuscript.Span, comms []comments.Comment, brief manuscript.VisionBrief) (*manuscript.SpanStore, *comments.Registry, error) {
	if err := brief.Validate(); err != nil {
		return nil, nil, err
	}
	owned := manuscript.CloneSpans(spans)
	brief.MarkProtected(owned)

	store, err := manuscript.NewSpanStore(owned)
	if err != nil {
		return nil, nil, err
	}
	registry, err := comments.NewRegistry(comms)
	if err != nil {
		return nil, nil, err
	}
	return store, registry, nil
}
