// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan turns aligned comments into edit intents and resolves
// conflicts between intents that target the same span.
//
// Planning is augmentation-first: the default mapping never proposes
// replace when expand or insert_after can satisfy the comment, and
// destructive operations require explicit overrides.
package plan

import (
	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
)

// Operation is the typed transformation an intent applies to its span.
type Operation string

const (
	// OpInsertAfter appends new trailing content after the span.
	OpInsertAfter Operation = "insert_after"

	// OpExpand merges new content into the span without discarding
	// original text.
	OpExpand Operation = "expand"

	// OpReplace fully substitutes the span text. The only operation
	// that can reduce word count.
	OpReplace Operation = "replace"
)

// Status tracks an intent through the pipeline.
type Status string

const (
	StatusProposed   Status = "proposed"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusApplied    Status = "applied"
	StatusRolledBack Status = "rolled_back"
)

// Intent is a planned, typed transformation targeting one span.
type Intent struct {
	// ID is derived from the source comment and target span, so two
	// runs on identical inputs produce identical intents byte for byte.
	// Ordering always uses comment ids, never this.
	ID string `json:"id"`

	// SpanID is the target span.
	SpanID string `json:"span_id"`

	// SourceCommentIDs are the comments that justify the edit.
	SourceCommentIDs []string `json:"source_comment_ids"`

	// Operation is the planned transformation.
	Operation Operation `json:"operation"`

	// ProposedText is deterministic template text derived from the
	// comment; the pipeline does not generate original prose.
	ProposedText string `json:"proposed_text"`

	// Priority is inherited from the strongest source comment.
	Priority comments.Priority `json:"priority"`

	// Confidence is the alignment confidence backing this intent.
	Confidence float64 `json:"confidence"`

	// Status is the intent's position in its lifecycle.
	Status Status `json:"status"`

	// Reason records why an intent was rejected or rolled back.
	Reason string `json:"reason,omitempty"`
}

// CommentID returns the lowest source comment id, the deterministic
// tie-breaker of last resort.
func (in Intent) CommentID() string {
	if len(in.SourceCommentIDs) == 0 {
		return ""
	}
	min := in.SourceCommentIDs[0]
	for _, id := range in.SourceCommentIDs[1:] {
		if id < min {
			min = id
		}
	}
	return min
}
