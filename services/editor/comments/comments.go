// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package comments holds normalized reviewer change requests.
//
// Raw comments arrive from format adapters in arbitrary shapes; by the
// time they reach this registry they are flat records with a fixed type
// enum and priority. The core never branches on raw input shape.
package comments

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// Type classifies what kind of change a reviewer is asking for.
type Type string

const (
	TypeClarify         Type = "clarify"
	TypeAddCitation     Type = "add_citation"
	TypeRestructure     Type = "restructure"
	TypeTighten         Type = "tighten"
	TypeCounterargument Type = "counterargument"
	TypeCopyedit        Type = "copyedit"
	TypeEvidenceGap     Type = "evidence_gap"
	TypeUnknown         Type = "unknown"
)

// ParseType normalizes a raw type string. Anything outside the enum
// collapses to TypeUnknown, which plans the safest operation.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeClarify, TypeAddCitation, TypeRestructure, TypeTighten,
		TypeCounterargument, TypeCopyedit, TypeEvidenceGap:
		return Type(s)
	default:
		return TypeUnknown
	}
}

// Priority orders comments for conflict resolution. Higher wins.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

// ParsePriority maps a raw priority string; unrecognized values default
// to medium rather than failing, matching how reviewer exports behave.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// String returns the wire form of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

// Comment is a single normalized change request.
type Comment struct {
	// ID is unique within a session and is the final deterministic
	// tie-breaker everywhere in the pipeline.
	ID string `json:"id" validate:"required"`

	// RawText is the reviewer's request verbatim.
	RawText string `json:"raw_text" validate:"required"`

	// Type is the normalized request category.
	Type Type `json:"type"`

	// Priority is the reviewer-assigned urgency.
	Priority Priority `json:"priority"`

	// QuotedTarget, when present, is a literal excerpt the comment
	// refers to. A verbatim (or whitespace-normalized) hit inside a
	// span forces alignment at confidence 1.0.
	QuotedTarget string `json:"quoted_target,omitempty"`
}

// Registry is the validated, id-indexed comment set for one session.
type Registry struct {
	list []Comment
	byID map[string]Comment
}

// NewRegistry validates and indexes the comment set.
//
// Comments are stored sorted by id so iteration order is deterministic
// regardless of adapter output order.
func NewRegistry(list []Comment) (*Registry, error) {
	byID := make(map[string]Comment, len(list))
	owned := make([]Comment, len(list))
	copy(owned, list)

	for i, c := range owned {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: comment %d missing id", manuscript.ErrInvalidInput, i)
		}
		if c.RawText == "" {
			return nil, fmt.Errorf("%w: comment %q missing raw_text", manuscript.ErrInvalidInput, c.ID)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate comment id %q", manuscript.ErrInvalidInput, c.ID)
		}
		if ParseType(string(c.Type)) != c.Type {
			return nil, fmt.Errorf("%w: comment %q has type %q outside the enum",
				manuscript.ErrInvalidInput, c.ID, c.Type)
		}
		if c.Priority < PriorityLow || c.Priority > PriorityHigh {
			return nil, fmt.Errorf("%w: comment %q has priority %d outside low..high",
				manuscript.ErrInvalidInput, c.ID, c.Priority)
		}
		byID[c.ID] = c
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	return &Registry{list: owned, byID: byID}, nil
}

// All returns the comments sorted by id.
func (r *Registry) All() []Comment {
	out := make([]Comment, len(r.list))
	copy(out, r.list)
	return out
}

// Get returns the comment with the given id.
func (r *Registry) Get(id string) (Comment, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Len returns the number of comments.
func (r *Registry) Len() int { return len(r.list) }
