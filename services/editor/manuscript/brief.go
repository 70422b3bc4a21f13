// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manuscript

import (
	"fmt"
	"strings"
)

// VisionBrief is the session-scoped preservation contract: what the
// revision must not lose. Supplied once per session and read-only for
// the remainder of the pipeline.
type VisionBrief struct {
	// Thesis is the core argument the revision must preserve.
	Thesis string `json:"thesis"`

	// Claims are assertions that must survive every edit.
	Claims []string `json:"claims"`

	// ProtectedSections are section-path prefixes that are off limits.
	// A span whose SectionPath starts with any prefix is protected.
	ProtectedSections [][]string `json:"protected_sections"`

	// MinWordRatio, when non-zero, overrides the configured floor on
	// final/original word count for this session.
	MinWordRatio float64 `json:"min_word_ratio"`

	// MinTotalWords, when non-zero, overrides the configured absolute
	// word floor (journal minimums and the like).
	MinTotalWords int `json:"min_total_words"`
}

// Validate checks the brief's own contract.
func (b VisionBrief) Validate() error {
	if b.MinWordRatio < 0 || b.MinWordRatio > 1 {
		return fmt.Errorf("%w: min_word_ratio %v outside [0,1]", ErrInvalidInput, b.MinWordRatio)
	}
	if b.MinTotalWords < 0 {
		return fmt.Errorf("%w: negative min_total_words", ErrInvalidInput)
	}
	for i, prefix := range b.ProtectedSections {
		if len(prefix) == 0 {
			return fmt.Errorf("%w: empty protected section prefix at index %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// ProtectsPath reports whether the section path falls under any
// protected prefix. Matching is case-insensitive on heading labels,
// since reviewer briefs rarely reproduce exact casing.
func (b VisionBrief) ProtectsPath(path []string) bool {
	for _, prefix := range b.ProtectedSections {
		if len(prefix) > len(path) {
			continue
		}
		match := true
		for i, label := range prefix {
			if !strings.EqualFold(label, path[i]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// MarkProtected flags every span under a protected section prefix.
// Called by ingest adapters after section paths are resolved.
func (b VisionBrief) MarkProtected(spans []Span) {
	for i := range spans {
		if b.ProtectsPath(spans[i].SectionPath) {
			spans[i].Protected = true
		}
	}
}
