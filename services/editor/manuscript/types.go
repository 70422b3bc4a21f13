// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manuscript provides the span-based document model for the
// revision pipeline.
//
// A manuscript is an ordered sequence of spans (typically paragraphs)
// with structural metadata. Spans are immutable once ingested except
// through the patch stage, which commits new span states back into the
// session's SpanStore. Every other stage works on snapshots.
//
// # Ordering
//
// Span order is expressed as a rational order key rather than a dense
// integer index. Inserting a new span between two neighbors allocates
// the mediant of their keys, so existing spans are never renumbered and
// origin line ranges stay valid for diff anchoring.
//
// # Thread Safety
//
// SpanStore is safe for concurrent reads; Commit must not race with
// Snapshot. The pipeline is sequential-by-stage, so in practice a store
// has a single writer.
package manuscript

import (
	"fmt"
	"strings"
)

// LineRange is a half-open interval [Start, End) of line numbers in the
// original source document. Used for diff anchoring; immutable after
// ingest.
type LineRange struct {
	Start int `json:"start" validate:"gte=0"`
	End   int `json:"end" validate:"gtefield=Start"`
}

// Contains reports whether the given line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line < r.End
}

// Overlaps reports whether two half-open ranges intersect.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// String formats the range as "start..end".
func (r LineRange) String() string {
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}

// OrderKey is a rational position key. Base spans are assigned i/1 at
// ingest; inserted spans receive the mediant of their neighbors' keys,
// which always falls strictly between them and never collides.
type OrderKey struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// BaseKey returns the key for the i-th span at ingest.
func BaseKey(i int) OrderKey {
	return OrderKey{Num: int64(i), Den: 1}
}

// Less reports whether k sorts before other.
func (k OrderKey) Less(other OrderKey) bool {
	// Cross-multiply; denominators are always positive.
	return k.Num*other.Den < other.Num*k.Den
}

// Equal reports whether two keys denote the same position.
func (k OrderKey) Equal(other OrderKey) bool {
	return k.Num*other.Den == other.Num*k.Den
}

// Between returns the mediant of lo and hi, a key strictly between the
// two. The mediant walk is deterministic, so repeated insertions at the
// same gap always produce the same key sequence.
func Between(lo, hi OrderKey) OrderKey {
	return OrderKey{Num: lo.Num + hi.Num, Den: lo.Den + hi.Den}
}

// After returns a key strictly greater than k, for appending past the
// last span.
func After(k OrderKey) OrderKey {
	return OrderKey{Num: k.Num + k.Den, Den: k.Den}
}

// String formats the key for logs.
func (k OrderKey) String() string {
	if k.Den == 1 {
		return fmt.Sprintf("%d", k.Num)
	}
	return fmt.Sprintf("%d/%d", k.Num, k.Den)
}

// Span is the atomic unit of editing: a contiguous block of text with
// structural metadata. Text is mutable only through the patch stage;
// everything else is fixed at ingest.
type Span struct {
	// ID is a stable identifier assigned at ingest, never reused.
	ID string `json:"id" validate:"required"`

	// Order defines reconstruction order.
	Order OrderKey `json:"order"`

	// SectionPath is the ordered list of heading labels containing
	// this span, e.g. ["Methodology", "Sampling"].
	SectionPath []string `json:"section_path"`

	// Text is the current content.
	Text string `json:"text" validate:"required"`

	// WordCount is derived from Text and recomputed on every mutation.
	WordCount int `json:"word_count"`

	// Protected marks spans under a do-not-change section. A protected
	// span's text never changes after ingest.
	Protected bool `json:"protected"`

	// OriginLines is the span's location in the original source.
	OriginLines LineRange `json:"origin_lines"`
}

// Clone returns a deep copy of the span.
func (s Span) Clone() Span {
	out := s
	out.SectionPath = append([]string(nil), s.SectionPath...)
	return out
}

// Recount recomputes the derived word count from Text.
func (s *Span) Recount() {
	s.WordCount = CountWords(s.Text)
}

// SectionKey renders the section path as a single comparable string.
func (s Span) SectionKey() string {
	return strings.Join(s.SectionPath, " / ")
}

// CountWords counts whitespace-separated words. This is the single
// definition of "word" used by every invariant in the pipeline.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// TotalWords sums word counts over a span sequence.
func TotalWords(spans []Span) int {
	total := 0
	for _, s := range spans {
		total += s.WordCount
	}
	return total
}

// CloneSpans deep-copies a span slice. Stages use this to hand an
// immutable snapshot to the next stage.
func CloneSpans(spans []Span) []Span {
	out := make([]Span, len(spans))
	for i, s := range spans {
		out[i] = s.Clone()
	}
	return out
}
