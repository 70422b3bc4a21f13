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
	"errors"
	"testing"
)

func testSpans() []Span {
	return []Span{
		{ID: "a", Order: BaseKey(0), Text: "first paragraph here", OriginLines: LineRange{Start: 0, End: 1}},
		{ID: "b", Order: BaseKey(1), Text: "second paragraph follows on", OriginLines: LineRange{Start: 2, End: 3}},
	}
}

func TestNewSpanStore(t *testing.T) {
	st, err := NewSpanStore(testSpans())
	if err != nil {
		t.Fatalf("NewSpanStore: %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("Len() = %d, want 2", st.Len())
	}
	// Word counts are derived, never trusted from the caller.
	if got := st.TotalWords(); got != 7 {
		t.Errorf("TotalWords() = %d, want 7", got)
	}
}

func TestNewSpanStore_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		spans []Span
	}{
		{"empty", nil},
		{"missing id", []Span{{Order: BaseKey(0), Text: "x", OriginLines: LineRange{End: 1}}}},
		{"missing text", []Span{{ID: "a", Order: BaseKey(0), OriginLines: LineRange{End: 1}}}},
		{"duplicate id", []Span{
			{ID: "a", Order: BaseKey(0), Text: "x", OriginLines: LineRange{Start: 0, End: 1}},
			{ID: "a", Order: BaseKey(1), Text: "y", OriginLines: LineRange{Start: 2, End: 3}},
		}},
		{"shared order key", []Span{
			{ID: "a", Order: BaseKey(0), Text: "x", OriginLines: LineRange{Start: 0, End: 1}},
			{ID: "b", Order: OrderKey{Num: 0, Den: 2}, Text: "y", OriginLines: LineRange{Start: 2, End: 3}},
		}},
		{"overlapping origins", []Span{
			{ID: "a", Order: BaseKey(0), Text: "x", OriginLines: LineRange{Start: 0, End: 3}},
			{ID: "b", Order: BaseKey(1), Text: "y", OriginLines: LineRange{Start: 2, End: 4}},
		}},
		// Overlap must be caught even when the overlapping spans are
		// not adjacent in order-key order.
		{"overlapping origins out of order", []Span{
			{ID: "a", Order: BaseKey(0), Text: "x", OriginLines: LineRange{Start: 0, End: 10}},
			{ID: "b", Order: BaseKey(1), Text: "y", OriginLines: LineRange{Start: 20, End: 21}},
			{ID: "c", Order: BaseKey(2), Text: "z", OriginLines: LineRange{Start: 2, End: 3}},
		}},
		{"contained origin range", []Span{
			{ID: "a", Order: BaseKey(0), Text: "x", OriginLines: LineRange{Start: 0, End: 10}},
			{ID: "b", Order: BaseKey(1), Text: "y", OriginLines: LineRange{Start: 4, End: 5}},
			{ID: "c", Order: BaseKey(2), Text: "z", OriginLines: LineRange{Start: 7, End: 8}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpanStore(tt.spans)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("want ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSpanStore_SnapshotIsolation(t *testing.T) {
	st, err := NewSpanStore(testSpans())
	if err != nil {
		t.Fatal(err)
	}

	snap := st.Snapshot()
	snap[0].Text = "mutated"

	got, ok := st.Get("a")
	if !ok {
		t.Fatal("span a missing")
	}
	if got.Text != "first paragraph here" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestSpanStore_Commit(t *testing.T) {
	st, err := NewSpanStore(testSpans())
	if err != nil {
		t.Fatal(err)
	}

	next := st.Snapshot()
	next[1].Text = "second paragraph follows on\n\nwith an appended clarification"
	if err := st.Commit(next); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := st.Get("b")
	if got.WordCount != 8 {
		t.Errorf("committed word count = %d, want 8", got.WordCount)
	}

	if err := st.Commit(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty commit: want ErrInvalidInput, got %v", err)
	}
}

func TestVisionBrief_ProtectsPath(t *testing.T) {
	b := VisionBrief{ProtectedSections: [][]string{{"Methodology"}, {"Results", "Tables"}}}

	tests := []struct {
		path []string
		want bool
	}{
		{[]string{"Methodology"}, true},
		{[]string{"methodology", "Sampling"}, true},
		{[]string{"Results"}, false},
		{[]string{"Results", "tables", "Summary"}, true},
		{[]string{"Discussion"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := b.ProtectsPath(tt.path); got != tt.want {
			t.Errorf("ProtectsPath(%v) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestVisionBrief_Validate(t *testing.T) {
	if err := (VisionBrief{MinWordRatio: 1.5}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Error("ratio above 1 must fail")
	}
	if err := (VisionBrief{MinTotalWords: -1}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Error("negative total must fail")
	}
	if err := (VisionBrief{ProtectedSections: [][]string{{}}}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Error("empty protected prefix must fail")
	}
	if err := (VisionBrief{Thesis: "t", MinWordRatio: 0.9}).Validate(); err != nil {
		t.Errorf("valid brief: %v", err)
	}
}

func TestVisionBrief_MarkProtected(t *testing.T) {
	spans := []Span{
		{ID: "a", SectionPath: []string{"Methodology", "Sampling"}},
		{ID: "b", SectionPath: []string{"Discussion"}},
	}
	b := VisionBrief{ProtectedSections: [][]string{{"Methodology"}}}
	b.MarkProtected(spans)

	if !spans[0].Protected {
		t.Error("span under protected section not marked")
	}
	if spans[1].Protected {
		t.Error("unrelated span marked protected")
	}
}
