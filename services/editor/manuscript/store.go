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
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput marks a contract violation by an upstream collaborator:
// malformed spans or comments, overlapping origin ranges, or a protected
// span reaching a stage it should never reach. Sessions fail fast on it.
var ErrInvalidInput = errors.New("invalid input")

// SpanStore owns all Span objects for one revision session.
//
// Every stage receives snapshots; only the patch stage commits new span
// states back. The store validates the ingest contract on construction
// and fails the whole session on malformed input rather than adapting.
//
// Thread Safety:
//
//	Safe for concurrent snapshots. Commit must not race with readers;
//	the pipeline is single-writer by construction.
type SpanStore struct {
	mu    sync.RWMutex
	spans []Span
	byID  map[string]int
}

// NewSpanStore validates the ingested spans and builds the session store.
//
// Description:
//
//	Checks the ingest contract: required fields present, unique ids,
//	non-overlapping origin line ranges. Word counts are (re)derived
//	here so downstream invariants never trust caller-supplied counts.
//	Spans are sorted by order key; ties are a contract violation.
//
// Inputs:
//
//	spans - Ingested span records, already resolved by the format adapter.
//
// Outputs:
//
//	*SpanStore - The session store.
//	error - Wraps ErrInvalidInput on any contract violation.
func NewSpanStore(spans []Span) (*SpanStore, error) {
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no spans", ErrInvalidInput)
	}

	v := validator.New()
	owned := CloneSpans(spans)
	byID := make(map[string]int, len(owned))

	for i := range owned {
		if err := v.Struct(&owned[i]); err != nil {
			return nil, fmt.Errorf("%w: span %d: %v", ErrInvalidInput, i, err)
		}
		if _, dup := byID[owned[i].ID]; dup {
			return nil, fmt.Errorf("%w: duplicate span id %q", ErrInvalidInput, owned[i].ID)
		}
		byID[owned[i].ID] = i
		owned[i].Recount()
	}

	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].Order.Less(owned[j].Order)
	})
	for i := range owned {
		byID[owned[i].ID] = i
		if i > 0 && owned[i].Order.Equal(owned[i-1].Order) {
			return nil, fmt.Errorf("%w: spans %q and %q share order key %s",
				ErrInvalidInput, owned[i-1].ID, owned[i].ID, owned[i].Order)
		}
	}

	// Origin ranges anchor the diff; overlap means the adapter lied.
	// Order keys need not follow source order, so the sweep runs over
	// ranges sorted by start, tracking the furthest end seen.
	byStart := make([]int, len(owned))
	for i := range byStart {
		byStart[i] = i
	}
	sort.Slice(byStart, func(a, b int) bool {
		return owned[byStart[a]].OriginLines.Start < owned[byStart[b]].OriginLines.Start
	})
	reach := -1
	for _, i := range byStart {
		if reach >= 0 && owned[i].OriginLines.Overlaps(owned[reach].OriginLines) {
			return nil, fmt.Errorf("%w: spans %q and %q have overlapping origin ranges %s and %s",
				ErrInvalidInput, owned[reach].ID, owned[i].ID,
				owned[reach].OriginLines, owned[i].OriginLines)
		}
		if reach < 0 || owned[i].OriginLines.End > owned[reach].OriginLines.End {
			reach = i
		}
	}

	return &SpanStore{spans: owned, byID: byID}, nil
}

// Snapshot returns a deep copy of the current span sequence in order.
func (st *SpanStore) Snapshot() []Span {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return CloneSpans(st.spans)
}

// Get returns a copy of the span with the given id.
func (st *SpanStore) Get(id string) (Span, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	i, ok := st.byID[id]
	if !ok {
		return Span{}, false
	}
	return st.spans[i].Clone(), true
}

// Len returns the number of spans.
func (st *SpanStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.spans)
}

// TotalWords returns the current total word count.
func (st *SpanStore) TotalWords() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return TotalWords(st.spans)
}

// Commit replaces the store contents with a new span sequence. Only the
// patch stage calls this; protected spans must be byte-identical to
// their ingested text, which the patcher guarantees and the verifier
// re-checks.
func (st *SpanStore) Commit(spans []Span) error {
	if len(spans) == 0 {
		return fmt.Errorf("%w: commit of empty span sequence", ErrInvalidInput)
	}
	owned := CloneSpans(spans)
	byID := make(map[string]int, len(owned))
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].Order.Less(owned[j].Order)
	})
	for i := range owned {
		if _, dup := byID[owned[i].ID]; dup {
			return fmt.Errorf("%w: duplicate span id %q in commit", ErrInvalidInput, owned[i].ID)
		}
		byID[owned[i].ID] = i
		owned[i].Recount()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.spans = owned
	st.byID = byID
	return nil
}
