// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package align

import (
	"strings"
	"unicode"
)

// stopwords are excluded from lexical overlap so function words don't
// inflate scores between unrelated passages.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {}, "must": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {},
	"its": {}, "as": {}, "from": {}, "not": {},
}

// Tokenize lowercases, strips punctuation, and drops stopwords and
// tokens shorter than three runes. This is the shared token definition
// for lexical scoring in both the aligner and the verifier.
func Tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(field) < 3 {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		out[field] = struct{}{}
	}
	return out
}

// LexicalScore is the Jaccard similarity of the non-trivial token sets
// of two texts.
func LexicalScore(a, b string) float64 {
	return jaccard(Tokenize(a), Tokenize(b))
}

// OverlapRatio is the fraction of a's tokens that survive into b. Used
// by the verifier, where the question is how much of the original text
// the revision retains, not how symmetric the two are.
func OverlapRatio(a, b string) float64 {
	ta, tb := Tokenize(a), Tokenize(b)
	if len(ta) == 0 {
		return 1.0
	}
	kept := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			kept++
		}
	}
	return float64(kept) / float64(len(ta))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// NormalizeQuote collapses whitespace and strips punctuation and case,
// so a quoted target still matches after copy-paste mangling.
func NormalizeQuote(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// ContainsQuoted reports whether the normalized quote occurs verbatim
// inside the normalized span text.
func ContainsQuoted(spanText, quote string) bool {
	nq := NormalizeQuote(quote)
	if nq == "" {
		return false
	}
	return strings.Contains(NormalizeQuote(spanText), nq)
}
