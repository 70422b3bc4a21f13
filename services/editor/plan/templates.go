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
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
)

// fillerWords are removed when condensing text for a tighten replace.
// Dropping them shortens sentences without touching content words.
var fillerWords = map[string]struct{}{
	"really": {}, "very": {}, "quite": {}, "rather": {},
	"somewhat": {}, "essentially": {}, "basically": {}, "actually": {},
	"simply": {}, "certainly": {},
}

// proposedText produces the deterministic placeholder text for an
// intent. The pipeline never generates original prose: templates mark
// where the author must write, anchored to the reviewer's request.
func proposedText(c comments.Comment, op Operation, spanText string) string {
	excerpt := truncate(c.RawText, 100)

	switch c.Type {
	case comments.TypeAddCitation:
		return fmt.Sprintf("[CITATION NEEDED: %s]", excerpt)
	case comments.TypeCounterargument:
		return fmt.Sprintf("However, it is important to consider [COUNTERARGUMENT NEEDED: %s].", excerpt)
	case comments.TypeEvidenceGap:
		return fmt.Sprintf("Supporting evidence includes [EVIDENCE NEEDED: %s].", excerpt)
	case comments.TypeClarify:
		return fmt.Sprintf("To clarify, [CLARIFICATION NEEDED: %s].", excerpt)
	case comments.TypeCopyedit:
		return fmt.Sprintf("[COPYEDIT: %s]", excerpt)
	case comments.TypeTighten:
		if op == OpReplace {
			return condense(spanText)
		}
		return fmt.Sprintf("[TIGHTEN: %s]", excerpt)
	case comments.TypeRestructure:
		if op == OpReplace {
			return fmt.Sprintf("[RESTRUCTURED PER: %s]\n%s", excerpt, spanText)
		}
		return fmt.Sprintf("[RESTRUCTURING NOTE: %s]", excerpt)
	default:
		return fmt.Sprintf("[ADDRESS: %s]", excerpt)
	}
}

// condense removes filler words from the text, the only length
// reduction a tighten replace is allowed to propose.
func condense(text string) string {
	words := strings.Fields(text)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		bare := strings.ToLower(strings.Trim(w, ".,;:!?"))
		if _, filler := fillerWords[bare]; filler {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// truncate cuts the excerpt to at most n bytes, backing up to a rune
// boundary so multibyte text never yields invalid UTF-8.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
