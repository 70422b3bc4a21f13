// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// commentRecord is the structured JSON form of one reviewer comment.
type commentRecord struct {
	ID           string `json:"id"`
	Text         string `json:"text" validate:"required"`
	Type         string `json:"type"`
	Priority     string `json:"priority"`
	QuotedTarget string `json:"quoted_target"`
}

// quotePattern extracts a quoted excerpt from free-form comment text.
// Short quotes are ignored; they are too ambiguous to force alignment.
var quotePattern = regexp.MustCompile(`"([^"]{10,})"|` + "`([^`]{10,})`")

// LoadComments reads reviewer comments from a JSON or plain-text file.
//
// JSON files carry structured records; text files are split into
// blank-line separated blocks with type and priority inferred from
// keyword cues, the way reviewer feedback usually arrives.
func LoadComments(path string) ([]comments.Comment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading comments: %w", err)
	}

	var list []comments.Comment
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		list, err = parseJSONComments(raw)
	default:
		list = ParseTextComments(string(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing comments %s: %w", path, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no comments in %s", manuscript.ErrInvalidInput, path)
	}
	return list, nil
}

func parseJSONComments(raw []byte) ([]comments.Comment, error) {
	var records []commentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		// A single object is accepted for one-comment files.
		var one commentRecord
		if err2 := json.Unmarshal(raw, &one); err2 != nil {
			return nil, err
		}
		records = []commentRecord{one}
	}

	v := validator.New()
	out := make([]comments.Comment, 0, len(records))
	for i, rec := range records {
		if err := v.Struct(rec); err != nil {
			return nil, fmt.Errorf("%w: comment %d: %v", manuscript.ErrInvalidInput, i, err)
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("c%03d", i+1)
		}
		out = append(out, comments.Comment{
			ID:           rec.ID,
			RawText:      rec.Text,
			Type:         comments.ParseType(rec.Type),
			Priority:     comments.ParsePriority(rec.Priority),
			QuotedTarget: rec.QuotedTarget,
		})
	}
	return out, nil
}

// ParseTextComments splits free-form reviewer text into comments, one
// per blank-line separated block. Very short blocks are dropped as
// noise.
func ParseTextComments(content string) []comments.Comment {
	var out []comments.Comment
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if len(block) < 20 {
			continue
		}
		c := comments.Comment{
			ID:           fmt.Sprintf("c%03d", len(out)+1),
			RawText:      block,
			Type:         inferType(block),
			Priority:     inferPriority(block),
			QuotedTarget: extractQuote(block),
		}
		out = append(out, c)
	}
	return out
}

// typeCues maps comment types to the keywords that suggest them.
var typeCues = map[comments.Type][]string{
	comments.TypeClarify:         {"clarify", "explain", "define", "unclear", "confusing", "elaborate", "ambiguous"},
	comments.TypeAddCitation:     {"citation", "reference", "cite", "bibliography", "source"},
	comments.TypeRestructure:     {"restructure", "reorganize", "reorder", "move", "structure", "flow"},
	comments.TypeTighten:         {"concise", "shorten", "verbose", "wordy", "tighten", "trim", "repetitive"},
	comments.TypeCounterargument: {"counter", "opposing", "alternative", "limitation", "weakness", "criticism"},
	comments.TypeEvidenceGap:     {"evidence", "support", "data", "substantiate", "demonstrate", "justify"},
}

func inferType(text string) comments.Type {
	lower := strings.ToLower(text)
	best := comments.TypeUnknown
	bestScore := 0
	// Stable iteration so equal scores resolve the same way every run.
	for _, t := range []comments.Type{
		comments.TypeClarify, comments.TypeAddCitation, comments.TypeRestructure,
		comments.TypeTighten, comments.TypeCounterargument, comments.TypeEvidenceGap,
	} {
		score := 0
		for _, cue := range typeCues[t] {
			if strings.Contains(lower, cue) {
				score++
			}
		}
		if score > bestScore {
			best = t
			bestScore = score
		}
	}
	return best
}

func inferPriority(text string) comments.Priority {
	lower := strings.ToLower(text)
	for _, cue := range []string{"must", "critical", "essential", "required", "major", "serious"} {
		if strings.Contains(lower, cue) {
			return comments.PriorityHigh
		}
	}
	for _, cue := range []string{"minor", "small", "optional", "consider", "might", "could"} {
		if strings.Contains(lower, cue) {
			return comments.PriorityLow
		}
	}
	return comments.PriorityMedium
}

func extractQuote(text string) string {
	m := quotePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
