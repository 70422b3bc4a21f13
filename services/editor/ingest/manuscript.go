// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest turns external documents into the internal span and
// comment models. All format awareness lives here; the core stages
// never see raw files.
package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// LoadManuscript reads a markdown manuscript into spans.
func LoadManuscript(path string) ([]manuscript.Span, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manuscript: %w", err)
	}
	spans, err := ParseMarkdown(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing manuscript %s: %w", path, err)
	}
	return spans, nil
}

// ParseMarkdown splits markdown into paragraph spans.
//
// Description:
//
//	Headings update the section path and produce no span of their own;
//	the renderer re-emits them from span section paths. Heading depth
//	is normalized: a heading that skips levels (# then ###) nests one
//	level deeper and re-renders at that depth, not at its source depth.
//	Paragraphs are blank-line separated line runs. Figure and table
//	lines become single-line protected spans, since rewriting them
//	would break references. Origin line ranges are half-open and
//	zero-based.
//
// Inputs:
//
//	content - The raw markdown document.
//
// Outputs:
//
//	[]manuscript.Span - Spans in document order with base order keys.
//	error - Wraps manuscript.ErrInvalidInput when no spans result.
func ParseMarkdown(content string) ([]manuscript.Span, error) {
	lines := strings.Split(content, "\n")

	var spans []manuscript.Span
	var section []string
	var buf []string
	bufStart := 0

	flush := func(end int) {
		if len(buf) == 0 {
			return
		}
		spans = append(spans, paragraphSpan(len(spans), section, strings.Join(buf, "\n"), bufStart, end, false))
		buf = nil
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush(i)
		case strings.HasPrefix(trimmed, "#"):
			flush(i)
			level, label := splitHeading(trimmed)
			if level <= len(section) {
				section = section[:level-1]
			}
			section = append(append([]string(nil), section...), label)
		case isFigureLine(trimmed) || isTableLine(trimmed):
			flush(i)
			spans = append(spans, paragraphSpan(len(spans), section, line, i, i+1, true))
		default:
			if len(buf) == 0 {
				bufStart = i
			}
			buf = append(buf, line)
		}
	}
	flush(len(lines))

	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: document has no content", manuscript.ErrInvalidInput)
	}
	return spans, nil
}

func paragraphSpan(i int, section []string, text string, start, end int, protected bool) manuscript.Span {
	s := manuscript.Span{
		ID:          fmt.Sprintf("s%04d", i+1),
		Order:       manuscript.BaseKey(i),
		SectionPath: append([]string(nil), section...),
		Text:        text,
		Protected:   protected,
		OriginLines: manuscript.LineRange{Start: start, End: end},
	}
	s.Recount()
	return s
}

func splitHeading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	return level, strings.TrimSpace(line[level:])
}

func isFigureLine(line string) bool {
	return strings.Contains(line, "![") && strings.Contains(line, "](")
}

func isTableLine(line string) bool {
	return strings.Count(line, "|") >= 2
}
