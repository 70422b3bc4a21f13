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

	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
)

// LoadBrief reads the vision brief from a JSON file. A missing path is
// allowed and yields an empty brief: the pipeline runs with configured
// defaults and no protected content.
func LoadBrief(path string) (manuscript.VisionBrief, error) {
	var brief manuscript.VisionBrief
	if path == "" {
		return brief, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return brief, fmt.Errorf("reading brief: %w", err)
	}
	if err := json.Unmarshal(raw, &brief); err != nil {
		return brief, fmt.Errorf("parsing brief %s: %w", path, err)
	}
	if err := brief.Validate(); err != nil {
		return brief, fmt.Errorf("brief %s: %w", path, err)
	}
	return brief, nil
}
