// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	briefPath  string
	outDir     string
	archiveDir string
	logDir     string
	useOracle  bool
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "academic-editor",
		Short: "Surgical manuscript revision from reviewer comments",
		Long: `academic-editor applies reviewer comments to a manuscript as
surgical, span-level edits: comments are aligned to paragraphs, planned
as typed edit intents, applied under a word-count safety floor, and
verified for semantic drift before the revised document is assembled.`,
	}

	planCmd = &cobra.Command{
		Use:   "plan [manuscript.md] [comments]",
		Short: "Preview the edit plan without modifying anything",
		Args:  cobra.ExactArgs(2),
		RunE:  runPlan, // Defined in cmd_revise.go
	}

	reviseCmd = &cobra.Command{
		Use:   "revise [manuscript.md] [comments]",
		Short: "Run the full revision pipeline and write the revised manuscript",
		Args:  cobra.ExactArgs(2),
		RunE:  runRevise, // Defined in cmd_revise.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [manuscript.md] [comments]",
		Short: "Re-run the revision whenever the inputs change on disk",
		Args:  cobra.ExactArgs(2),
		RunE:  runWatch, // Defined in cmd_watch.go
	}

	archiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived revision sessions",
	}

	archiveListCmd = &cobra.Command{
		Use:   "list",
		Short: "List archived session ids",
		RunE:  runArchiveList, // Defined in cmd_archive.go
	}

	archiveShowCmd = &cobra.Command{
		Use:   "show [session-id]",
		Short: "Print the report of an archived session",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchiveShow, // Defined in cmd_archive.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&briefPath, "brief", "", "Path to the vision brief JSON")
	rootCmd.PersistentFlags().StringVar(&archiveDir, "archive-dir", "", "Directory of the session archive (archiving disabled when omitted)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (stderr only when omitted)")
	rootCmd.PersistentFlags().BoolVar(&useOracle, "oracle", false, "Use the OpenAI embedding oracle for semantic scoring")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	reviseCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for the revised manuscript, diff, and report")
	watchCmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for the revised manuscript, diff, and report")

	archiveCmd.AddCommand(archiveListCmd, archiveShowCmd)
	rootCmd.AddCommand(planCmd, reviseCmd, watchCmd, archiveCmd)
}
