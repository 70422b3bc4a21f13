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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcp-academic-editor/pkg/logging"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/align"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/archive"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/comments"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/config"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/ingest"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/manuscript"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/oracle"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/pipeline"
	"github.com/AleutianAI/mcp-academic-editor/services/editor/plan"
)

// newLogger builds the process logger from the global flags.
func newLogger() *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "academic-editor",
	})
}

// loadConfig resolves the session configuration from the --config flag.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// buildPipeline assembles the pipeline from the global flags. The
// returned cleanup closes the archive when one was opened.
func buildPipeline(logger *logging.Logger) (*pipeline.Pipeline, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger.Slog())}
	cleanup := func() {}

	if useOracle {
		var o align.Oracle
		o, err = oracle.NewOpenAIOracle()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithOracle(o))
	}
	if archiveDir != "" {
		arch, err := archive.Open(archive.DefaultConfig(archiveDir))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithArchiver(arch))
		cleanup = func() { _ = arch.Close() }
	}

	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	p, cleanup, err := buildPipeline(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	spans, comms, brief, err := loadInputs(args[0], args[1])
	if err != nil {
		return err
	}

	preview, err := p.Plan(cmd.Context(), spans, comms, brief)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s: %d intents, %d unaligned comments\n",
		preview.SessionID, len(preview.Intents), len(preview.Alignments.Unaligned))
	for _, in := range preview.Intents {
		line := fmt.Sprintf("  %-12s %-14s span %s  comment %s  priority %s  confidence %.2f",
			in.Status, in.Operation, in.SpanID, in.CommentID(), in.Priority, in.Confidence)
		if in.Status == plan.StatusRejected {
			line += "  (" + in.Reason + ")"
		}
		fmt.Println(line)
	}
	for _, id := range preview.Alignments.Unaligned {
		fmt.Printf("  unaligned    comment %s\n", id)
	}
	return nil
}

func runRevise(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	p, cleanup, err := buildPipeline(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return reviseOnce(cmd, p, args[0], args[1])
}

// reviseOnce runs one full session and writes the output files. Shared
// by revise and watch.
func reviseOnce(cmd *cobra.Command, p *pipeline.Pipeline, manuscriptPath, commentsPath string) error {
	spans, comms, brief, err := loadInputs(manuscriptPath, commentsPath)
	if err != nil {
		return err
	}

	backup, err := backupOriginal(manuscriptPath)
	if err != nil {
		return err
	}
	fmt.Printf("Original backed up to %s\n", backup)

	res, err := p.Revise(cmd.Context(), spans, comms, brief)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	outputs := map[string]string{
		"revised_manuscript.md": res.Manuscript,
		"revision_diff.patch":   res.Diff,
		"revision_report.md":    res.Report,
	}
	for name, content := range outputs {
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, []byte(content), 0640); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	if res.Reverted {
		fmt.Printf("Session %s reverted: safety checks failed, original emitted. See revision_report.md.\n", res.SessionID)
		return nil
	}
	fmt.Printf("Session %s: %d changes, %d -> %d words. Output in %s\n",
		res.SessionID, len(res.Records), res.OriginalWords, res.FinalWords, outDir)
	return nil
}

// loadInputs reads and parses the three session inputs.
func loadInputs(manuscriptPath, commentsPath string) ([]manuscript.Span, []comments.Comment, manuscript.VisionBrief, error) {
	spans, err := ingest.LoadManuscript(manuscriptPath)
	if err != nil {
		return nil, nil, manuscript.VisionBrief{}, err
	}
	comms, err := ingest.LoadComments(commentsPath)
	if err != nil {
		return nil, nil, manuscript.VisionBrief{}, err
	}
	brief, err := ingest.LoadBrief(briefPath)
	if err != nil {
		return nil, nil, manuscript.VisionBrief{}, err
	}
	return spans, comms, brief, nil
}

// backupOriginal copies the manuscript aside before any output is
// written next to it.
func backupOriginal(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading manuscript for backup: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	backup := fmt.Sprintf("%s.%s.bak", path, stamp)
	if err := os.WriteFile(backup, raw, 0640); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", backup, err)
	}
	return backup, nil
}
