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
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// debounceWindow coalesces the write bursts editors produce on save.
const debounceWindow = 500 * time.Millisecond

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	p, cleanup, err := buildPipeline(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	manuscriptPath, commentsPath := args[0], args[1]

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directories: editors replace files on save, and
	// watching the path directly loses the watch after the first swap.
	watched := map[string]bool{
		filepath.Clean(manuscriptPath): true,
		filepath.Clean(commentsPath):   true,
	}
	for dir := range map[string]bool{
		filepath.Dir(manuscriptPath): true,
		filepath.Dir(commentsPath):   true,
	} {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	if err := reviseOnce(cmd, p, manuscriptPath, commentsPath); err != nil {
		logger.Error("initial revision failed", "error", err)
	}
	fmt.Println("Watching for changes. Ctrl-C to stop.")

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			logger.Info("inputs changed, revising")
			if err := reviseOnce(cmd, p, manuscriptPath, commentsPath); err != nil {
				logger.Error("revision failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
