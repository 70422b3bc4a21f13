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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/archive"
)

func openArchive() (*archive.Archive, error) {
	if archiveDir == "" {
		return nil, errors.New("--archive-dir is required for archive commands")
	}
	return archive.Open(archive.DefaultConfig(archiveDir))
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	arch, err := openArchive()
	if err != nil {
		return err
	}
	defer arch.Close()

	ids, err := arch.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No archived sessions.")
		return nil
	}
	for _, id := range ids {
		entry, err := arch.Get(id)
		if err != nil {
			return err
		}
		status := "ok"
		if entry.Result.Reverted {
			status = "reverted"
		}
		fmt.Printf("%s  %s  %d changes  %d -> %d words  %s\n",
			id, entry.StoredAt.Format("2006-01-02 15:04"),
			len(entry.Result.Records),
			entry.Result.OriginalWords, entry.Result.FinalWords, status)
	}
	return nil
}

func runArchiveShow(cmd *cobra.Command, args []string) error {
	arch, err := openArchive()
	if err != nil {
		return err
	}
	defer arch.Close()

	entry, err := arch.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Print(entry.Result.Report)
	return nil
}
