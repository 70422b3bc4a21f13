// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive persists revision sessions in an embedded BadgerDB.
//
// Every completed session is stored under its session id so an author
// can reread the audit trail or re-emit the diff long after the run.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/mcp-academic-editor/services/editor/assemble"
)

// ErrNotFound means no session exists under the requested id.
var ErrNotFound = errors.New("session not found")

const sessionPrefix = "session/"

// Config holds configuration for the archive database.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory
	// is true.
	Path string

	// InMemory enables in-memory mode, for tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging; nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns durable on-disk defaults.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a test configuration with no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Entry is one archived session with its storage timestamp.
type Entry struct {
	SessionID string                   `json:"session_id"`
	StoredAt  time.Time                `json:"stored_at"`
	Result    assemble.RevisionResult `json:"result"`
}

// Archive is a session store backed by BadgerDB.
//
// Thread Safety:
//
//	Safe for concurrent use; BadgerDB transactions provide isolation.
type Archive struct {
	db *badger.DB
}

// Open creates the archive at the configured location.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory.
//
// Outputs:
//
//	*Archive - The opened archive. Caller must Close it.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Archive, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent archive")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create archive directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Store persists one session result under its session id.
func (a *Archive) Store(res assemble.RevisionResult) error {
	entry := Entry{
		SessionID: res.SessionID,
		StoredAt:  time.Now().UTC(),
		Result:    res,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", res.SessionID, err)
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionPrefix+res.SessionID), raw)
	})
	if err != nil {
		return fmt.Errorf("storing session %s: %w", res.SessionID, err)
	}
	return nil
}

// Get loads one archived session.
func (a *Archive) Get(sessionID string) (Entry, error) {
	var entry Entry
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// List returns the archived session ids in key order.
func (a *Archive) List() ([]string, error) {
	var ids []string
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(sessionPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(sessionPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return ids, nil
}
