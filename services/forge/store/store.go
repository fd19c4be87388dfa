// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists compiled bundles in an embedded BadgerDB so they
// can be signed, inspected, and applied in separate invocations.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/forgeline-ai/forgeline/services/forge/bundle"
)

// ErrNotFound indicates no bundle exists for the given ID.
var ErrNotFound = errors.New("bundle not found")

const bundleKeyPrefix = "bundle:"

// Config holds configuration for the bundle store.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger is the logger for database operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns configuration for testing. Data is lost on
// Close.
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

// Store is a bundle archive backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates and opens a store with the given configuration.
//
// # Outputs
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open bundle store: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "store.Store"),
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes a bundle, overwriting any previous version with the same ID.
func (s *Store) Put(ctx context.Context, b *bundle.Bundle) error {
	if b == nil {
		return errors.New("bundle must not be nil")
	}
	if b.ID == "" {
		return errors.New("bundle ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding bundle %s: %w", b.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(bundleKeyPrefix+b.ID), data)
	})
	if err != nil {
		return fmt.Errorf("storing bundle %s: %w", b.ID, err)
	}

	s.logger.Debug("bundle stored",
		slog.String("bundle_id", b.ID),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Get reads one bundle by ID. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*bundle.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(bundleKeyPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading bundle %s: %w", id, err)
	}

	var b bundle.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle %s: %w", id, err)
	}
	return &b, nil
}

// List returns all stored bundles, newest first.
func (s *Store) List(ctx context.Context) ([]*bundle.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bundles []*bundle.Bundle
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bundleKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var b bundle.Bundle
			if err := json.Unmarshal(data, &b); err != nil {
				id := strings.TrimPrefix(string(item.Key()), bundleKeyPrefix)
				s.logger.Warn("skipping undecodable bundle",
					slog.String("bundle_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			bundles = append(bundles, &b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}

	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].CreatedAt.After(bundles[j].CreatedAt)
	})
	return bundles, nil
}

// Delete removes a bundle. Deleting a missing bundle is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(bundleKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("deleting bundle %s: %w", id, err)
	}
	return nil
}
