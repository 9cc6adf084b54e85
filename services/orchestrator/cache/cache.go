// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides an embedded answer cache backed by BadgerDB.
//
// The cache sits outside the reasoning core: the pipeline consults it
// before running and writes completed answers after synthesis. Entries
// carry a TTL and writes are at-most-once per key, so concurrent requests
// for the same question never overwrite each other's results.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is how long a cached answer stays valid.
const DefaultTTL = 15 * time.Minute

// Config holds configuration for the answer cache.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode for testing.
	InMemory bool

	// TTL is the entry lifetime. Non-positive values use DefaultTTL.
	TTL time.Duration
}

// DefaultConfig returns production defaults reading the cache directory
// from ANSWER_CACHE_PATH.
func DefaultConfig() Config {
	path := os.Getenv("ANSWER_CACHE_PATH")
	if path == "" {
		path = "/var/lib/aleutian/answer-cache"
	}
	return Config{Path: path, TTL: DefaultTTL}
}

// AnswerCache stores completed search responses keyed by collection,
// normalized question, and strategy.
//
// # Thread Safety
//
// AnswerCache is safe for concurrent use; BadgerDB transactions provide
// the write-once guarantee.
type AnswerCache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates the cache, opening or creating the underlying database.
func Open(cfg Config) (*AnswerCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("cache path is required for persistent mode")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open answer cache: %w", err)
	}
	return &AnswerCache{db: db, ttl: cfg.TTL}, nil
}

// Close releases the underlying database.
func (c *AnswerCache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for one request.
//
// The question is normalized (lowercased, space-collapsed, trailing
// punctuation stripped) so trivial rephrasings share an entry.
func Key(collectionID, question, strategy string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	normalized = strings.TrimRight(normalized, "?!. ")
	sum := sha256.Sum256([]byte(collectionID + "\x00" + normalized + "\x00" + strategy))
	return "answer:" + hex.EncodeToString(sum[:])
}

// Get returns the cached response for the key, or ok=false on a miss.
func (c *AnswerCache) Get(key string) (*datatypes.SearchResponse, bool) {
	var resp datatypes.SearchResponse
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &resp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Answer cache read failed", "error", err)
		return nil, false
	}
	return &resp, true
}

// Set stores the response under the key unless an entry already exists.
//
// The existence check and write share one transaction, giving at-most-one
// write per key: the first completed request wins and later writers are
// silent no-ops. Cache failures are logged, never surfaced, since caching
// is an optimization.
func (c *AnswerCache) Set(key string, resp *datatypes.SearchResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("Answer cache marshal failed", "error", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return nil // first writer wins
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		entry := badger.NewEntry([]byte(key), payload).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("Answer cache write failed", "error", err)
	}
}
