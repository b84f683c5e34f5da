// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/cmscom/aal2-audit/internal/logging"
)

// DefaultScope is the logical scope used when callers do not partition
// their audit data.
const DefaultScope = "default"

// Store wraps the BadgerDB instance backing one or more audit containers.
// Pass the store handle explicitly wherever audit operations are needed;
// there is no process-wide instance.
type Store struct {
	db     *badger.DB
	ownsDB bool

	mu         sync.Mutex
	containers map[string]*Container
}

// Open opens (or creates) a Badger-backed audit store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit store at %s: %w", path, err)
	}
	return &Store{db: db, ownsDB: true, containers: make(map[string]*Container)}, nil
}

// OpenInMemory opens a non-persistent store. Intended for tests and
// development.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory audit store: %w", err)
	}
	return &Store{db: db, ownsDB: true, containers: make(map[string]*Container)}, nil
}

// NewStore wraps an externally managed Badger instance. Close() will not
// close the database.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db, containers: make(map[string]*Container)}
}

// Close releases the underlying database if the store owns it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close audit store: %w", err)
	}
	return nil
}

// Container returns the audit container for a logical scope, creating its
// metadata record on first access. The call is idempotent and returns the
// same instance for repeated calls with the same scope.
func (s *Store) Container(scope string) (*Container, error) {
	if scope == "" {
		scope = DefaultScope
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[scope]; ok {
		return c, nil
	}

	c := &Container{db: s.db, scope: scope}
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(c.metaKey())
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("probe container metadata: %w", err)
		}

		logging.Info().Str("scope", scope).Msg("Creating new audit log container")
		return c.writeMeta(txn, &containerMeta{
			Created:       time.Now().UTC(),
			TotalEvents:   0,
			RetentionDays: DefaultRetentionDays,
		})
	})
	if err != nil {
		return nil, err
	}

	s.containers[scope] = c
	return c, nil
}
