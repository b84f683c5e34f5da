// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"context"
	"fmt"
	"io"

	"github.com/cmscom/aal2-audit/internal/logging"
)

// Backup streams a full snapshot of the store to w in Badger's backup
// format. Returns the version watermark of the snapshot, which a future
// incremental backup could resume from. Safe to run concurrently with
// reads and writes.
func (s *Store) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	since, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("backup audit store: %w", err)
	}
	logging.Info().Uint64("version", since).Msg("Audit store backup complete")
	return since, nil
}

// Restore loads a backup stream produced by Backup into the store.
// Intended for an empty store; existing keys are overwritten by the
// stream's versions.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	if err := s.db.Load(r, 16); err != nil {
		return fmt.Errorf("restore audit store: %w", err)
	}
	logging.Info().Msg("Audit store restore complete")
	return nil
}
