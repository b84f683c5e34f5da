// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"context"
	"time"

	"github.com/cmscom/aal2-audit/internal/logging"
)

// CleanupResult reports one retention cleanup run.
type CleanupResult struct {
	DeletedCount   int    `json:"deleted_count"`
	RetentionDays  int    `json:"retention_days"`
	CutoffDate     string `json:"cutoff_date"`
	RemainingCount int    `json:"remaining_count"`
	InitialCount   int    `json:"initial_count"`
}

// CleanupOldLogs deletes events older than the retention period.
// retentionDays <= 0 resolves to the container's stored policy. The call
// is idempotent: a second run with an unchanged cutoff deletes nothing.
func CleanupOldLogs(ctx context.Context, c *Container, retentionDays int) (*CleanupResult, error) {
	if retentionDays <= 0 {
		stored, err := c.RetentionDays(ctx)
		if err != nil {
			return nil, err
		}
		retentionDays = stored
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	before, err := c.Stats(ctx)
	if err != nil {
		return nil, err
	}

	deleted, err := c.CleanupOldEvents(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	remaining := before.TotalEvents - deleted
	logging.Info().
		Str("scope", c.Scope()).
		Int("deleted", deleted).
		Int("remaining", remaining).
		Int("retention_days", retentionDays).
		Msg("Audit log cleanup complete")

	return &CleanupResult{
		DeletedCount:   deleted,
		RetentionDays:  retentionDays,
		CutoffDate:     cutoff.Format(timestampLayout),
		RemainingCount: remaining,
		InitialCount:   before.TotalEvents,
	}, nil
}

// StartCleanupRoutine runs CleanupOldLogs on a fixed interval until ctx is
// canceled, using the container's stored retention policy. Intended for
// deployments without an external scheduler.
func StartCleanupRoutine(ctx context.Context, c *Container, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := CleanupOldLogs(ctx, c, 0); err != nil {
					logging.Error().Err(err).Str("scope", c.Scope()).Msg("Audit cleanup error")
				}
			}
		}
	}()
}
