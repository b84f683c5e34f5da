// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"context"
	"math"
	"time"
)

// AuditStats combines container counters with a bounded recent-activity
// window and the overall success rate.
type AuditStats struct {
	TotalEvents      int            `json:"total_events"`
	Created          string         `json:"created"`
	LastCleaned      string         `json:"last_cleaned,omitempty"`
	RetentionDays    int            `json:"retention_days"`
	UsersCount       int            `json:"users_count"`
	ActionTypesCount int            `json:"action_types_count"`
	RecentActivity   map[string]int `json:"recent_activity"`
	RecentEvents24h  int            `json:"recent_events_24h"`
	SuccessEvents    int            `json:"success_events"`
	FailureEvents    int            `json:"failure_events"`
	SuccessRate      float64        `json:"success_rate"`
}

// GetAuditStats aggregates container counters, the last 24 hours of
// activity grouped by action type, and success/failure totals drawn from
// the outcome buckets. SuccessRate is a percentage, 0 when no events with
// an outcome exist.
func GetAuditStats(ctx context.Context, c *Container) (*AuditStats, error) {
	base, err := c.Stats(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	last24h := now.Add(-24 * time.Hour)
	recent, err := c.QueryByTimestamp(ctx, &last24h, &now)
	if err != nil {
		return nil, err
	}
	recentByAction := make(map[string]int)
	for _, e := range recent {
		recentByAction[string(e.ActionType)]++
	}

	successCount, err := c.countBucket(dimOutcome, string(OutcomeSuccess))
	if err != nil {
		return nil, err
	}
	failureCount, err := c.countBucket(dimOutcome, string(OutcomeFailure))
	if err != nil {
		return nil, err
	}

	successRate := 0.0
	if total := successCount + failureCount; total > 0 {
		successRate = float64(successCount) / float64(total) * 100
		successRate = math.Round(successRate*100) / 100
	}

	stats := &AuditStats{
		TotalEvents:      base.TotalEvents,
		Created:          base.Created.Format(timestampLayout),
		RetentionDays:    base.RetentionDays,
		UsersCount:       base.UsersCount,
		ActionTypesCount: base.ActionTypesCount,
		RecentActivity:   recentByAction,
		RecentEvents24h:  len(recent),
		SuccessEvents:    successCount,
		FailureEvents:    failureCount,
		SuccessRate:      successRate,
	}
	if base.LastCleaned != nil {
		stats.LastCleaned = base.LastCleaned.Format(timestampLayout)
	}
	return stats, nil
}
