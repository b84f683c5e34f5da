// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

var validate = validator.New()

// QueryFilter holds the optional, combinable filter criteria accepted by
// QueryAuditLogs and ExportAuditLogs. All fields are plain values so the
// filter can be built from any presentation layer.
type QueryFilter struct {
	UserID     string     `json:"user_id,omitempty"`
	ActionType string     `json:"action_type,omitempty" validate:"omitempty,oneof=registration_start registration_success registration_failure authentication_start authentication_success authentication_failure credential_deleted credential_updated aal2_timestamp_set aal2_access_granted aal2_access_denied aal2_policy_set aal2_role_assigned aal2_role_revoked"`
	Outcome    string     `json:"outcome,omitempty" validate:"omitempty,oneof=success failure"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// QueryResult is one page of filtered events with pagination bookkeeping.
// Total counts the fully filtered set, not just the returned page.
type QueryResult struct {
	Events  []EventRecord `json:"events"`
	Total   int           `json:"total"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
	HasMore bool          `json:"has_more"`
}

// QueryAuditLogs runs a multi-criteria filtered query with pagination.
//
// Exactly one indexed lookup is dispatched, by filter precedence
// user_id > action_type > outcome > time-only scan; any remaining filter
// dimensions are applied as an in-memory AND over the indexed result.
// Events are sorted descending by timestamp (most recent first). Total is
// computed over the whole filtered set before the [offset, offset+limit)
// slice is taken; limit <= 0 means no limit.
func QueryAuditLogs(ctx context.Context, c *Container, filter QueryFilter, limit, offset int) (*QueryResult, error) {
	if err := validate.Struct(filter); err != nil {
		return nil, fmt.Errorf("invalid query filter: %w", err)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must not be negative, got %d", offset)
	}

	timer := prometheus.NewTimer(QueryDuration)
	defer timer.ObserveDuration()

	events, err := dispatchQuery(ctx, c, filter)
	if err != nil {
		return nil, err
	}
	events = applyResidualFilters(events, filter)

	// Indexes iterate ascending; consumers want most recent first.
	// Stable sort keeps same-instant events in insertion order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	total := len(events)
	start := offset
	if start > total {
		start = total
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	page := events[start:end]

	records := make([]EventRecord, len(page))
	for i, e := range page {
		records[i] = e.Record()
	}

	return &QueryResult{
		Events:  records,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(page) < total,
	}, nil
}

// dispatchQuery picks the single indexed lookup for the filter.
func dispatchQuery(ctx context.Context, c *Container, filter QueryFilter) ([]*Event, error) {
	switch {
	case filter.UserID != "":
		return c.QueryByUser(ctx, filter.UserID, filter.StartTime, filter.EndTime)
	case filter.ActionType != "":
		return c.QueryByAction(ctx, ActionType(filter.ActionType), filter.StartTime, filter.EndTime)
	case filter.Outcome != "":
		return c.QueryByOutcome(ctx, Outcome(filter.Outcome), filter.StartTime, filter.EndTime)
	default:
		return c.QueryByTimestamp(ctx, filter.StartTime, filter.EndTime)
	}
}

// applyResidualFilters narrows an indexed result by the filter dimensions
// the dispatched index did not cover.
func applyResidualFilters(events []*Event, filter QueryFilter) []*Event {
	action := ActionType(filter.ActionType)
	outcome := Outcome(filter.Outcome)

	needAction := filter.ActionType != "" && filter.UserID != ""
	needOutcome := filter.Outcome != "" && (filter.UserID != "" || filter.ActionType != "")
	if !needAction && !needOutcome {
		return events
	}

	filtered := events[:0]
	for _, e := range events {
		if needAction && e.ActionType != action {
			continue
		}
		if needOutcome && e.Outcome != outcome {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}
