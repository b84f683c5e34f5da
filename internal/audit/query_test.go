// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"context"
	"testing"
	"time"
)

// seedMixedEvents writes an interleaved population: 3 users, alternating
// success/failure outcomes, one event per minute.
func seedMixedEvents(t *testing.T, c *Container, n int, base time.Time) {
	t.Helper()
	users := []string{"alice", "bob", "carol"}
	for i := 0; i < n; i++ {
		action := ActionAuthenticationSuccess
		outcome := OutcomeSuccess
		if i%2 == 1 {
			action = ActionAuthenticationFailure
			outcome = OutcomeFailure
		}
		addEventAt(t, c, users[i%len(users)], action, outcome, base.Add(time.Duration(i)*time.Minute))
	}
}

func TestQueryAuditLogsNoFilter(t *testing.T) {
	c := newTestContainer(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMixedEvents(t, c, 12, base)

	result, err := QueryAuditLogs(context.Background(), c, QueryFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("QueryAuditLogs failed: %v", err)
	}
	if result.Total != 12 {
		t.Errorf("total = %d, want 12", result.Total)
	}
	if len(result.Events) != 12 {
		t.Errorf("got %d events, want 12", len(result.Events))
	}
	if result.HasMore {
		t.Error("has_more = true with no limit")
	}
}

func TestQueryAuditLogsDescendingOrder(t *testing.T) {
	c := newTestContainer(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMixedEvents(t, c, 10, base)

	result, err := QueryAuditLogs(context.Background(), c, QueryFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("QueryAuditLogs failed: %v", err)
	}
	for i := 1; i < len(result.Events); i++ {
		prev, err := time.Parse(time.RFC3339Nano, result.Events[i-1].Timestamp)
		if err != nil {
			t.Fatalf("parse timestamp: %v", err)
		}
		cur, err := time.Parse(time.RFC3339Nano, result.Events[i].Timestamp)
		if err != nil {
			t.Fatalf("parse timestamp: %v", err)
		}
		if cur.After(prev) {
			t.Fatalf("events not in descending order at position %d", i)
		}
	}
}

func TestQueryAuditLogsIntersection(t *testing.T) {
	c := newTestContainer(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMixedEvents(t, c, 30, base)

	ctx := context.Background()
	filter := QueryFilter{UserID: "alice", Outcome: string(OutcomeFailure)}
	combined, err := QueryAuditLogs(ctx, c, filter, 0, 0)
	if err != nil {
		t.Fatalf("combined query failed: %v", err)
	}

	// Combined filters behave as an intersection of the single-criterion
	// results.
	byUser, err := QueryAuditLogs(ctx, c, QueryFilter{UserID: "alice"}, 0, 0)
	if err != nil {
		t.Fatalf("user query failed: %v", err)
	}
	byOutcome, err := QueryAuditLogs(ctx, c, QueryFilter{Outcome: string(OutcomeFailure)}, 0, 0)
	if err != nil {
		t.Fatalf("outcome query failed: %v", err)
	}

	inOutcome := make(map[string]bool, len(byOutcome.Events))
	for _, e := range byOutcome.Events {
		inOutcome[e.EventID] = true
	}
	wantIDs := make(map[string]bool)
	for _, e := range byUser.Events {
		if inOutcome[e.EventID] {
			wantIDs[e.EventID] = true
		}
	}

	if combined.Total != len(wantIDs) {
		t.Fatalf("combined total = %d, want %d", combined.Total, len(wantIDs))
	}
	for _, e := range combined.Events {
		if !wantIDs[e.EventID] {
			t.Errorf("event %s in combined result but not in intersection", e.EventID)
		}
		if e.UserID != "alice" || e.Outcome != string(OutcomeFailure) {
			t.Errorf("event %s does not match both criteria", e.EventID)
		}
	}
}

func TestQueryAuditLogsPagination(t *testing.T) {
	c := newTestContainer(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMixedEvents(t, c, 25, base)

	ctx := context.Background()
	const pageSize = 10

	seen := make(map[string]bool)
	offset := 0
	for {
		page, err := QueryAuditLogs(ctx, c, QueryFilter{}, pageSize, offset)
		if err != nil {
			t.Fatalf("page at offset %d failed: %v", offset, err)
		}
		if page.Total != 25 {
			t.Errorf("total = %d at offset %d, want 25", page.Total, offset)
		}
		for _, e := range page.Events {
			if seen[e.EventID] {
				t.Errorf("event %s returned twice across pages", e.EventID)
			}
			seen[e.EventID] = true
		}
		if !page.HasMore {
			break
		}
		offset += pageSize
	}
	if len(seen) != 25 {
		t.Errorf("pages covered %d events, want 25", len(seen))
	}
}

func TestQueryAuditLogsPaginationBounds(t *testing.T) {
	c := newTestContainer(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMixedEvents(t, c, 5, base)

	ctx := context.Background()

	// Offset past the end yields an empty page, not an error.
	result, err := QueryAuditLogs(ctx, c, QueryFilter{}, 10, 100)
	if err != nil {
		t.Fatalf("QueryAuditLogs failed: %v", err)
	}
	if len(result.Events) != 0 || result.Total != 5 || result.HasMore {
		t.Errorf("offset past end: got %d events, total %d, has_more %v",
			len(result.Events), result.Total, result.HasMore)
	}

	// Exact boundary: last full page reports has_more = false.
	result, err = QueryAuditLogs(ctx, c, QueryFilter{}, 5, 0)
	if err != nil {
		t.Fatalf("QueryAuditLogs failed: %v", err)
	}
	if result.HasMore {
		t.Error("has_more = true when page covers the whole set")
	}

	if _, err := QueryAuditLogs(ctx, c, QueryFilter{}, 10, -1); err == nil {
		t.Error("negative offset accepted")
	}
}

func TestQueryAuditLogsInvalidFilter(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter QueryFilter
	}{
		{"unknown action type", QueryFilter{ActionType: "made_up_action"}},
		{"unknown outcome", QueryFilter{Outcome: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := QueryAuditLogs(ctx, c, tt.filter, 0, 0); err == nil {
				t.Error("invalid filter accepted")
			}
		})
	}
}

func TestQueryAuditLogsTimeWindow(t *testing.T) {
	c := newTestContainer(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedMixedEvents(t, c, 10, base)

	start := base.Add(3 * time.Minute)
	end := base.Add(7 * time.Minute)
	result, err := QueryAuditLogs(context.Background(), c, QueryFilter{StartTime: &start, EndTime: &end}, 0, 0)
	if err != nil {
		t.Fatalf("QueryAuditLogs failed: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("total = %d, want 5 (minutes 3..7 inclusive)", result.Total)
	}
}

func TestQueryAuditLogsEmptyStore(t *testing.T) {
	c := newTestContainer(t)

	result, err := QueryAuditLogs(context.Background(), c, QueryFilter{UserID: "nobody"}, 50, 0)
	if err != nil {
		t.Fatalf("QueryAuditLogs failed: %v", err)
	}
	if result.Total != 0 || len(result.Events) != 0 || result.HasMore {
		t.Errorf("empty store: total %d, events %d, has_more %v",
			result.Total, len(result.Events), result.HasMore)
	}
}
