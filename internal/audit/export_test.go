// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestExportCSV(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	event := mustEvent(t, "alice", ActionAuthenticationSuccess, OutcomeSuccess)
	event.Timestamp = base
	event.Metadata = map[string]any{"credential_id": "cred-1"}
	if _, err := c.AddEvent(ctx, event); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	addEventAt(t, c, "bob", ActionAuthenticationFailure, OutcomeFailure, base.Add(time.Hour))

	export, err := ExportAuditLogs(ctx, c, FormatCSV, QueryFilter{})
	if err != nil {
		t.Fatalf("ExportAuditLogs failed: %v", err)
	}
	if export.ContentType != "text/csv" {
		t.Errorf("content type = %q, want text/csv", export.ContentType)
	}
	if !strings.HasPrefix(export.Filename, "audit_log_") || !strings.HasSuffix(export.Filename, ".csv") {
		t.Errorf("unexpected filename %q", export.Filename)
	}

	rows, err := csv.NewReader(bytes.NewReader(export.Content)).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 events", len(rows))
	}

	wantHeader := []string{"event_id", "timestamp", "user_id", "action_type", "outcome", "ip_address", "user_agent", "metadata"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header column %d = %q, want %q", i, rows[0][i], col)
		}
	}

	// Rows are most recent first; alice's event is the second data row.
	aliceRow := rows[2]
	if aliceRow[2] != "alice" || aliceRow[3] != string(ActionAuthenticationSuccess) || aliceRow[4] != "success" {
		t.Errorf("unexpected alice row: %v", aliceRow)
	}

	// Metadata is flattened to a JSON cell.
	var meta map[string]any
	if err := json.Unmarshal([]byte(aliceRow[7]), &meta); err != nil {
		t.Fatalf("metadata cell is not JSON: %v", err)
	}
	if meta["credential_id"] != "cred-1" {
		t.Errorf("metadata cell = %v, want credential_id cred-1", meta)
	}
}

func TestExportCSVEmpty(t *testing.T) {
	c := newTestContainer(t)

	export, err := ExportAuditLogs(context.Background(), c, FormatCSV, QueryFilter{})
	if err != nil {
		t.Fatalf("ExportAuditLogs failed: %v", err)
	}
	if len(export.Content) != 0 {
		t.Errorf("empty result set produced %d bytes of csv, want none", len(export.Content))
	}
	if export.Filename == "" {
		t.Error("filename missing on empty export")
	}
}

func TestExportJSON(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		addEventAt(t, c, "alice", ActionRegistrationSuccess, OutcomeSuccess, base.Add(time.Duration(i)*time.Minute))
	}

	export, err := ExportAuditLogs(ctx, c, FormatJSON, QueryFilter{})
	if err != nil {
		t.Fatalf("ExportAuditLogs failed: %v", err)
	}
	if export.ContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", export.ContentType)
	}
	if !strings.HasSuffix(export.Filename, ".json") {
		t.Errorf("unexpected filename %q", export.Filename)
	}

	var envelope struct {
		ExportTime string        `json:"export_time"`
		EventCount int           `json:"event_count"`
		Events     []EventRecord `json:"events"`
	}
	if err := json.Unmarshal(export.Content, &envelope); err != nil {
		t.Fatalf("parse exported json: %v", err)
	}
	if envelope.EventCount != 3 || len(envelope.Events) != 3 {
		t.Errorf("event_count = %d with %d events, want 3/3", envelope.EventCount, len(envelope.Events))
	}
	if _, err := time.Parse(time.RFC3339Nano, envelope.ExportTime); err != nil {
		t.Errorf("export_time %q is not a timestamp: %v", envelope.ExportTime, err)
	}
}

func TestExportJSONEmpty(t *testing.T) {
	c := newTestContainer(t)

	export, err := ExportAuditLogs(context.Background(), c, FormatJSON, QueryFilter{})
	if err != nil {
		t.Fatalf("ExportAuditLogs failed: %v", err)
	}

	var envelope struct {
		EventCount int               `json:"event_count"`
		Events     []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(export.Content, &envelope); err != nil {
		t.Fatalf("parse exported json: %v", err)
	}
	if envelope.EventCount != 0 {
		t.Errorf("event_count = %d, want 0", envelope.EventCount)
	}
	if envelope.Events == nil {
		t.Error("events field must be an empty array, not null")
	}
}

func TestExportRespectsFilter(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	addEventAt(t, c, "alice", ActionAuthenticationSuccess, OutcomeSuccess, base)
	addEventAt(t, c, "bob", ActionAuthenticationFailure, OutcomeFailure, base.Add(time.Minute))

	export, err := ExportAuditLogs(ctx, c, FormatJSON, QueryFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ExportAuditLogs failed: %v", err)
	}
	var envelope jsonEnvelope
	if err := json.Unmarshal(export.Content, &envelope); err != nil {
		t.Fatalf("parse exported json: %v", err)
	}
	if envelope.EventCount != 1 || envelope.Events[0].UserID != "alice" {
		t.Errorf("filtered export returned %d events", envelope.EventCount)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	c := newTestContainer(t)

	if _, err := ExportAuditLogs(context.Background(), c, "xml", QueryFilter{}); err == nil {
		t.Error("unsupported format accepted")
	}
}
