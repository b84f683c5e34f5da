// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Export is a serialized result set ready for download or archival.
type Export struct {
	Content     []byte `json:"-"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
}

// csvColumns is the fixed CSV column order.
var csvColumns = []string{
	"event_id", "timestamp", "user_id", "action_type",
	"outcome", "ip_address", "user_agent", "metadata",
}

// jsonEnvelope wraps a JSON export.
type jsonEnvelope struct {
	ExportTime string        `json:"export_time"`
	EventCount int           `json:"event_count"`
	Events     []EventRecord `json:"events"`
}

// ExportAuditLogs serializes the entire filtered event set to CSV or JSON.
// Export never paginates; callers wanting to bound the result size should
// narrow the filter's time range first.
func ExportAuditLogs(ctx context.Context, c *Container, format string, filter QueryFilter) (*Export, error) {
	result, err := QueryAuditLogs(ctx, c, filter, 0, 0)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stamp := now.Format("20060102_150405")

	switch format {
	case FormatCSV:
		return exportCSV(result.Events, stamp)
	case FormatJSON:
		return exportJSON(result.Events, now, stamp)
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

func exportCSV(events []EventRecord, stamp string) (*Export, error) {
	export := &Export{
		ContentType: "text/csv",
		Filename:    "audit_log_" + stamp + ".csv",
	}
	if len(events) == 0 {
		return export, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for i := range events {
		e := &events[i]
		// Metadata is an open-ended bag; flatten it to one JSON cell.
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata for event %s: %w", e.EventID, err)
		}
		row := []string{
			e.EventID, e.Timestamp, e.UserID, e.ActionType,
			e.Outcome, e.IPAddress, e.UserAgent, string(meta),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	export.Content = buf.Bytes()
	return export, nil
}

func exportJSON(events []EventRecord, now time.Time, stamp string) (*Export, error) {
	if events == nil {
		events = []EventRecord{}
	}
	envelope := jsonEnvelope{
		ExportTime: now.Format(timestampLayout),
		EventCount: len(events),
		Events:     events,
	}

	content, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export envelope: %w", err)
	}

	return &Export{
		Content:     content,
		ContentType: "application/json",
		Filename:    "audit_log_" + stamp + ".json",
	}, nil
}
