// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsStored counts events committed to the container.
	EventsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aal2_audit_events_stored_total",
			Help: "Total number of audit events committed to the store",
		},
		[]string{"action_type", "outcome"},
	)

	// EventsDropped counts events lost at the fail-open logging entry
	// point, by reason (validation, storage).
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aal2_audit_events_dropped_total",
			Help: "Total number of audit events dropped instead of stored",
		},
		[]string{"reason"},
	)

	// EventsDeleted counts events removed by retention cleanup.
	EventsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aal2_audit_events_deleted_total",
			Help: "Total number of audit events deleted by retention cleanup",
		},
	)

	// IndexConsistencySkips counts secondary-index entries found without a
	// matching primary record. Any nonzero value indicates index/primary
	// desynchronization and deserves investigation.
	IndexConsistencySkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aal2_audit_index_consistency_skips_total",
			Help: "Total number of dangling secondary-index entries skipped during queries",
		},
		[]string{"dimension"},
	)

	// QueryDuration observes end-to-end filtered query latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aal2_audit_query_duration_seconds",
			Help:    "Duration of filtered audit log queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
