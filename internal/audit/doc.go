// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

// Package audit provides persistent, multi-index storage for security and
// authentication audit events.
//
// Events record one security-relevant action each (a registration attempt,
// an authentication, a credential change, an AAL2 policy decision, a role
// change) together with the acting user, a binary outcome, request
// provenance, and a free-form metadata bag.
//
// # Storage Architecture
//
// Events live in a BadgerDB key-value store under four ordered key spaces
// per logical scope:
//
//   - primary:   <scope>:ev:<key>             -> event JSON, time-ordered
//   - by user:   <scope>:ix:user:<id>\x00<key>    -> event ID
//   - by action: <scope>:ix:action:<kind>\x00<key> -> event ID
//   - by outcome: <scope>:ix:outcome:<o>\x00<key>  -> event ID
//
// The primary key is the event timestamp at microsecond resolution, encoded
// big-endian so byte order equals time order. Timestamp collisions are
// resolved by advancing the key one microsecond at a time, which keeps
// same-instant events in insertion order and never overwrites. The same
// microsecond integer is the suffix of every secondary entry, so any index
// hit resolves back to the primary record with a single point lookup.
//
// Every mutating operation (AddEvent, CleanupOldEvents) runs inside one
// Badger update transaction; the primary record, all three index entries,
// and the container metadata commit atomically or not at all. Reads run
// under Badger's MVCC snapshots and never observe a half-applied insert.
//
// # Engines
//
// On top of the container the package provides:
//
//   - QueryAuditLogs: multi-criteria filtered queries with correct
//     pagination totals (filter, sort descending, count, then slice)
//   - ExportAuditLogs: CSV or JSON export of a full filtered set
//   - CleanupOldLogs: retention-policy cleanup with cutoff reporting
//   - GetAuditStats: container counters plus a 24-hour activity window
//     and an overall success rate
//
// # Fail-Open Logging
//
// Logger.LogEvent is the producer entry point. Audit logging observes
// authentication flows and must never break them: storage and validation
// failures are logged and counted, and LogEvent returns an empty event ID
// instead of an error.
package audit
