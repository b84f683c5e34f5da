// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"context"

	"github.com/cmscom/aal2-audit/internal/logging"
)

// Source carries the request provenance of an event. Zero values fall
// back to the "unknown" sentinel at event construction.
type Source struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// Logger is the producer entry point for audit events.
//
// Audit logging observes authentication and registration flows; it must
// never block or fail the operation it is observing. LogEvent therefore
// fails open: any validation or storage error is logged and counted, and
// the empty string is returned instead of an error.
type Logger struct {
	store *Store
	scope string
}

// NewLogger creates a logger writing to one logical scope of the store.
// An empty scope selects DefaultScope.
func NewLogger(store *Store, scope string) *Logger {
	if scope == "" {
		scope = DefaultScope
	}
	return &Logger{store: store, scope: scope}
}

// LogEvent validates, constructs, and stores one audit event, returning
// its event ID, or the empty string if the event could not be recorded.
func (l *Logger) LogEvent(ctx context.Context, userID string, action ActionType, outcome Outcome, src Source, metadata map[string]any) string {
	event, err := NewEvent(userID, action, outcome, src.IPAddress, src.UserAgent, metadata)
	if err != nil {
		EventsDropped.WithLabelValues("validation").Inc()
		logging.Error().Err(err).
			Str("user_id", userID).
			Str("action_type", string(action)).
			Msg("Invalid audit event")
		return ""
	}

	container, err := l.store.Container(l.scope)
	if err != nil {
		EventsDropped.WithLabelValues("storage").Inc()
		logging.Error().Err(err).Str("scope", l.scope).Msg("Failed to open audit container")
		return ""
	}

	eventID, err := container.AddEvent(ctx, event)
	if err != nil {
		EventsDropped.WithLabelValues("storage").Inc()
		logging.Error().Err(err).
			Str("event_id", event.EventID).
			Str("action_type", string(action)).
			Msg("Failed to store audit event")
		return ""
	}
	return eventID
}

// Typed helpers for the producers in the authentication, registration,
// and policy flows.

// LogRegistrationStart records the start of a passkey registration ceremony.
func (l *Logger) LogRegistrationStart(ctx context.Context, userID string, src Source) string {
	return l.LogEvent(ctx, userID, ActionRegistrationStart, OutcomeSuccess, src, nil)
}

// LogRegistrationSuccess records a completed passkey registration.
func (l *Logger) LogRegistrationSuccess(ctx context.Context, userID, credentialID string, src Source) string {
	return l.LogEvent(ctx, userID, ActionRegistrationSuccess, OutcomeSuccess, src,
		map[string]any{"credential_id": credentialID})
}

// LogRegistrationFailure records a failed passkey registration.
func (l *Logger) LogRegistrationFailure(ctx context.Context, userID, reason string, src Source) string {
	return l.LogEvent(ctx, userID, ActionRegistrationFailure, OutcomeFailure, src,
		map[string]any{"error": reason})
}

// LogAuthenticationStart records the start of a passkey authentication
// ceremony. The username may be empty for discoverable-credential flows.
func (l *Logger) LogAuthenticationStart(ctx context.Context, username string, src Source) string {
	return l.LogEvent(ctx, username, ActionAuthenticationStart, OutcomeSuccess, src, nil)
}

// LogAuthenticationSuccess records a successful passkey authentication.
func (l *Logger) LogAuthenticationSuccess(ctx context.Context, userID, credentialID string, src Source) string {
	return l.LogEvent(ctx, userID, ActionAuthenticationSuccess, OutcomeSuccess, src,
		map[string]any{"credential_id": credentialID})
}

// LogAuthenticationFailure records a failed passkey authentication.
func (l *Logger) LogAuthenticationFailure(ctx context.Context, username, reason string, src Source) string {
	return l.LogEvent(ctx, username, ActionAuthenticationFailure, OutcomeFailure, src,
		map[string]any{"error": reason})
}

// LogCredentialDeleted records deletion of a stored passkey credential.
func (l *Logger) LogCredentialDeleted(ctx context.Context, userID, credentialID string, src Source) string {
	return l.LogEvent(ctx, userID, ActionCredentialDeleted, OutcomeSuccess, src,
		map[string]any{"credential_id": credentialID})
}

// LogCredentialUpdated records an update to a stored passkey credential.
func (l *Logger) LogCredentialUpdated(ctx context.Context, userID, credentialID string, src Source) string {
	return l.LogEvent(ctx, userID, ActionCredentialUpdated, OutcomeSuccess, src,
		map[string]any{"credential_id": credentialID})
}

// LogAAL2TimestampSet records the moment a session reached AAL2.
func (l *Logger) LogAAL2TimestampSet(ctx context.Context, userID, credentialID string, src Source) string {
	return l.LogEvent(ctx, userID, ActionAAL2TimestampSet, OutcomeSuccess, src,
		map[string]any{"credential_id": credentialID})
}

// LogAAL2AccessGranted records a protected-resource access allowed under
// a valid AAL2 session.
func (l *Logger) LogAAL2AccessGranted(ctx context.Context, userID, resource string, src Source) string {
	return l.LogEvent(ctx, userID, ActionAAL2AccessGranted, OutcomeSuccess, src,
		map[string]any{"resource": resource})
}

// LogAAL2AccessDenied records a protected-resource access denied for the
// given reason (expired AAL2 window, no passkey, policy mismatch).
func (l *Logger) LogAAL2AccessDenied(ctx context.Context, userID, resource, reason string, src Source) string {
	return l.LogEvent(ctx, userID, ActionAAL2AccessDenied, OutcomeFailure, src,
		map[string]any{"resource": resource, "reason": reason})
}

// LogAAL2PolicySet records a change to the AAL2 enforcement policy.
func (l *Logger) LogAAL2PolicySet(ctx context.Context, userID string, policy map[string]any, src Source) string {
	return l.LogEvent(ctx, userID, ActionAAL2PolicySet, OutcomeSuccess, src, policy)
}

// LogRoleAssigned records assignment of an AAL2-managed role.
func (l *Logger) LogRoleAssigned(ctx context.Context, userID, targetUser, role string, src Source) string {
	return l.LogEvent(ctx, userID, ActionRoleAssigned, OutcomeSuccess, src,
		map[string]any{"target_user": targetUser, "role": role})
}

// LogRoleRevoked records revocation of an AAL2-managed role.
func (l *Logger) LogRoleRevoked(ctx context.Context, userID, targetUser, role string, src Source) string {
	return l.LogEvent(ctx, userID, ActionRoleRevoked, OutcomeSuccess, src,
		map[string]any{"target_user": targetUser, "role": role})
}
