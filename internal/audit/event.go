// aal2-audit - Persistent multi-index audit event store
// Copyright 2026 CMSCOM
// SPDX-License-Identifier: GPL-2.0-or-later
// https://github.com/cmscom/aal2-audit

package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType classifies what happened in an audit event.
type ActionType string

const (
	// Passkey registration
	ActionRegistrationStart   ActionType = "registration_start"
	ActionRegistrationSuccess ActionType = "registration_success"
	ActionRegistrationFailure ActionType = "registration_failure"

	// Authentication
	ActionAuthenticationStart   ActionType = "authentication_start"
	ActionAuthenticationSuccess ActionType = "authentication_success"
	ActionAuthenticationFailure ActionType = "authentication_failure"

	// Credential management
	ActionCredentialDeleted ActionType = "credential_deleted"
	ActionCredentialUpdated ActionType = "credential_updated"

	// AAL2 operations
	ActionAAL2TimestampSet  ActionType = "aal2_timestamp_set"
	ActionAAL2AccessGranted ActionType = "aal2_access_granted"
	ActionAAL2AccessDenied  ActionType = "aal2_access_denied"
	ActionAAL2PolicySet     ActionType = "aal2_policy_set"

	// Role management
	ActionRoleAssigned ActionType = "aal2_role_assigned"
	ActionRoleRevoked  ActionType = "aal2_role_revoked"
)

// actionTypes is the closed vocabulary of recognized action types.
var actionTypes = map[ActionType]struct{}{
	ActionRegistrationStart:     {},
	ActionRegistrationSuccess:   {},
	ActionRegistrationFailure:   {},
	ActionAuthenticationStart:   {},
	ActionAuthenticationSuccess: {},
	ActionAuthenticationFailure: {},
	ActionCredentialDeleted:     {},
	ActionCredentialUpdated:     {},
	ActionAAL2TimestampSet:      {},
	ActionAAL2AccessGranted:     {},
	ActionAAL2AccessDenied:      {},
	ActionAAL2PolicySet:         {},
	ActionRoleAssigned:          {},
	ActionRoleRevoked:           {},
}

// ActionTypes returns the recognized action type vocabulary.
func ActionTypes() []ActionType {
	types := make([]ActionType, 0, len(actionTypes))
	for t := range actionTypes {
		types = append(types, t)
	}
	return types
}

// ValidActionType reports whether t is in the recognized vocabulary.
func ValidActionType(t ActionType) bool {
	_, ok := actionTypes[t]
	return ok
}

// Outcome is the binary success/failure classification of an event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ValidOutcome reports whether o is success or failure.
func ValidOutcome(o Outcome) bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// Validation errors returned by NewEvent. Use errors.Is to distinguish
// them from storage errors.
var (
	ErrInvalidActionType = errors.New("invalid action type")
	ErrInvalidOutcome    = errors.New("invalid outcome")
)

// IsValidationError reports whether err is an event validation failure
// rather than a storage failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidActionType) || errors.Is(err, ErrInvalidOutcome)
}

// Sentinel defaults applied to absent event fields.
const (
	AnonymousUser    = "anonymous"
	UnknownSource    = "unknown"
	UnknownUserAgent = "unknown"
)

// timestampLayout renders timestamps with microsecond precision and an
// explicit UTC offset, round-trippable via time.Parse(time.RFC3339Nano, s).
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Event is one immutable record of a security-relevant action.
// Construct events with NewEvent; fields never change afterwards.
type Event struct {
	EventID    string         `json:"event_id"`
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"user_id"`
	ActionType ActionType     `json:"action_type"`
	Outcome    Outcome        `json:"outcome"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	Metadata   map[string]any `json:"metadata"`
}

// NewEvent creates a validated audit event with a fresh unique ID and the
// current UTC timestamp. An empty userID becomes "anonymous"; empty
// provenance fields become "unknown". Construction fails with
// ErrInvalidActionType or ErrInvalidOutcome for values outside the
// vocabulary; it never produces a partially-valid event.
func NewEvent(userID string, action ActionType, outcome Outcome, ipAddress, userAgent string, metadata map[string]any) (*Event, error) {
	if !ValidActionType(action) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidActionType, action)
	}
	if !ValidOutcome(outcome) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	if userID == "" {
		userID = AnonymousUser
	}
	if ipAddress == "" {
		ipAddress = UnknownSource
	}
	if userAgent == "" {
		userAgent = UnknownUserAgent
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	return &Event{
		EventID:    uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		UserID:     userID,
		ActionType: action,
		Outcome:    outcome,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Metadata:   metadata,
	}, nil
}

// EventRecord is the plain serializable rendition of an Event, suitable
// for any presentation layer. The timestamp is an RFC 3339 string with
// microsecond precision in UTC.
type EventRecord struct {
	EventID    string         `json:"event_id"`
	Timestamp  string         `json:"timestamp"`
	UserID     string         `json:"user_id"`
	ActionType string         `json:"action_type"`
	Outcome    string         `json:"outcome"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	Metadata   map[string]any `json:"metadata"`
}

// Record converts the event to its plain serializable form.
func (e *Event) Record() EventRecord {
	return EventRecord{
		EventID:    e.EventID,
		Timestamp:  e.Timestamp.UTC().Format(timestampLayout),
		UserID:     e.UserID,
		ActionType: string(e.ActionType),
		Outcome:    string(e.Outcome),
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Metadata:   e.Metadata,
	}
}

func (e *Event) String() string {
	return fmt.Sprintf("<AuditEvent %s %s %s>", e.EventID, e.ActionType, e.Outcome)
}
