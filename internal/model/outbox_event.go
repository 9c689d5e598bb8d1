package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Target names an external system that owns its own outbox table.
type Target string

const (
	TargetHubSpot Target = "hubspot"
	TargetLoops   Target = "loops"
)

// Targets lists every known target in a stable order.
var Targets = []Target{TargetHubSpot, TargetLoops}

func (t Target) String() string { return string(t) }

func (t Target) Valid() bool {
	return t == TargetHubSpot || t == TargetLoops
}

// ParseTarget normalizes input; returns (value, true) if known.
func ParseTarget(s string) (Target, bool) {
	t := Target(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// OutboxTable is the per-target outbox table name. Only valid targets map to
// a table, so the result is safe to interpolate into SQL.
func (t Target) OutboxTable() string {
	switch t {
	case TargetHubSpot:
		return "hubspot_outbox"
	case TargetLoops:
		return "loops_outbox"
	default:
		return ""
	}
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDone       OutboxStatus = "done"
	OutboxDead       OutboxStatus = "dead"
)

// OutboxStatuses lists all statuses, used for zero-filled reports.
var OutboxStatuses = []OutboxStatus{OutboxPending, OutboxProcessing, OutboxDone, OutboxDead}

func (s OutboxStatus) String() string { return string(s) }

func (s OutboxStatus) Valid() bool {
	return s == OutboxPending || s == OutboxProcessing || s == OutboxDone || s == OutboxDead
}

// Terminal reports whether no further automatic transition leaves s.
func (s OutboxStatus) Terminal() bool {
	return s == OutboxDone || s == OutboxDead
}

type EventType string

const (
	EventNominationSubmitted EventType = "nomination_submitted"
	EventNominationApproved  EventType = "nomination_approved"
	EventVoteCast            EventType = "vote_cast"
	EventNominatorLiveUpdate EventType = "nominator_live_update"
)

func (e EventType) String() string { return string(e) }

func (e EventType) Valid() bool {
	switch e {
	case EventNominationSubmitted, EventNominationApproved, EventVoteCast, EventNominatorLiveUpdate:
		return true
	default:
		return false
	}
}

// OutboxEvent is one row of a target's outbox table.
type OutboxEvent struct {
	ID           string          `db:"id"           json:"id"`
	EventType    EventType       `db:"event_type"   json:"event_type"`
	Payload      json.RawMessage `db:"payload"      json:"payload"`
	Status       OutboxStatus    `db:"status"       json:"status"`
	AttemptCount int             `db:"attempt_count" json:"attempt_count"`
	LastError    string          `db:"last_error"   json:"last_error"`
	CreatedAt    time.Time       `db:"created_at"   json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"   json:"updated_at"`
}

// Decode returns the typed payload carried by the row.
func (e OutboxEvent) Decode() (Payload, error) {
	return DecodePayload(e.EventType, e.Payload)
}
