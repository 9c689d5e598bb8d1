package model

import "time"

// SyncAttempt is one delivery attempt recorded to the analytics store.
type SyncAttempt struct {
	EventID    string    `db:"event_id"    json:"event_id"`
	Target     string    `db:"target"      json:"target"`
	EventType  string    `db:"event_type"  json:"event_type"`
	Attempt    uint16    `db:"attempt"     json:"attempt"`
	Outcome    string    `db:"outcome"     json:"outcome"` // ok | retry | dead | skipped
	Status     string    `db:"status"      json:"status"`  // outbox status after the attempt
	Error      string    `db:"error"       json:"error,omitempty"`
	DurationMs uint32    `db:"duration_ms" json:"duration_ms"`
	At         time.Time `db:"at"          json:"at"`
}

const (
	AttemptOK      = "ok"
	AttemptRetry   = "retry"
	AttemptDead    = "dead"
	AttemptSkipped = "skipped"
)
