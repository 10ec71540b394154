package ratechange

import (
	"context"
	"time"
)

// SentParams carries everything markSent writes. Contact fields are
// pointers: a nil value preserves whatever the existing row holds.
type SentParams struct {
	Year           int
	ClientID       string
	FirstName      *string
	LastName       *string
	Email          *string
	MatterIDs      []string
	DisplayNumbers []string
	SentBy         string
	SentDate       time.Time
}

// NotApplicableParams carries everything markNotApplicable writes.
type NotApplicableParams struct {
	Year           int
	ClientID       string
	FirstName      *string
	LastName       *string
	Email          *string
	MatterIDs      []string
	DisplayNumbers []string
	Reason         string
	Notes          *string
	MarkedBy       string
}

// Repository defines the state transitions for rate-change notification
// records. All writes are upserts keyed on (year, client_id); the record
// transition is authoritative and is never rolled back by CRM sync failures.
type Repository interface {
	// UpsertSent sets status=sent, populates sent_date/sent_by and clears
	// the not-applicable fields.
	UpsertSent(ctx context.Context, p SentParams) (*Record, error)
	// UpsertNotApplicable sets status=not_applicable, populates
	// na_reason/na_notes and clears sent_date.
	UpsertNotApplicable(ctx context.Context, p NotApplicableParams) (*Record, error)
	// MarkEscalated records escalation independently of status. Creates a
	// pending record if none exists yet.
	MarkEscalated(ctx context.Context, year int, clientID, escalatedBy string) (*Record, error)
	// Delete hard-deletes the record, reverting the client to implicit
	// pending. Returns ErrRecordNotFound if no record exists.
	Delete(ctx context.Context, year int, clientID string) error

	Get(ctx context.Context, year int, clientID string) (*Record, error)
	ListByYear(ctx context.Context, year int) ([]*Record, error)
}
