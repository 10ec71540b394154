package ratechange

import (
	"database/sql"
	"time"
)

// Status is the notification state of a client for a rate-change year.
// The absence of a record is equivalent to StatusPending.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSent          Status = "sent"
	StatusNotApplicable Status = "not_applicable"
)

// Record tracks a client's rate-change notification for one year.
// Corresponds to the 'rate_change_notifications' table; exactly one row
// exists per (rate_change_year, client_id).
type Record struct {
	ID              int64
	ClientID        string
	RateChangeYear  int
	EffectiveDate   time.Time // year-01-01 convention
	ClientFirstName sql.NullString
	ClientLastName  sql.NullString
	ClientEmail     sql.NullString
	MatterIDs       []string
	DisplayNumbers  []string
	Status          Status
	SentDate        sql.NullTime   // set only while status = sent
	SentBy          sql.NullString // operator who performed the last action
	NAReason        sql.NullString // set only while status = not_applicable
	NANotes         sql.NullString
	EscalatedAt     sql.NullTime // side channel, independent of Status
	EscalatedBy     sql.NullString
	UpdatedAt       time.Time
}
