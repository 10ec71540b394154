package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rate_change_notifier/internal/domain/ratechange"

	"github.com/lib/pq" // For pq.Array and driver registration
)

// Custom errors specific to the rate-change notification repository
var ErrRecordNotFound = fmt.Errorf("rate change notification record not found")

const recordColumns = `id, client_id, rate_change_year, effective_date,
	client_first_name, client_last_name, client_email,
	matter_ids, display_numbers, status, sent_date, sent_by,
	na_reason, na_notes, escalated_at, escalated_by, updated_at`

type PostgresRateChangeRepository struct {
	db *sql.DB
}

func NewPostgresRateChangeRepository(db *sql.DB) *PostgresRateChangeRepository {
	return &PostgresRateChangeRepository{db: db}
}

// effectiveDate is the year-01-01 convention used for every record.
func effectiveDate(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanRecord(row *sql.Row) (*ratechange.Record, error) {
	rec := &ratechange.Record{}
	err := row.Scan(
		&rec.ID, &rec.ClientID, &rec.RateChangeYear, &rec.EffectiveDate,
		&rec.ClientFirstName, &rec.ClientLastName, &rec.ClientEmail,
		pq.Array(&rec.MatterIDs), pq.Array(&rec.DisplayNumbers),
		&rec.Status, &rec.SentDate, &rec.SentBy,
		&rec.NAReason, &rec.NANotes, &rec.EscalatedAt, &rec.EscalatedBy,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertSent transitions the (year, client) record to sent. Contact
// snapshot fields use a COALESCE merge: a NULL input preserves the stored
// value. The not-applicable fields are cleared unconditionally.
func (r *PostgresRateChangeRepository) UpsertSent(ctx context.Context, p ratechange.SentParams) (*ratechange.Record, error) {
	query := `INSERT INTO rate_change_notifications
		(client_id, rate_change_year, effective_date,
		 client_first_name, client_last_name, client_email,
		 matter_ids, display_numbers, status, sent_date, sent_by,
		 na_reason, na_notes, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'sent', $9, $10, NULL, NULL, NOW())
	ON CONFLICT (rate_change_year, client_id) DO UPDATE SET
		effective_date    = EXCLUDED.effective_date,
		client_first_name = COALESCE(EXCLUDED.client_first_name, rate_change_notifications.client_first_name),
		client_last_name  = COALESCE(EXCLUDED.client_last_name, rate_change_notifications.client_last_name),
		client_email      = COALESCE(EXCLUDED.client_email, rate_change_notifications.client_email),
		matter_ids        = EXCLUDED.matter_ids,
		display_numbers   = EXCLUDED.display_numbers,
		status            = 'sent',
		sent_date         = EXCLUDED.sent_date,
		sent_by           = EXCLUDED.sent_by,
		na_reason         = NULL,
		na_notes          = NULL,
		updated_at        = NOW()
	RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query,
		p.ClientID, p.Year, effectiveDate(p.Year),
		nullString(p.FirstName), nullString(p.LastName), nullString(p.Email),
		pq.Array(p.MatterIDs), pq.Array(p.DisplayNumbers),
		p.SentDate, p.SentBy,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("error upserting sent record: %w", err)
	}
	return rec, nil
}

// UpsertNotApplicable transitions the (year, client) record to
// not_applicable, clearing sent_date. Same COALESCE merge for the contact
// snapshot as UpsertSent.
func (r *PostgresRateChangeRepository) UpsertNotApplicable(ctx context.Context, p ratechange.NotApplicableParams) (*ratechange.Record, error) {
	query := `INSERT INTO rate_change_notifications
		(client_id, rate_change_year, effective_date,
		 client_first_name, client_last_name, client_email,
		 matter_ids, display_numbers, status, sent_date, sent_by,
		 na_reason, na_notes, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'not_applicable', NULL, $9, $10, $11, NOW())
	ON CONFLICT (rate_change_year, client_id) DO UPDATE SET
		effective_date    = EXCLUDED.effective_date,
		client_first_name = COALESCE(EXCLUDED.client_first_name, rate_change_notifications.client_first_name),
		client_last_name  = COALESCE(EXCLUDED.client_last_name, rate_change_notifications.client_last_name),
		client_email      = COALESCE(EXCLUDED.client_email, rate_change_notifications.client_email),
		matter_ids        = EXCLUDED.matter_ids,
		display_numbers   = EXCLUDED.display_numbers,
		status            = 'not_applicable',
		sent_date         = NULL,
		sent_by           = EXCLUDED.sent_by,
		na_reason         = EXCLUDED.na_reason,
		na_notes          = EXCLUDED.na_notes,
		updated_at        = NOW()
	RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query,
		p.ClientID, p.Year, effectiveDate(p.Year),
		nullString(p.FirstName), nullString(p.LastName), nullString(p.Email),
		pq.Array(p.MatterIDs), pq.Array(p.DisplayNumbers),
		p.MarkedBy, p.Reason, nullString(p.Notes),
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("error upserting not-applicable record: %w", err)
	}
	return rec, nil
}

// MarkEscalated touches only the escalation side channel. A client with no
// record yet gets one created with status pending.
func (r *PostgresRateChangeRepository) MarkEscalated(ctx context.Context, year int, clientID, escalatedBy string) (*ratechange.Record, error) {
	query := `INSERT INTO rate_change_notifications
		(client_id, rate_change_year, effective_date,
		 matter_ids, display_numbers, status, escalated_at, escalated_by, updated_at)
	VALUES ($1, $2, $3, '{}', '{}', 'pending', NOW(), $4, NOW())
	ON CONFLICT (rate_change_year, client_id) DO UPDATE SET
		escalated_at = NOW(),
		escalated_by = EXCLUDED.escalated_by,
		updated_at   = NOW()
	RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query, clientID, year, effectiveDate(year), escalatedBy)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("error marking record escalated: %w", err)
	}
	return rec, nil
}

// Delete hard-deletes the record, including any escalation history.
func (r *PostgresRateChangeRepository) Delete(ctx context.Context, year int, clientID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_change_notifications WHERE rate_change_year = $1 AND client_id = $2`,
		year, clientID)
	if err != nil {
		return fmt.Errorf("error deleting rate change record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *PostgresRateChangeRepository) Get(ctx context.Context, year int, clientID string) (*ratechange.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM rate_change_notifications
		WHERE rate_change_year = $1 AND client_id = $2`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, year, clientID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting rate change record: %w", err)
	}
	return rec, nil
}

func (r *PostgresRateChangeRepository) ListByYear(ctx context.Context, year int) ([]*ratechange.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM rate_change_notifications
		WHERE rate_change_year = $1 ORDER BY client_id`
	rows, err := r.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("error querying rate change records by year: %w", err)
	}
	defer rows.Close()

	records := make([]*ratechange.Record, 0)
	for rows.Next() {
		rec := &ratechange.Record{}
		if err := rows.Scan(
			&rec.ID, &rec.ClientID, &rec.RateChangeYear, &rec.EffectiveDate,
			&rec.ClientFirstName, &rec.ClientLastName, &rec.ClientEmail,
			pq.Array(&rec.MatterIDs), pq.Array(&rec.DisplayNumbers),
			&rec.Status, &rec.SentDate, &rec.SentBy,
			&rec.NAReason, &rec.NANotes, &rec.EscalatedAt, &rec.EscalatedBy,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning rate change record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate change record rows: %w", err)
	}
	return records, nil
}
