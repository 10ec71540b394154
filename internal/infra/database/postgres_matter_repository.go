package database

import (
	"context"
	"database/sql"
	"fmt"

	"rate_change_notifier/internal/domain/matter"

	"github.com/lib/pq"
)

// PostgresMatterRepository reads the practice database's matters table.
// That store was populated independently of the tracking store, so client
// ids are coerced to trimmed text at the query level rather than trusting
// the column type.
type PostgresMatterRepository struct {
	db *sql.DB
}

func NewPostgresMatterRepository(db *sql.DB) *PostgresMatterRepository {
	return &PostgresMatterRepository{db: db}
}

func scanMatters(rows *sql.Rows) ([]*matter.Matter, error) {
	matters := make([]*matter.Matter, 0)
	for rows.Next() {
		m := &matter.Matter{}
		var clientName, solicitor sql.NullString
		if err := rows.Scan(&m.ID, &m.DisplayNumber, &m.ClientID, &clientName, &m.Status, &solicitor); err != nil {
			return nil, fmt.Errorf("error scanning matter row: %w", err)
		}
		m.ClientName = clientName.String
		m.ResponsibleSolicitor = solicitor.String
		matters = append(matters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matter rows: %w", err)
	}
	return matters, nil
}

func (r *PostgresMatterRepository) ListOpen(ctx context.Context) ([]*matter.Matter, error) {
	query := `SELECT id::text, display_number, btrim(client_id::text), client_name, status, responsible_solicitor
		FROM matters
		WHERE status = 'Open'
		ORDER BY display_number`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying open matters: %w", err)
	}
	defer rows.Close()
	return scanMatters(rows)
}

func (r *PostgresMatterRepository) ListByClientIDs(ctx context.Context, clientIDs []string) ([]*matter.Matter, error) {
	if len(clientIDs) == 0 {
		return []*matter.Matter{}, nil
	}
	query := `SELECT id::text, display_number, btrim(client_id::text), client_name, status, responsible_solicitor
		FROM matters
		WHERE btrim(client_id::text) = ANY($1)
		ORDER BY display_number`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(clientIDs))
	if err != nil {
		return nil, fmt.Errorf("error querying matters by client ids: %w", err)
	}
	defer rows.Close()
	return scanMatters(rows)
}
