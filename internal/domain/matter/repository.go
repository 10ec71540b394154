package matter

import "context"

// Repository defines read access to the practice database's matters table.
type Repository interface {
	// ListOpen returns all matters with status Open.
	ListOpen(ctx context.Context) ([]*Matter, error)
	// ListByClientIDs returns all matters (any status) belonging to the
	// given clients. IDs are matched after trim/string coercion.
	ListByClientIDs(ctx context.Context, clientIDs []string) ([]*Matter, error)
}
