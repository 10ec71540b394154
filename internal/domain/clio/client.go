// Package clio defines the interfaces and outcome types used to mirror the
// rate-change date into the Clio case-management API. This decouples the
// application services from the HTTP transport in internal/infra/clio.
package clio

import (
	"context"
	"fmt"
)

// MatterSyncOutcome is the structured result of one per-matter field write.
// Skipped means the matter does not exist in Clio (404) and is treated as a
// soft success, never a failure.
type MatterSyncOutcome struct {
	Success bool
	Skipped bool
	Error   string
}

// SyncError records one failed matter, keyed by its display number so a
// human can act on it.
type SyncError struct {
	DisplayNumber string `json:"display_number"`
	Message       string `json:"message"`
}

// BatchResult aggregates one synchronization run. It is never persisted;
// it exists only to answer the triggering request or stream.
type BatchResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Skipped int         `json:"skipped"`
	Errors  []SyncError `json:"errors,omitempty"`
}

// AuthError indicates a credential or token-exchange failure. The batch
// orchestrator aborts the whole batch on it.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("clio authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TokenProvider exchanges a stored refresh token for a short-lived access
// token. No retry at this layer; callers decide whether to abort.
type TokenProvider interface {
	AcquireToken(ctx context.Context) (string, error)
}

// FieldUpdater performs the per-matter custom-field writes. Implementations
// must never let a transport error escape as a returned error; every failure
// mode is folded into the outcome.
type FieldUpdater interface {
	// SetRateChangeDate creates or overwrites the rate-change date value on
	// a matter. dateValue is formatted YYYY-MM-DD.
	SetRateChangeDate(ctx context.Context, matterID, displayNumber, dateValue, accessToken string) MatterSyncOutcome
	// ClearRateChangeDate removes the rate-change date value from a matter.
	// A matter with no existing value is a no-op success.
	ClearRateChangeDate(ctx context.Context, matterID, displayNumber, accessToken string) MatterSyncOutcome
}

// Credentials is one operator's OAuth2 triple for the Clio API.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// CredentialStore resolves an operator-initials key to a credential triple.
type CredentialStore interface {
	Lookup(initials string) (Credentials, error)
}
