// Package secrets resolves per-operator Clio credential triples. Each
// operator's credentials live under env keys derived from their initials:
// CLIO_<INITIALS>_CLIENT_ID, CLIO_<INITIALS>_CLIENT_SECRET and
// CLIO_<INITIALS>_REFRESH_TOKEN.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"rate_change_notifier/internal/domain/clio"
)

type EnvStore struct{}

func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

func (s *EnvStore) Lookup(initials string) (clio.Credentials, error) {
	key := strings.ToUpper(strings.TrimSpace(initials))
	if key == "" {
		return clio.Credentials{}, fmt.Errorf("credential selector is empty")
	}

	creds := clio.Credentials{
		ClientID:     os.Getenv(fmt.Sprintf("CLIO_%s_CLIENT_ID", key)),
		ClientSecret: os.Getenv(fmt.Sprintf("CLIO_%s_CLIENT_SECRET", key)),
		RefreshToken: os.Getenv(fmt.Sprintf("CLIO_%s_REFRESH_TOKEN", key)),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return clio.Credentials{}, fmt.Errorf("incomplete clio credentials for operator %q", key)
	}
	return creds, nil
}
