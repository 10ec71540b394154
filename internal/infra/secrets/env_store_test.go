package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Setenv("CLIO_JD_CLIENT_ID", "id-1")
	t.Setenv("CLIO_JD_CLIENT_SECRET", "secret-1")
	t.Setenv("CLIO_JD_REFRESH_TOKEN", "refresh-1")

	creds, err := NewEnvStore().Lookup("jd")
	require.NoError(t, err)
	assert.Equal(t, "id-1", creds.ClientID)
	assert.Equal(t, "secret-1", creds.ClientSecret)
	assert.Equal(t, "refresh-1", creds.RefreshToken)
}

func TestLookupNormalizesInitials(t *testing.T) {
	t.Setenv("CLIO_AB_CLIENT_ID", "id")
	t.Setenv("CLIO_AB_CLIENT_SECRET", "secret")
	t.Setenv("CLIO_AB_REFRESH_TOKEN", "refresh")

	_, err := NewEnvStore().Lookup("  ab ")
	assert.NoError(t, err)
}

func TestLookupIncompleteTriple(t *testing.T) {
	t.Setenv("CLIO_XY_CLIENT_ID", "id")
	t.Setenv("CLIO_XY_CLIENT_SECRET", "secret")

	_, err := NewEnvStore().Lookup("xy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete clio credentials")
}

func TestLookupEmptySelector(t *testing.T) {
	_, err := NewEnvStore().Lookup("  ")
	assert.Error(t, err)
}
