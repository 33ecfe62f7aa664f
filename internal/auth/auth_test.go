package auth

import (
	"testing"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	hashed, err := HashPassword("gizli-parola")
	require.NoError(t, err)
	require.NotEqual(t, "gizli-parola", hashed)

	require.True(t, CheckPassword("gizli-parola", hashed))
	require.False(t, CheckPassword("yanlis", hashed))
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("test-secret", "HS256", time.Hour)

	token, err := issuer.Issue(42, amr.RoleReviewer)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.UserID)
	require.Equal(t, amr.RoleReviewer, claims.Role)
}

func TestTokenRejections(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer("test-secret", "HS256", time.Hour)

	_, err := issuer.Parse("not-a-token")
	require.True(t, amr.IsCode(err, amr.CodeAuthInvalid))

	// Tokens signed with a different secret are rejected.
	other := NewTokenIssuer("other-secret", "HS256", time.Hour)
	token, err := other.Issue(1, amr.RoleAdmin)
	require.NoError(t, err)
	_, err = issuer.Parse(token)
	require.True(t, amr.IsCode(err, amr.CodeAuthInvalid))

	// Expired tokens are rejected.
	expired := NewTokenIssuer("test-secret", "HS256", -time.Minute)
	token, err = expired.Issue(1, amr.RoleAdmin)
	require.NoError(t, err)
	_, err = issuer.Parse(token)
	require.True(t, amr.IsCode(err, amr.CodeAuthInvalid))
}
