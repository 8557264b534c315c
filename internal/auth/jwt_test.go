package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	p := models.Principal{ID: uuid.New(), Role: models.RoleCityCoordinator, Email: "yossi@example.org"}

	tok, err := GenerateToken(p, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, "s3cret")
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.PrincipalID)
	require.Equal(t, models.RoleCityCoordinator, claims.Role)
	require.Equal(t, "yossi@example.org", claims.Email)
}

func TestParseTokenRejects(t *testing.T) {
	t.Parallel()
	p := models.Principal{ID: uuid.New(), Role: models.RoleAreaManager}

	good, err := GenerateToken(p, "s3cret", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(p, "s3cret", -time.Minute)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{PrincipalID: p.ID}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		token, secret string
	}{
		"wrong secret": {good, "other"},
		"expired":      {expired, "s3cret"},
		"alg none":     {unsigned, "s3cret"},
		"garbage":      {"not.a.token", "s3cret"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tc.token, tc.secret)
			require.Error(t, err)
		})
	}
}
