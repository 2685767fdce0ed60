package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// IDToken mints a federated ID token the test authority accepts.
func IDToken(t *testing.T, subject, email string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":   FederatedIssuer,
		"aud":   FederatedAudience,
		"sub":   subject,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(FederatedSecret))
	require.NoError(t, err)
	return s
}
