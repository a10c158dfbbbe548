package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_MintAndParse(t *testing.T) {
	v, err := NewVerifier("secret", "identity")
	require.NoError(t, err)

	token, err := v.Mint(Actor{UserID: "user-1", Role: RoleAdmin}, time.Now(), time.Hour)
	require.NoError(t, err)

	claims, err := v.Parse(token)
	require.NoError(t, err)

	actor := claims.Actor()
	assert.Equal(t, "user-1", actor.UserID)
	assert.True(t, actor.IsAdmin())
}

func TestVerifier_Parse(t *testing.T) {
	v, err := NewVerifier("secret", "identity")
	require.NoError(t, err)
	other, err := NewVerifier("other-secret", "identity")
	require.NoError(t, err)
	wrongIssuer, err := NewVerifier("secret", "someone-else")
	require.NoError(t, err)

	expired, err := v.Mint(Actor{UserID: "user-1"}, time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	foreign, err := other.Mint(Actor{UserID: "user-1"}, time.Now(), time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Mint(Actor{UserID: "user-1"}, time.Now(), time.Hour)
	require.NoError(t, err)
	noUser, err := v.Mint(Actor{}, time.Now(), time.Hour)
	require.NoError(t, err)
	badRole, err := v.Mint(Actor{UserID: "user-1", Role: "root"}, time.Now(), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
		{name: "wrong issuer", token: misissued},
		{name: "missing user", token: noUser},
		{name: "unknown role", token: badRole},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Parse(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestVerifier_RejectsNoneAlgorithm(t *testing.T) {
	v, err := NewVerifier("secret", "")
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Parse(signed)
	assert.Error(t, err)
}

func TestClaims_DefaultRole(t *testing.T) {
	c := &Claims{UserID: "user-1"}
	assert.Equal(t, RoleUser, c.Actor().Role)
	assert.False(t, c.Actor().IsAdmin())
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier("", "identity")
	assert.Error(t, err)
}
