package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	now := time.Now()
	sub := SessionSubject{UserID: 42, Name: "Tanaka", Email: "tanaka@example.com", Roles: []string{"User", "Approver"}}

	tok, err := NewSessionToken("s3cret", sub, 8*time.Hour, "", now)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)
	assert.WithinDuration(t, now.Add(8*time.Hour), tok.Exp, time.Second)

	claims, err := ParseSessionToken("s3cret", tok.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "Tanaka", claims.Name)
	assert.Equal(t, "tanaka@example.com", claims.Email)
	assert.Equal(t, []string{"User", "Approver"}, claims.Roles)
	assert.Equal(t, tok.ID, claims.ID)
}

func TestSessionTokenKeepsGivenID(t *testing.T) {
	tok, err := NewSessionToken("s3cret", SessionSubject{UserID: 1}, time.Hour, "fixed-id", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", tok.ID)
}

func TestParseSessionTokenRejects(t *testing.T) {
	valid, err := NewSessionToken("s3cret", SessionSubject{UserID: 1}, time.Hour, "", time.Now())
	require.NoError(t, err)
	expired, err := NewSessionToken("s3cret", SessionSubject{UserID: 1}, time.Hour, "", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "jti": "x"})
	noneRaw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		raw    string
	}{
		{"wrong secret", "other", valid.Token},
		{"expired", "s3cret", expired.Token},
		{"alg none", "s3cret", noneRaw},
		{"garbage", "s3cret", "abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSessionToken(tt.secret, tt.raw)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}
