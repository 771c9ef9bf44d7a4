package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)

	tests := []struct {
		name  string
		hash  string
		plain string
		want  bool
	}{
		{"match", hash, "secret", true},
		{"wrong password", hash, "Secret", false},
		{"empty password", hash, "", false},
		{"empty hash", "", "secret", false},
		{"garbage hash", "not-a-hash", "secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPassword(tt.hash, tt.plain))
		})
	}
}

func TestHashPasswordIsSalted(t *testing.T) {
	a, err := HashPassword("123456", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPassword("123456", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
