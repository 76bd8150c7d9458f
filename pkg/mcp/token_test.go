package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveHandshakeTokenIsStablePerServer(t *testing.T) {
	secret := GenerateHandshakeSecret()

	tok1, err := DeriveHandshakeToken(secret, "filesystem")
	require.NoError(t, err)
	tok2, err := DeriveHandshakeToken(secret, "filesystem")
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2, "the same secret and server name must always derive the same token")
}

func TestDeriveHandshakeTokenDiffersPerServer(t *testing.T) {
	secret := GenerateHandshakeSecret()

	tokA, err := DeriveHandshakeToken(secret, "filesystem")
	require.NoError(t, err)
	tokB, err := DeriveHandshakeToken(secret, "browser")
	require.NoError(t, err)
	assert.NotEqual(t, tokA, tokB)
}

func TestGenerateHandshakeSecretIsRandomAndSized(t *testing.T) {
	a := GenerateHandshakeSecret()
	b := GenerateHandshakeSecret()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
