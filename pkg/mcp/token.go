package mcp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// GenerateHandshakeSecret creates a cryptographically random 32-byte seed,
// the master secret an MCP server and client derive per-server handshake
// tokens from. Grounded on pkg/coder/claude/mcpserver/server.go's
// generateToken, widened from a single flat random token to an
// HKDF-derivable seed so multiple server connections can each get a
// distinct, non-reusable token without minting independent entropy per
// server.
func GenerateHandshakeSecret() []byte {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return seed
}

// DeriveHandshakeToken derives a 32-byte hex token for serverName from
// secret via HKDF-SHA256, so the same secret yields a stable, distinct
// token per server without storing one token per server.
func DeriveHandshakeToken(secret []byte, serverName string) (string, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte("mcp-handshake:"+serverName))
	out := make([]byte, 32)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", fmt.Errorf("mcp: derive handshake token: %w", err)
	}
	return hex.EncodeToString(out), nil
}
