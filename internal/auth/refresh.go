package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateRefreshToken cria token aleatório seguro e seu hash persistível.
func GenerateRefreshToken() (raw string, hashed string, err error) {
	raw, err = RandomSecret(32)
	if err != nil {
		return "", "", err
	}
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken produz hash SHA-256 base64.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RefreshRedisKey monta chave única para guardar estado do refresh.
func RefreshRedisKey(audience, hash string) string {
	return fmt.Sprintf("refresh:%s:%s", audience, hash)
}

// SessionRedisKey monta a chave da sessão por cookie; o id cru nunca é gravado.
func SessionRedisKey(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return "session:" + hex.EncodeToString(sum[:])
}
