package ssotoken

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	keySize = 32
	ivSize  = aes.BlockSize

	partSeparator  = ";"
	fieldSeparator = "|"
	fieldCount     = 3
)

var (
	// ErrDecrypt indica token que não pôde ser decifrado (base64, tamanho, padding ou bytes).
	ErrDecrypt = errors.New("ssotoken: falha ao decifrar token")
	// ErrStructure indica token decifrado com formato inesperado.
	ErrStructure = errors.New("ssotoken: estrutura de token inválida")
)

// Payload é a identidade carregada pelo token emitido pelo Hub.
type Payload struct {
	OpaqueID string
	UserID   string
	Email    string
}

// Decrypt abre o token do Hub e devolve a identidade contida nele.
//
// Formato: base64url("<ciphertext_b64>;<iv>"), AES-256-CBC com PKCS#7 sobre
// "<opaque_id>|<user_id>|<email>". Qualquer desvio devolve ErrDecrypt ou ErrStructure,
// nunca um Payload parcial.
func Decrypt(token, key string) (Payload, error) {
	outer, err := decodeBase64(token)
	if err != nil {
		return Payload{}, ErrDecrypt
	}

	parts := strings.SplitN(string(outer), partSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Payload{}, ErrStructure
	}

	ciphertext, err := decodeBase64(parts[0])
	if err != nil {
		return Payload{}, ErrDecrypt
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return Payload{}, ErrDecrypt
	}

	block, err := aes.NewCipher(fitBytes(key, keySize))
	if err != nil {
		return Payload{}, ErrDecrypt
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, fitBytes(parts[1], ivSize)).CryptBlocks(plain, ciphertext)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return Payload{}, ErrDecrypt
	}
	if !utf8.Valid(plain) {
		return Payload{}, ErrDecrypt
	}

	fields := strings.Split(string(plain), fieldSeparator)
	if len(fields) != fieldCount {
		return Payload{}, ErrStructure
	}

	payload := Payload{
		OpaqueID: strings.TrimSpace(fields[0]),
		UserID:   strings.TrimSpace(fields[1]),
		Email:    strings.TrimSpace(fields[2]),
	}
	if payload.Email == "" {
		return Payload{}, ErrStructure
	}

	return payload, nil
}

// Encrypt gera um token no mesmo formato que o Hub emite.
func Encrypt(p Payload, key, iv string) (string, error) {
	for _, field := range []string{p.OpaqueID, p.UserID, p.Email} {
		if strings.Contains(field, fieldSeparator) {
			return "", ErrStructure
		}
	}
	if iv == "" || strings.Contains(iv, partSeparator) {
		return "", errors.New("ssotoken: iv inválido")
	}

	block, err := aes.NewCipher(fitBytes(key, keySize))
	if err != nil {
		return "", err
	}

	plain := pkcs7Pad([]byte(p.OpaqueID + fieldSeparator + p.UserID + fieldSeparator + p.Email))
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, fitBytes(iv, ivSize)).CryptBlocks(ciphertext, plain)

	inner := base64.StdEncoding.EncodeToString(ciphertext) + partSeparator + iv
	return base64.RawURLEncoding.EncodeToString([]byte(inner)), nil
}

// fitBytes completa com zeros ou trunca s para n bytes. Não é uma KDF: o Hub usa a chave e o
// IV crus dessa forma e a interoperabilidade depende disso.
func fitBytes(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

// decodeBase64 aceita base64 padrão ou url-safe, com ou sem padding.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("-", "+", "_", "/", " ", "+").Replace(s)
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrDecrypt
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func pkcs7Pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrDecrypt
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrDecrypt
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrDecrypt
		}
	}
	return b[:len(b)-n], nil
}
