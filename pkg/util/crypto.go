package util

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// DeriveKey stretches secret with PBKDF2-SHA256 and returns keyLen bytes.
// DeriveKey 使用 PBKDF2-SHA256 派生密钥
func DeriveKey(secret, salt string, iterations, keyLen int) []byte {
	return pbkdf2.Key([]byte(secret), []byte(salt), iterations, keyLen, sha256.New)
}

// DeriveKeyString is DeriveKey encoded as unpadded base64url.
func DeriveKeyString(secret, salt string, iterations, keyLen int) string {
	return base64.RawURLEncoding.EncodeToString(DeriveKey(secret, salt, iterations, keyLen))
}

const sealedPrefix = "enc:v1:"

// Sealer encrypts short strings (stored credentials) with XChaCha20-Poly1305.
// Sealer 使用 XChaCha20-Poly1305 加密存储的凭据
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 32-byte key from secret
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("sealer: empty secret")
	}
	aead, err := chacha20poly1305.NewX(DeriveKey(secret, "library-backup/params", 100000, chacha20poly1305.KeySize))
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns "enc:v1:" + base64(nonce|ciphertext)
func (s *Sealer) Seal(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
// Open 解密；没有前缀的值原样返回
func (s *Sealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", err
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("sealer: ciphertext too short")
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// RandomToken returns n random bytes as unpadded base64url
// RandomToken 生成随机令牌
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
