// Package crypto seals customer data stored at rest.
//
// Sealed values are "v1." followed by base64url(nonce || AES-256-GCM output).
// Every value is bound to a purpose string passed as associated data, so a
// ciphertext copied into a different column fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PurposeAddress labels delivery addresses on user records.
const PurposeAddress = "user.address"

const sealPrefix = "v1."

var (
	ErrMissingKey  = errors.New("encryption key is required")
	ErrInvalidKey  = errors.New("encryption key must be 32 bytes for AES-256")
	ErrMalformed   = errors.New("sealed value is malformed")
	ErrUnsupported = errors.New("sealed value uses an unsupported format version")
)

type Encryptor interface {
	Seal(purpose string, plaintext []byte) (string, error)
	Open(purpose, sealed string) ([]byte, error)
}

type gcmSealer struct {
	aead cipher.AEAD
}

func NewEncryptor(key string) (Encryptor, error) {
	switch {
	case key == "":
		return nil, ErrMissingKey
	case len(key) != 32:
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &gcmSealer{aead: aead}, nil
}

func (g *gcmSealer) Seal(purpose string, plaintext []byte) (string, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := g.aead.Seal(nonce, nonce, plaintext, []byte(purpose))
	return sealPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (g *gcmSealer) Open(purpose, sealed string) ([]byte, error) {
	body, ok := strings.CutPrefix(sealed, sealPrefix)
	if !ok {
		return nil, ErrUnsupported
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := g.aead.NonceSize()
	if len(raw) < n+g.aead.Overhead() {
		return nil, ErrMalformed
	}
	plaintext, err := g.aead.Open(nil, raw[:n], raw[n:], []byte(purpose))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", purpose, err)
	}
	return plaintext, nil
}

// SealJSON encodes v as JSON and seals it for purpose.
func SealJSON(e Encryptor, purpose string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", purpose, err)
	}
	return e.Seal(purpose, payload)
}

// OpenJSON reverses SealJSON. An empty value leaves v untouched.
func OpenJSON(e Encryptor, purpose, sealed string, v any) error {
	if sealed == "" {
		return nil
	}
	plaintext, err := e.Open(purpose, sealed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("decode %s: %w", purpose, err)
	}
	return nil
}
