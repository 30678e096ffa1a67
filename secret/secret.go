// Package secret wraps bearer tokens and other values that must never
// reach a log line or a JSON response in clear text, and provides the
// AEAD used to encrypt them at rest keyed from the node's root secret.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrDecrypt is returned when a ciphertext fails to authenticate.
var ErrDecrypt = errors.New("secret: decryption failed")

// Secret is a wrapper around sensitive strings (bearer tokens, BTP
// auth tokens). Its String/MarshalJSON print a placeholder for any
// non-empty value (an empty Secret prints as empty) so that
// accidentally logging or serializing an Account never leaks it.
type Secret struct {
	plaintext string
}

// New wraps a plaintext value.
func New(plaintext string) Secret {
	return Secret{plaintext: plaintext}
}

// Reveal returns the plaintext. Callers must only call this at the
// point of use: comparison during auth, or Authorization header
// construction.
func (s Secret) Reveal() string {
	return s.plaintext
}

// Equal compares the plaintext with other using ordinary string
// equality, which is not constant time; bearer tokens are already
// opaque random values.
func (s Secret) Equal(other string) bool {
	return s.plaintext == other
}

func (s Secret) String() string {
	if s.plaintext == "" {
		return ""
	}
	return "<redacted>"
}

// MarshalJSON never serializes the plaintext.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s.plaintext == "" {
		return []byte(`""`), nil
	}
	return []byte(`"<redacted>"`), nil
}

// UnmarshalJSON accepts a plain JSON string as the token value. This
// is how tokens are loaded from config/admin input; it is never used
// to parse the redacted placeholder back out.
func (s *Secret) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		s.plaintext = ""
		return nil
	}
	s.plaintext = string(b[1 : len(b)-1])
	return nil
}

// AEAD wraps an AES-256-GCM cipher keyed from a root secret via HKDF,
// used by boltstore to encrypt account tokens before they are written.
// boltstore also keeps each incoming token in clear text as its lookup
// index key, and memstore keeps all tokens in clear text.
type AEAD struct {
	gcm cipher.AEAD
}

// NewAEAD derives a 32-byte key from rootSecret using HKDF-SHA256
// with a fixed info string, and builds the AES-256-GCM AEAD from it.
func NewAEAD(rootSecret []byte) (*AEAD, error) {
	kdf := hkdf.New(sha256.New, rootSecret, nil, []byte("ilp_connector_token_encryption_key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEAD{gcm: gcm}, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext||tag as a
// single hex-encoded blob suitable for storing as a string value.
func (a *AEAD) Seal(plaintext string) (string, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := a.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(out), nil
}

// Open reverses Seal.
func (a *AEAD) Open(blob string) (string, error) {
	raw, err := hex.DecodeString(blob)
	if err != nil {
		return "", ErrDecrypt
	}
	ns := a.gcm.NonceSize()
	if len(raw) < ns {
		return "", ErrDecrypt
	}
	nonce, ct := raw[:ns], raw[ns:]
	pt, err := a.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(pt), nil
}
