package stream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrDecrypt          = errors.New("stream: decryption failed")
	ErrCiphertextTooShort = errors.New("stream: ciphertext shorter than nonce")
)

// DeriveSharedSecret derives a per-connection shared secret from the
// node's root secret and the address tag a STREAM client was handed
// at setup. The tag is the random suffix of the server's advertised
// destination account.
func DeriveSharedSecret(rootSecret []byte, tag string) []byte {
	kdf := hkdf.New(sha256.New, rootSecret, nil, []byte("ilp_stream_shared_secret:"+tag))
	secret := make([]byte, 32)
	// hkdf.New never errors on Read for a valid hash; any failure here
	// indicates a broken Reader implementation, not caller input.
	if _, err := io.ReadFull(kdf, secret); err != nil {
		panic(err)
	}
	return secret
}

func deriveKey(sharedSecret []byte, info string) []byte {
	mac := hmac.New(sha256.New, sharedSecret)
	mac.Write([]byte(info))
	return mac.Sum(nil)
}

func encryptionKey(sharedSecret []byte) []byte {
	return deriveKey(sharedSecret, "ilp_stream_encryption")
}

func fulfillmentKey(sharedSecret []byte) []byte {
	return deriveKey(sharedSecret, "ilp_stream_fulfillment")
}

// Encrypt seals plaintext under a key derived from sharedSecret,
// returning nonce||ciphertext||tag.
func Encrypt(sharedSecret, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(encryptionKey(sharedSecret))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func Decrypt(sharedSecret, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(encryptionKey(sharedSecret))
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ct := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveFulfillment deterministically derives the fulfillment for an
// encrypted STREAM Prepare so the sender can verify the response
// without a round trip to the receiver's key material:
// fulfillment = HMAC-SHA256(fulfillmentKey, ciphertext).
func DeriveFulfillment(sharedSecret, ciphertext []byte) [32]byte {
	mac := hmac.New(sha256.New, fulfillmentKey(sharedSecret))
	mac.Write(ciphertext)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
