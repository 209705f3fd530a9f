// Package cryptox implements the symmetric envelope exchanged with clients
// and the password hashers used by the credential store.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	// NonceSize is the CBC IV length in bytes.
	NonceSize = aes.BlockSize
	tagSize   = sha256.Size

	macInfo            = "taskauth envelope mac v1"
	deterministicLabel = "taskauth deterministic identifier v1"
)

var errEmptySecret = errors.New("envelope secret is empty")

// Sealed is the wire form of one encrypted payload. Payload carries
// base64(ciphertext || tag), Nonce carries base64(iv).
type Sealed struct {
	Payload string `json:"payload"`
	Nonce   string `json:"nonce"`
}

// Envelope seals and opens opaque payloads with AES-256-CBC (PKCS#7) and an
// HMAC-SHA256 tag over nonce||ciphertext (encrypt-then-MAC).
//
// The encryption key is SHA-256 of the configured secret, so the secret may
// have any length. The MAC key is derived from the same secret with HKDF.
//
// SealDeterministic replaces the random nonce with one derived from the key.
// Equal plaintexts then produce equal ciphertexts, which is what allows an
// equality lookup on an encrypted column. It leaks repeats and must only be
// used for the account identifier.
type Envelope struct {
	block    cipher.Block
	macKey   []byte
	detNonce []byte
}

// NewEnvelope derives the envelope keys from secret.
func NewEnvelope(secret string) (*Envelope, error) {
	if secret == "" {
		return nil, errEmptySecret
	}

	encKey := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, err
	}

	macKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(macInfo)), macKey); err != nil {
		return nil, fmt.Errorf("derive mac key: %w", err)
	}

	h := sha256.New()
	h.Write(encKey[:])
	h.Write([]byte(deterministicLabel))
	detNonce := h.Sum(nil)[:NonceSize]

	return &Envelope{block: block, macKey: macKey, detNonce: detNonce}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (e *Envelope) Seal(plaintext []byte) (Sealed, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, err
	}
	return Sealed{
		Payload: base64.StdEncoding.EncodeToString(e.seal(nonce, plaintext)),
		Nonce:   base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Open reverses Seal. Every failure (bad encoding, wrong sizes, tag mismatch,
// bad padding) is reported as common.ErrDecryptionFailed.
func (e *Envelope) Open(s Sealed) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce encoding", common.ErrDecryptionFailed)
	}
	data, err := base64.StdEncoding.DecodeString(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", common.ErrDecryptionFailed)
	}
	return e.open(nonce, data)
}

// SealJSON marshals v and seals the result.
func (e *Envelope) SealJSON(v any) (Sealed, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Sealed{}, err
	}
	return e.Seal(b)
}

// OpenJSON opens s and unmarshals the plaintext into v. A payload that
// decrypts but is not valid JSON yields common.ErrMalformedRequest.
func (e *Envelope) OpenJSON(s Sealed, v any) error {
	plaintext, err := e.Open(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedRequest, err)
	}
	return nil
}

// SealDeterministic encrypts plaintext under the key-derived nonce and
// returns the base64 payload. The result is a pure function of key and
// plaintext.
func (e *Envelope) SealDeterministic(plaintext []byte) string {
	return base64.StdEncoding.EncodeToString(e.seal(e.detNonce, plaintext))
}

// OpenDeterministic reverses SealDeterministic.
func (e *Envelope) OpenDeterministic(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", common.ErrDecryptionFailed)
	}
	return e.open(e.detNonce, data)
}

func (e *Envelope) seal(nonce, plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded), len(padded)+tagSize)
	cipher.NewCBCEncrypter(e.block, nonce).CryptBlocks(ciphertext, padded)
	return append(ciphertext, e.tag(nonce, ciphertext)...)
}

func (e *Envelope) open(nonce, data []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce size", common.ErrDecryptionFailed)
	}
	if len(data) < aes.BlockSize+tagSize || (len(data)-tagSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext size", common.ErrDecryptionFailed)
	}

	ciphertext, tag := data[:len(data)-tagSize], data[len(data)-tagSize:]
	if !hmac.Equal(tag, e.tag(nonce, ciphertext)) {
		return nil, fmt.Errorf("%w: authentication tag", common.ErrDecryptionFailed)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(e.block, nonce).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return unpadded, nil
}

func (e *Envelope) tag(nonce, ciphertext []byte) []byte {
	m := hmac.New(sha256.New, e.macKey)
	m.Write(nonce)
	m.Write(ciphertext)
	return m.Sum(nil)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
