package cryptox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnvelope(t *testing.T, secret string) *Envelope {
	t.Helper()
	e, err := NewEnvelope(secret)
	require.NoError(t, err)
	return e
}

func TestNewEnvelope_EmptySecret(t *testing.T) {
	_, err := NewEnvelope("")
	require.Error(t, err)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	e := newTestEnvelope(t, "envelope-secret")

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hi")},
		{"one block", bytes.Repeat([]byte("a"), 16)},
		{"two blocks", bytes.Repeat([]byte("b"), 32)},
		{"json", []byte(`{"username":"alice","password":"s3cret"}`)},
		{"unicode", []byte("contraseña ✓")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := e.Seal(tt.plaintext)
			require.NoError(t, err)

			got, err := e.Open(sealed)
			require.NoError(t, err)
			if !bytes.Equal(got, tt.plaintext) {
				t.Fatalf("round trip mismatch: got %q want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEnvelope_Seal_FreshNonce(t *testing.T) {
	e := newTestEnvelope(t, "envelope-secret")

	a, err := e.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := e.Seal([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Payload, b.Payload)
}

func TestEnvelope_Open_Failures(t *testing.T) {
	e := newTestEnvelope(t, "envelope-secret")
	other := newTestEnvelope(t, "another-secret")

	sealed, err := e.Seal([]byte("attack at dawn"))
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed.Payload)

	flipped := bytes.Clone(raw)
	flipped[0] ^= 0x01

	flippedTag := bytes.Clone(raw)
	flippedTag[len(flippedTag)-1] ^= 0x80

	rawNonce, _ := base64.StdEncoding.DecodeString(sealed.Nonce)
	flippedNonce := bytes.Clone(rawNonce)
	flippedNonce[3] ^= 0x10

	tests := []struct {
		name   string
		env    *Envelope
		sealed Sealed
	}{
		{"wrong key", other, sealed},
		{"tampered ciphertext", e, Sealed{Payload: base64.StdEncoding.EncodeToString(flipped), Nonce: sealed.Nonce}},
		{"tampered tag", e, Sealed{Payload: base64.StdEncoding.EncodeToString(flippedTag), Nonce: sealed.Nonce}},
		{"tampered nonce", e, Sealed{Payload: sealed.Payload, Nonce: base64.StdEncoding.EncodeToString(flippedNonce)}},
		{"truncated", e, Sealed{Payload: base64.StdEncoding.EncodeToString(raw[:len(raw)-1]), Nonce: sealed.Nonce}},
		{"bad payload base64", e, Sealed{Payload: "***", Nonce: sealed.Nonce}},
		{"bad nonce base64", e, Sealed{Payload: sealed.Payload, Nonce: "***"}},
		{"short nonce", e, Sealed{Payload: sealed.Payload, Nonce: base64.StdEncoding.EncodeToString([]byte("short"))}},
		{"empty", e, Sealed{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.env.Open(tt.sealed)
			if !errors.Is(err, common.ErrDecryptionFailed) {
				t.Fatalf("expected ErrDecryptionFailed, got %v", err)
			}
		})
	}
}

func TestEnvelope_Deterministic(t *testing.T) {
	e := newTestEnvelope(t, "envelope-secret")

	a := e.SealDeterministic([]byte("alice"))
	b := e.SealDeterministic([]byte("alice"))
	c := e.SealDeterministic([]byte("bob"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	got, err := e.OpenDeterministic(a)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(got))

	// a second envelope built from the same secret must agree
	again := newTestEnvelope(t, "envelope-secret")
	assert.Equal(t, a, again.SealDeterministic([]byte("alice")))

	other := newTestEnvelope(t, "another-secret")
	assert.NotEqual(t, a, other.SealDeterministic([]byte("alice")))

	_, err = other.OpenDeterministic(a)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestEnvelope_JSON(t *testing.T) {
	e := newTestEnvelope(t, "envelope-secret")

	type creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	sealed, err := e.SealJSON(creds{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	var got creds
	require.NoError(t, e.OpenJSON(sealed, &got))
	assert.Equal(t, creds{Username: "alice", Password: "pw"}, got)

	notJSON, err := e.Seal([]byte("not json"))
	require.NoError(t, err)
	err = e.OpenJSON(notJSON, &got)
	assert.ErrorIs(t, err, common.ErrMalformedRequest)

	err = e.OpenJSON(Sealed{Payload: "x", Nonce: "y"}, &got)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestPKCS7(t *testing.T) {
	padded := pkcs7Pad([]byte("abc"), 16)
	assert.Len(t, padded, 16)
	assert.Equal(t, byte(13), padded[15])

	full := pkcs7Pad(bytes.Repeat([]byte("x"), 16), 16)
	assert.Len(t, full, 32)

	out, err := pkcs7Unpad(padded, 16)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))

	bad := bytes.Clone(padded)
	bad[14] = 1
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)

	_, err = pkcs7Unpad(nil, 16)
	assert.Error(t, err)
}
