package license

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const payloadHeader = "vidloader-license-v1"

// ErrMalformedPayload is returned when a payload cannot be canonicalized.
var ErrMalformedPayload = errors.New("malformed license payload")

// VerifyResult is the outcome of a signature check.
type VerifyResult int

const (
	VerifyMalformed VerifyResult = iota
	VerifyInvalid
	VerifyValid
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyValid:
		return "valid"
	case VerifyInvalid:
		return "invalid"
	default:
		return "malformed"
	}
}

// Payload is the signed content of a license.
type Payload struct {
	Key       Key
	Email     string
	MachineID string
	PlanTier  string
	IssuedAt  time.Time
	ExpiresAt *time.Time
}

// Canonical returns the exact bytes that are signed. Timestamps are UTC
// RFC 3339 with second precision.
func (p Payload) Canonical() ([]byte, error) {
	fields := []struct {
		name, value string
	}{
		{"key", string(p.Key)},
		{"email", p.Email},
		{"machine", p.MachineID},
		{"plan", p.PlanTier},
	}

	var buf bytes.Buffer
	buf.WriteString(payloadHeader)
	buf.WriteByte('\n')

	for _, f := range fields {
		if f.value == "" {
			return nil, fmt.Errorf("%w: empty %s", ErrMalformedPayload, f.name)
		}
		if strings.ContainsAny(f.value, "\r\n\x00") {
			return nil, fmt.Errorf("%w: control character in %s", ErrMalformedPayload, f.name)
		}
		buf.WriteString(f.name)
		buf.WriteByte('=')
		buf.WriteString(f.value)
		buf.WriteByte('\n')
	}

	if p.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing issue time", ErrMalformedPayload)
	}
	buf.WriteString("issued=")
	buf.WriteString(formatTimestamp(p.IssuedAt))
	buf.WriteByte('\n')

	if p.ExpiresAt != nil {
		buf.WriteString("expires=")
		buf.WriteString(formatTimestamp(*p.ExpiresAt))
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Verifier checks license signatures against an embedded public key.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier creates a verifier. A key of the wrong size is accepted here
// and makes every verification Malformed.
func NewVerifier(publicKey ed25519.PublicKey) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// ParsePublicKey decodes a base64 (standard encoding) Ed25519 public key.
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// ParsePrivateKey decodes a base64 (standard encoding) Ed25519 private key
// as written by the vendor tool.
func ParsePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// Verify checks signature over the canonical form of p. It never panics.
func (v *Verifier) Verify(p Payload, signature []byte) VerifyResult {
	if v == nil || len(v.publicKey) != ed25519.PublicKeySize {
		return VerifyMalformed
	}
	if len(signature) != ed25519.SignatureSize {
		return VerifyMalformed
	}
	msg, err := p.Canonical()
	if err != nil {
		return VerifyMalformed
	}
	if ed25519.Verify(v.publicKey, msg, signature) {
		return VerifyValid
	}
	return VerifyInvalid
}

// VerifyEncoded is Verify for a base64 encoded signature.
func (v *Verifier) VerifyEncoded(p Payload, signature string) VerifyResult {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return VerifyMalformed
	}
	return v.Verify(p, raw)
}

// Sign signs the canonical form of p. Only the vendor tool and tests hold a
// private key.
func Sign(privateKey ed25519.PrivateKey, p Payload) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	msg, err := p.Canonical()
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(privateKey, msg), nil
}

// GenerateKeyPair creates a new Ed25519 signing key pair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}
