package testutil

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidloader/internal/license"
)

// Common fixture values
const (
	ValidKey  = "PRO-ABCD-1234-WXYZ"
	OtherKey  = "PRO-QRST-5678-MNOP"
	TestEmail = "user@example.com"
	MachineA  = "3f1c0e6a9b7d4c2e8a5f1b0d9c7e6a4b3f1c0e6a9b7d4c2e8a5f1b0d9c7e6a4b"
	MachineB  = "9a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b"
)

// KeyPair is a vendor signing key pair generated for one test
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NewKeyPair generates a fresh Ed25519 key pair
func NewKeyPair(t testing.TB) KeyPair {
	t.Helper()
	pub, priv, err := license.GenerateKeyPair()
	require.NoError(t, err)
	return KeyPair{Public: pub, Private: priv}
}

// Issuer returns a KeyIssuer signing with the private key
func (kp KeyPair) Issuer(opts ...license.KeyIssuerOption) *license.KeyIssuer {
	return license.NewKeyIssuer(kp.Private, opts...)
}

// EncodedPublicKey returns the public key the way it is embedded in builds
func (kp KeyPair) EncodedPublicKey() string {
	return base64.StdEncoding.EncodeToString(kp.Public)
}

// WritePrivateKey stores the base64 private key in dir and returns its path
func (kp KeyPair) WritePrivateKey(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vendor.key")
	require.NoError(t, os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(kp.Private)+"\n"), 0600))
	return path
}

// GrantResponse answers an activation request code the way the vendor
// tool does and returns the response blob.
func (kp KeyPair) GrantResponse(t testing.TB, requestCode string, opts ...license.KeyIssuerOption) string {
	t.Helper()
	req, err := license.DecodeRequest(requestCode)
	require.NoError(t, err)

	grant, err := kp.Issuer(opts...).Issue(context.Background(), req)
	require.NoError(t, err)

	blob, err := license.EncodeGrant(grant)
	require.NoError(t, err)
	return blob
}

// Clock is a settable clock for code that takes a func() time.Time
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d, which may be negative
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// StatePaths returns license and quota file paths in separate fresh
// directories, mirroring the config and data directory split.
func StatePaths(t testing.TB) (licensePath, quotaPath string) {
	t.Helper()
	root := t.TempDir()
	return filepath.Join(root, "config", "license.json"), filepath.Join(root, "data", "quota.json")
}

// CorruptFile overwrites path with damaged content of the given kind:
// "empty", "truncated", "garbage" or "binary".
func CorruptFile(t testing.TB, path, kind string) {
	t.Helper()

	var data []byte
	switch kind {
	case "empty":
	case "truncated":
		data = []byte(`{"date": "2024-06-01", "count": `)
	case "garbage":
		data = []byte("not json at all")
	case "binary":
		data = []byte{0x00, 0xff, 0xfe, 0x7b, 0x00}
	default:
		t.Fatalf("unknown corruption kind %q", kind)
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, data, 0600))
}
