package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidloader/internal/license"
	"vidloader/internal/shared/testutil"
)

func runTool(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func requestCode(t *testing.T) (string, license.Request) {
	t.Helper()
	req := license.Request{Key: testutil.ValidKey, Email: testutil.TestEmail, MachineID: testutil.MachineA}
	code, err := license.EncodeRequest(req)
	require.NoError(t, err)
	return code, req
}

func TestKeygen(t *testing.T) {
	code, out, _ := runTool(t, "-keygen")
	require.Equal(t, 0, code)

	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(line, "=")
		require.True(t, ok, line)
		values[k] = v
	}

	pub, err := license.ParsePublicKey(values["public_key"])
	require.NoError(t, err)
	priv, err := license.ParsePrivateKey(values["private_key"])
	require.NoError(t, err)
	assert.Equal(t, pub, priv.Public().(ed25519.PublicKey))
}

func TestKeygenWritesPrivateKeyFile(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "vendor.key")

	code, out, _ := runTool(t, "-keygen", "-out", keyFile)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "public_key=")
	assert.NotContains(t, out, "private_key=")

	reqCode, _ := requestCode(t)
	code, _, stderr := runTool(t, "-request", reqCode, "-private-key", keyFile)
	assert.Equal(t, 0, code, stderr)
}

func TestRespond(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	keyFile := keys.WritePrivateKey(t, t.TempDir())
	code, req := requestCode(t)

	exit, out, stderr := runTool(t, "-request", code, "-private-key", keyFile, "-plan", "pro-team", "-validity", "720h")
	require.Equal(t, 0, exit, stderr)

	grant, err := license.DecodeGrant(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "pro-team", grant.PlanTier)
	require.NotNil(t, grant.ExpiresAt)
	assert.Equal(t, 720*time.Hour, grant.ExpiresAt.Sub(grant.IssuedAt))

	verifier := license.NewVerifier(keys.Public)
	assert.Equal(t, license.VerifyValid, verifier.VerifyEncoded(grant.Payload(req), grant.Signature))
}

func TestRespondErrors(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	keyFile := keys.WritePrivateKey(t, t.TempDir())
	code, _ := requestCode(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no mode", args: nil, want: 2},
		{name: "both modes", args: []string{"-keygen", "-request", code}, want: 2},
		{name: "missing private key flag", args: []string{"-request", code}, want: 2},
		{name: "non-pro plan", args: []string{"-request", code, "-private-key", keyFile, "-plan", "free"}, want: 2},
		{name: "negative validity", args: []string{"-request", code, "-private-key", keyFile, "-validity", "-1h"}, want: 2},
		{name: "garbage request", args: []string{"-request", "!!!", "-private-key", keyFile}, want: 1},
		{name: "missing key file", args: []string{"-request", code, "-private-key", filepath.Join(t.TempDir(), "none.key")}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, out, _ := runTool(t, tt.args...)
			assert.Equal(t, tt.want, exit)
			assert.Empty(t, out)
		})
	}
}
