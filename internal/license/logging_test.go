package license

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidloader/internal/infrastructure"
)

func TestMaskLicenseKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"PRO-ABCD-1234-WXYZ", "PRO-****-****-WXYZ"},
		{"short", "****"},
		{"", "****"},
		{"SOMETHING-LONGER", "SOME****NGER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskLicenseKey(tt.in), tt.in)
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"john.doe@example.com", "j****e@example.com"},
		{"ab@example.com", "**@example.com"},
		{"no-at-sign", "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskEmail(tt.in), tt.in)
	}
}

func TestHashLicenseKey(t *testing.T) {
	assert.Empty(t, HashLicenseKey(""))
	h := HashLicenseKey("PRO-ABCD-1234-WXYZ")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashLicenseKey("PRO-ABCD-1234-WXYZ"))
	assert.NotEqual(t, h, HashLicenseKey("PRO-ABCD-1234-WXYA"))
}

func TestLogLicenseActionMasksSecrets(t *testing.T) {
	infrastructure.ResetLoggerForTesting()
	defer infrastructure.ResetLoggerForTesting()

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(infrastructure.NewLogger(&buf, "debug"))
	defer slog.SetDefault(prev)

	logLicenseAction(context.Background(), slog.LevelInfo, "license_activation", "Activated",
		"PRO-ABCD-1234-WXYZ", "john.doe@example.com")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.False(t, strings.Contains(out, "PRO-ABCD-1234-WXYZ"), out)
	assert.False(t, strings.Contains(out, "john.doe@example.com"), out)
	assert.Contains(t, out, `"component":"license"`)
	assert.Contains(t, out, `"operation_category":"activation"`)
}
