package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateUserDirs points the platform directories at a temp dir so tests
// never read a real user config file.
func isolateUserDirs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("APPDATA", filepath.Join(root, "config"))
	t.Setenv("LOCALAPPDATA", filepath.Join(root, "data"))
	return root
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	t.Setenv(EnvPrefix+"_CONFIG_FILE", path)
	return path
}

// TestLoad tests the Load function with various scenarios
func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T)
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name:  "default configuration with no env vars",
			setup: func(t *testing.T) {},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
				assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
				assert.True(t, cfg.Server.RateLimit.Enabled)
				assert.Equal(t, 20.0, cfg.Server.RateLimit.RPS)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "console", cfg.Logging.Output)
				assert.Equal(t, DefaultLockTimeout, cfg.Quota.LockTimeout)
				assert.False(t, cfg.Telemetry.Enabled)
				assert.Equal(t, LicenseFileName, filepath.Base(cfg.Paths.LicenseFile))
				assert.Equal(t, QuotaFileName, filepath.Base(cfg.Paths.QuotaFile))
				assert.Equal(t, LogFileName, filepath.Base(cfg.Logging.FilePath))
			},
		},
		{
			name: "environment overrides defaults",
			setup: func(t *testing.T) {
				t.Setenv("VIDLOADER_LOGGING_LEVEL", "debug")
				t.Setenv("VIDLOADER_QUOTA_LOCK_TIMEOUT", "5s")
				t.Setenv("VIDLOADER_SERVER_ADDR", "127.0.0.1:9999")
				t.Setenv("VIDLOADER_PATHS_QUOTA_FILE", "/tmp/custom-quota.json")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 5*time.Second, cfg.Quota.LockTimeout)
				assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
				assert.Equal(t, "/tmp/custom-quota.json", cfg.Paths.QuotaFile)
			},
		},
		{
			name: "file values apply when env is unset",
			setup: func(t *testing.T) {
				writeConfigFile(t, `
logging:
  level: warn
quota:
  lock_timeout: 2s
server:
  rate_limit:
    enabled: false
`)
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "warn", cfg.Logging.Level)
				assert.Equal(t, 2*time.Second, cfg.Quota.LockTimeout)
				assert.False(t, cfg.Server.RateLimit.Enabled)
				// untouched keys keep their defaults
				assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
			},
		},
		{
			name: "env wins over file",
			setup: func(t *testing.T) {
				writeConfigFile(t, "logging:\n  level: warn\n")
				t.Setenv("VIDLOADER_LOGGING_LEVEL", "error")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "error", cfg.Logging.Level)
			},
		},
		{
			name: "lock timeout below minimum is rejected",
			setup: func(t *testing.T) {
				t.Setenv("VIDLOADER_QUOTA_LOCK_TIMEOUT", "100ms")
			},
			wantErr: true,
		},
		{
			name: "lock timeout above maximum is rejected",
			setup: func(t *testing.T) {
				t.Setenv("VIDLOADER_QUOTA_LOCK_TIMEOUT", "30s")
			},
			wantErr: true,
		},
		{
			name: "unsupported log output is rejected",
			setup: func(t *testing.T) {
				t.Setenv("VIDLOADER_LOGGING_OUTPUT", "syslog")
			},
			wantErr: true,
		},
		{
			name: "malformed config file",
			setup: func(t *testing.T) {
				writeConfigFile(t, "logging: [unclosed")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateUserDirs(t)
			tt.setup(t)

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultLockTimeout, cfg.Quota.LockTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 5, FreeDailyDownloads)
	assert.Equal(t, len("PRO-XXXX-XXXX-XXXX"), LicenseKeyLength)
	assert.True(t, MinLockTimeout <= DefaultLockTimeout && DefaultLockTimeout <= MaxLockTimeout)
}

func TestIsProPlan(t *testing.T) {
	assert.True(t, IsProPlan(DefaultPlanTier))
	for _, plan := range ProPlanTiers {
		assert.True(t, IsProPlan(plan), plan)
	}
	for _, plan := range []string{"", "free", "trial", "PRO"} {
		assert.False(t, IsProPlan(plan), plan)
	}
}
