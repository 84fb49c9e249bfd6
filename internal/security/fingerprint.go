package security

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

// fingerprintDomain versions the fingerprint derivation. Changing it unbinds
// every activated license.
const fingerprintDomain = "vidloader-machine-v1"

// ErrNoMachineSignals is returned when neither a stable OS id nor a hostname
// could be read.
var ErrNoMachineSignals = errors.New("no machine identification signals available")

var errNoStableID = errors.New("no stable machine id on this platform")

// Fingerprinter produces the machine fingerprint a license is bound to.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// Signals are the raw inputs of a fingerprint.
type Signals struct {
	StableID string `json:"stable_id,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
}

// FingerprintManager reads machine signals and caches the fingerprint for
// the lifetime of the process.
type FingerprintManager struct {
	readStableID func(ctx context.Context) (string, error)
	hostname     func() (string, error)
	goos         string
	goarch       string

	mu     sync.Mutex
	cached string
}

// NewFingerprintManager creates a fingerprint manager for the running host
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		readStableID: platformStableID,
		hostname:     os.Hostname,
		goos:         runtime.GOOS,
		goarch:       runtime.GOARCH,
	}
}

// Signals gathers the current machine signals. Missing signals are left
// empty and logged.
func (fm *FingerprintManager) Signals(ctx context.Context) Signals {
	s := Signals{OS: fm.goos, Arch: fm.goarch}

	if id, err := fm.readStableID(ctx); err == nil {
		s.StableID = normalizeMachineID(id)
	} else {
		slog.DebugContext(ctx, "Stable machine id unavailable",
			slog.String("os", fm.goos),
			slog.String("error", err.Error()))
	}

	if host, err := fm.hostname(); err == nil {
		s.Hostname = strings.ToLower(strings.TrimSpace(host))
	} else {
		slog.WarnContext(ctx, "Failed to get hostname",
			slog.String("error", err.Error()))
	}

	return s
}

// Fingerprint returns the cached fingerprint, computing it on first use.
// Failures are not cached.
func (fm *FingerprintManager) Fingerprint(ctx context.Context) (string, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.cached != "" {
		return fm.cached, nil
	}

	signals := fm.Signals(ctx)
	fp, err := ComputeFingerprint(signals)
	if err != nil {
		return "", err
	}

	fm.cached = fp
	slog.DebugContext(ctx, "Machine fingerprint generated",
		slog.Bool("stable_id", signals.StableID != ""),
		slog.String("os", signals.OS),
		slog.String("arch", signals.Arch))

	return fp, nil
}

// ComputeFingerprint hashes the signals. The stable OS id is preferred so
// renaming the machine keeps the binding; the hostname only stands in when
// no stable id exists.
func ComputeFingerprint(s Signals) (string, error) {
	primary := s.StableID
	if primary == "" {
		primary = s.Hostname
	}
	if primary == "" {
		return "", ErrNoMachineSignals
	}

	combined := strings.Join([]string{fingerprintDomain, primary, s.OS, s.Arch}, "|")
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:]), nil
}

// StaticFingerprint is a fixed fingerprint, for tests and tools that act on
// behalf of another machine.
type StaticFingerprint string

// Fingerprint returns the fixed value
func (s StaticFingerprint) Fingerprint(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoMachineSignals
	}
	return string(s), nil
}

func normalizeMachineID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.ReplaceAll(id, "-", "")
}

// parseIOPlatformUUID extracts IOPlatformUUID from ioreg output
func parseIOPlatformUUID(out string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, `"IOPlatformUUID"`) {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		if value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("IOPlatformUUID not found: %w", errNoStableID)
}

// readMachineIDFile returns the first non-empty id from paths
func readMachineIDFile(paths ...string) (string, error) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	return "", errNoStableID
}
