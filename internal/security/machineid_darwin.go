//go:build darwin

package security

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// platformStableID reads IOPlatformUUID from the I/O registry
func platformStableID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return "", fmt.Errorf("ioreg failed: %w", err)
	}
	return parseIOPlatformUUID(string(out))
}
