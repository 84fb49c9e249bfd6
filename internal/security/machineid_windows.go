//go:build windows

package security

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// platformStableID reads MachineGuid from the registry. The 64-bit view is
// requested so 32-bit builds see the same value.
func platformStableID(context.Context) (string, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE,
		`SOFTWARE\Microsoft\Cryptography`,
		registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", fmt.Errorf("open cryptography key: %w", err)
	}
	defer key.Close()

	guid, _, err := key.GetStringValue("MachineGuid")
	if err != nil {
		return "", fmt.Errorf("read MachineGuid: %w", err)
	}
	return guid, nil
}
