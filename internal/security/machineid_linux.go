//go:build linux

package security

import "context"

// platformStableID reads the systemd or dbus machine id
func platformStableID(context.Context) (string, error) {
	return readMachineIDFile("/etc/machine-id", "/var/lib/dbus/machine-id")
}
