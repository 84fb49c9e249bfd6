//go:build !linux && !darwin && !windows

package security

import "context"

func platformStableID(context.Context) (string, error) {
	return "", errNoStableID
}
