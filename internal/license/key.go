package license

import (
	"regexp"
	"strings"

	"vidloader/internal/config"
	apperrors "vidloader/internal/errors"
)

var keyPattern = regexp.MustCompile(config.LicenseKeyPattern)

// Key is a normalized license key in the form PRO-XXXX-XXXX-XXXX.
type Key string

// ParseKey trims and uppercases raw and checks it against the key shape.
// Anything else fails with ErrInvalidFormat before any crypto runs.
func ParseKey(raw string) (Key, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if len(normalized) != config.LicenseKeyLength || !keyPattern.MatchString(normalized) {
		return "", apperrors.NewEntitlementError(apperrors.KindInvalidFormat, "parse license key", apperrors.ErrInvalidFormat)
	}
	return Key(normalized), nil
}

// String returns the key
func (k Key) String() string {
	return string(k)
}

// Masked returns the key with the middle segments hidden, safe for logs.
func (k Key) Masked() string {
	return MaskLicenseKey(string(k))
}
