package config

import (
	"slices"
	"time"
)

// Application constants. Values that decide entitlement are compiled in and
// never read from user-editable configuration.
const (
	// Application Info
	AppName    = "vidloader"
	AppVersion = "1.4.0"
	AppVendor  = "vidloader"

	// File names under the platform config/data directories
	ConfigFileName  = "config.yaml"
	LicenseFileName = "license.json"
	QuotaFileName   = "quota.json"
	LogFileName     = "vidloader.log"

	// License key format: PRO-XXXX-XXXX-XXXX
	LicenseKeyPrefix  = "PRO-"
	LicenseKeyLength  = 18
	LicenseKeyPattern = "^PRO-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$"

	// Default plan tier written into grants
	DefaultPlanTier = "pro"

	// Free tier
	FreeDailyDownloads = 5

	// Activation abuse protection
	MaxActivationAttempts     = 5
	ActivationAttemptWindow   = 30 * time.Minute
	ActivationLockoutDuration = 30 * time.Minute

	// Quota file locking
	DefaultLockTimeout = 3 * time.Second
	MinLockTimeout     = 1 * time.Second
	MaxLockTimeout     = 10 * time.Second

	// Upper bound for any state file we read back
	MaxStateFileSize = 64 * 1024

	// Local API defaults
	DefaultServerAddr = "127.0.0.1:8765"
	DefaultRateLimit  = 20 // requests per second
	DefaultBurstSize  = 40

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ProPlanTiers lists the signed plan tiers that unlock Pro. A verified
// license carrying any other tier leaves the gate in Free.
var ProPlanTiers = []string{DefaultPlanTier, "pro-lifetime"}

// IsProPlan reports whether tier unlocks Pro
func IsProPlan(tier string) bool {
	return slices.Contains(ProPlanTiers, tier)
}

// Error Messages
const (
	ErrMsgLicenseNotFound = "No license activated. Running in Free mode."
	ErrMsgLicenseInvalid  = "License could not be verified. Reverting to Free mode."
	ErrMsgUpgradeHint     = "Upgrade to Pro for unlimited downloads."
)
