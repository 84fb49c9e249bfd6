// Package config loads vidloader configuration and resolves the per-user
// locations of its state files.
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables prefixed with VIDLOADER_ (highest priority)
//	2. The YAML config file (<user config dir>/vidloader/config.yaml, or
//	   the path named by VIDLOADER_CONFIG_FILE)
//	3. Default values (lowest priority)
//
// Example:
//
//	VIDLOADER_LOGGING_LEVEL=debug
//	VIDLOADER_QUOTA_LOCK_TIMEOUT=5s
//	VIDLOADER_SERVER_ADDR=127.0.0.1:9000
//
// Values that decide entitlement, such as the free daily download cap and
// the license verification key, are compiled in and cannot be changed here.
package config
