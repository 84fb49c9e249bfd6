package license

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vidloader/internal/config"
	"vidloader/internal/infrastructure"
)

const component = "license"

// logAction logs a specific action with structured data and span correlation
func logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	logger := infrastructure.LoggerWithContext(ctx)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		infrastructure.AddSpanEvent(ctx, "license."+action,
			attribute.String("action", action),
			attribute.String("result", result))
	}

	allAttrs := []slog.Attr{
		slog.String("component", component),
		slog.String("action", action),
		slog.String("result", result),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(ctx, level, result, allAttrs...)
}

// logLicenseAction logs a license action with the key and email masked
func logLicenseAction(ctx context.Context, level slog.Level, action, result, licenseKey, email string, attrs ...slog.Attr) {
	licenseAttrs := []slog.Attr{
		slog.String("license_key_masked", MaskLicenseKey(licenseKey)),
		slog.String("license_key_hash", HashLicenseKey(licenseKey)),
		slog.String("user_email_masked", MaskEmail(email)),
		slog.String("operation_category", operationCategory(action)),
	}
	licenseAttrs = append(licenseAttrs, attrs...)

	logAction(ctx, level, action, result, licenseAttrs...)
}

func logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

// MaskLicenseKey hides all but the prefix and last segment of a key
func MaskLicenseKey(key string) string {
	if len(key) == config.LicenseKeyLength && strings.HasPrefix(key, config.LicenseKeyPrefix) {
		return key[:4] + "****-****-" + key[len(key)-4:]
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// MaskEmail masks the user part of an address and keeps the domain
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	atIndex := strings.LastIndex(email, "@")
	if atIndex == -1 {
		return "****"
	}

	username := email[:atIndex]
	domain := email[atIndex:]

	if len(username) <= 2 {
		return "**" + domain
	}
	return username[:1] + "****" + username[len(username)-1:] + domain
}

// HashLicenseKey returns a short digest of the key for audit correlation
func HashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)[:16]
}

func operationCategory(action string) string {
	switch {
	case strings.Contains(action, "activation"):
		return "activation"
	case strings.Contains(action, "validation"):
		return "validation"
	case strings.Contains(action, "deactivation"), strings.Contains(action, "removed"):
		return "deactivation"
	default:
		return "other"
	}
}
