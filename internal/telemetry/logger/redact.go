package logger

import (
	"log/slog"
	"strings"
)

// Attribute names that carry secret key material. Public keys are not
// listed: they identify peers and are safe to log.
var sensitiveKeyPatterns = []string{
	"primary_key",
	"client_key",
	"private",
	"seed",
	"secret",
	"password",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive redacts a string attribute whose name suggests key material.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if IsSensitiveKey(a.Key) {
		switch a.Value.Kind() {
		case slog.KindString:
			if s := a.Value.String(); s != "" {
				return slog.String(a.Key, MaskKey(s))
			}
		case slog.KindAny:
			if b, ok := a.Value.Any().([]byte); ok && len(b) > 0 {
				return slog.String(a.Key, redactedValue)
			}
		}
	}
	return a
}

// MaskKey keeps the first and last four characters of a hex key so that
// operators can tell keys apart without exposing them.
func MaskKey(value string) string {
	if len(value) <= 16 {
		return redactedValue
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// IsSensitiveKey reports whether an attribute name suggests secret content.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
