package security

import (
	"net/url"
	"strings"
)

const mask = "***"

var sensitiveSubstrings = []string{
	"token",
	"password",
	"authorization",
	"apikey",
	"api_key",
	"access_key",
	"private_key",
	"credential",
	"passwd",
	"secret",
	"signature",
	"cookie",
	"jwt",
	"bearer",
	"pwd",
	"passphrase",
}

// RedactArguments returns a copy of arguments with sensitive values masked.
func RedactArguments(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	redacted := make(map[string]any, len(values))
	for key, value := range values {
		if IsSensitiveKey(key) {
			redacted[key] = mask
			continue
		}
		redacted[key] = value
	}
	return redacted
}

// IsSensitiveKey reports whether a key name looks like it holds a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// RedactURL masks userinfo and sensitive query parameters of raw.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		u.User = url.User(mask)
	}
	q := u.Query()
	changed := false
	for key := range q {
		if IsSensitiveKey(key) || strings.EqualFold(key, "key") {
			q.Set(key, mask)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
