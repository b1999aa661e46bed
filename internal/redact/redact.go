// Package redact strips credential values from URLs and log text.
package redact

import (
	"net/url"
	"regexp"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "***"

var sensitiveQueryKeys = map[string]struct{}{
	"apikey":       {},
	"api-key":      {},
	"token":        {},
	"access-token": {},
	"x-plex-token": {},
	"key":          {},
	"secret":       {},
	"password":     {},
	"session":      {},
	"auth":         {},
}

const sensitiveKeyPattern = `(?:apikey|api_key|api-key|token|access_token|access-token|x-plex-token|key|secret|password|session|auth)`

var (
	urlPattern        = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
	jsonSecretPattern = regexp.MustCompile(`(?i)("` + sensitiveKeyPattern + `"[ \t]*:[ \t]*")([^"]*)(")`)
	kvSecretPattern   = regexp.MustCompile(`(?i)(\b` + sensitiveKeyPattern + `\b[ \t]*[=:][ \t]*)([^&\s,;"'<>]+)`)
	bearerPattern     = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+\-/]+=*`)
)

// IsSensitiveKey reports whether a query parameter name carries a secret.
func IsSensitiveKey(key string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
	_, ok := sensitiveQueryKeys[normalized]
	return ok
}

// URL masks sensitive query values and keeps scheme, host and path visible.
// Unparseable input is returned unchanged.
func URL(raw string) string {
	if raw == "" || !strings.Contains(raw, "?") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	pairs := strings.Split(u.RawQuery, "&")
	changed := false
	for i, pair := range pairs {
		name, _, _ := strings.Cut(pair, "=")
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if IsSensitiveKey(decoded) {
			pairs[i] = name + "=" + Mask
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}

// Text masks URLs, JSON and key=value secrets and bearer tokens in s.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = urlPattern.ReplaceAllStringFunc(s, URL)
	s = jsonSecretPattern.ReplaceAllString(s, "${1}"+Mask+"${3}")
	s = kvSecretPattern.ReplaceAllString(s, "${1}"+Mask)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+Mask)
	return s
}
