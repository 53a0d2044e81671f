package errdefs

import (
	"net/http"
	"regexp"
	"strings"
)

// maskedValue replaces sensitive header values and matched secret suffixes.
const maskedValue = "***"

// secretPatterns match credential material that occasionally leaks into vendor
// error bodies. Each match is collapsed to its recognizable prefix plus "***"
// so operators can still tell which kind of key was involved.
var secretPatterns = []struct {
	re     *regexp.Regexp
	prefix string
}{
	// Anthropic keys must be matched before generic sk- keys.
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]+`), "sk-ant-"},
	{regexp.MustCompile(`sk-[A-Za-z0-9_\-]{8,}`), "sk-"},
	{regexp.MustCompile(`AIza[0-9A-Za-z_\-]+`), "AIza"},
	{regexp.MustCompile(`ya29\.[0-9A-Za-z_.\-]+`), "ya29."},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.=/+\-]+`), "Bearer "},
}

// RedactSecrets truncates credential material embedded in s to a short
// recognizable prefix followed by "***". Strings without secrets are returned
// unchanged, which also makes the function idempotent.
func RedactSecrets(s string) string {
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllStringFunc(s, func(string) string {
			return p.prefix + maskedValue
		})
	}
	return s
}

// IsSensitiveHeader reports whether a header name carries credential material.
// Matching is case-insensitive and substring-based so vendor variants such as
// x-api-key, x-goog-api-key, and anthropic-api-key are all covered.
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	if lower == "authorization" || lower == "proxy-authorization" {
		return true
	}
	if lower == "cookie" || lower == "set-cookie" {
		return true
	}
	return strings.Contains(lower, "api-key") || strings.Contains(lower, "api_key")
}

// MaskHeaders copies h into a flat map with sensitive values replaced by
// "***". The result is suitable for an [Error] context map. Multi-valued
// headers are joined with ", " the way net/http renders them.
func MaskHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	masked := make(map[string]string, len(h))
	for name, values := range h {
		if IsSensitiveHeader(name) {
			masked[name] = maskedValue
			continue
		}
		masked[name] = strings.Join(values, ", ")
	}
	return masked
}
