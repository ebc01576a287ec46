package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactDomain is the identity function for a bare domain — domains are the
// only recipient-derived string this system is allowed to persist or log in
// full (see spec's "never persist the full email address" rule).
func RedactDomain(domain string) string {
	return domain
}

// RedactToken never returns any part of the raw value — approval tokens
// must never appear in a log line, only their fingerprint (computed
// elsewhere with crypto/sha256). Callers that accidentally log a raw token
// still get a safe placeholder instead of a leak.
func RedactToken(_ string) string {
	return "***redacted***"
}
