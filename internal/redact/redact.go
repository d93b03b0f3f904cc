// Package redact strips credential-shaped material from text before it
// reaches logs or the audit trail. Signature match excerpts quote the
// content that triggered them; for exfiltration signatures that content
// is often the secret itself.
package redact

import "regexp"

var sensitivePatterns = []*regexp.Regexp{
	// AWS
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// GitHub
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[opurs]_[A-Za-z0-9]{36}`),

	// Generic API keys and tokens
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),

	// Private key material
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Credentials embedded in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),

	// Slack and Stripe tokens
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),
	regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24}`),

	// Password-style assignments
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

const redactedPlaceholder = "[REDACTED]"

// Redact replaces anything credential-shaped with a placeholder. Safe to
// call on arbitrary attacker-controlled text; every pattern is RE2.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// Excerpt returns a redacted, length-bounded view of matched content,
// suitable for match details and operator output.
func Excerpt(s string, max int) string {
	s = Redact(s)
	if max > 0 && len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
