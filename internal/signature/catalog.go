package signature

import (
	"regexp"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// DefaultVersion identifies the built-in catalog.
const DefaultVersion = "builtin-1"

// Default returns the built-in signature catalog. Patterns compile under
// Go's RE2 engine, which guarantees linear-time matching; a pattern that
// would need backtracking cannot be expressed here at all.
func Default() *Catalog {
	cat, err := newCatalog(DefaultVersion, builtinSignatures())
	if err != nil {
		// The built-in set is covered by tests; a bad entry is a bug.
		panic(err)
	}
	return cat
}

func builtinSignatures() []Signature {
	return []Signature{
		// --- Prompt injection ------------------------------------------------
		{
			ID: "inj-ignore-instructions", Category: CategoryInjection, Severity: trust.SeverityHigh,
			Description: "instruction override phrase",
			re:          regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|context)`),
		},
		{
			ID: "inj-role-reassignment", Category: CategoryInjection, Severity: trust.SeverityHigh,
			Description: "role reassignment attempt",
			re:          regexp.MustCompile(`(?i)you\s+are\s+(now|no\s+longer)\s+(a|an|the|in)\b`),
		},
		{
			ID: "inj-system-prompt-probe", Category: CategoryInjection, Severity: trust.SeverityMedium,
			Description: "system prompt disclosure request",
			re:          regexp.MustCompile(`(?i)(reveal|show|print|repeat|output)\s+(your\s+)?(system\s+prompt|initial\s+instructions|hidden\s+instructions)`),
		},
		{
			ID: "inj-jailbreak-markers", Category: CategoryInjection, Severity: trust.SeverityMedium,
			Description: "jailbreak marker phrase",
			substrings:  []string{"do anything now", "developer mode enabled", "jailbreak mode"},
		},
		{
			ID: "inj-fake-delimiters", Category: CategoryInjection, Severity: trust.SeverityMedium,
			Description: "spoofed conversation delimiter",
			re:          regexp.MustCompile(`(?i)(\[/?(system|assistant|inst)\]|<\|im_(start|end)\|>|###\s*(system|instruction)\s*:)`),
		},

		// --- Exfiltration ----------------------------------------------------
		{
			ID: "exf-key-material-fetch", Category: CategoryExfiltration, Severity: trust.SeverityCritical,
			Description: "network send of key material",
			re:          regexp.MustCompile(`(?i)(curl|wget|fetch)\b[^\n]{0,200}(id_rsa|id_ed25519|\.ssh/|\.aws/credentials|\.env\b)`),
		},
		{
			ID: "exf-env-harvest", Category: CategoryExfiltration, Severity: trust.SeverityHigh,
			Description: "environment harvesting into a network call",
			re:          regexp.MustCompile(`(?i)\b(env|printenv|set)\b\s*[|>][^\n]{0,120}(curl|wget|nc|http)`),
		},
		{
			ID: "exf-private-key-block", Category: CategoryExfiltration, Severity: trust.SeverityCritical,
			Description: "embedded private key block",
			re:          regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		},
		{
			ID: "exf-cloud-access-key", Category: CategoryExfiltration, Severity: trust.SeverityHigh,
			Description: "cloud access key identifier",
			re:          regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		},
		{
			ID: "exf-bearer-token", Category: CategoryExfiltration, Severity: trust.SeverityMedium,
			Description: "bearer token in content",
			re:          regexp.MustCompile(`(?i)\bauthorization:\s*bearer\s+[a-z0-9._\-]{16,}`),
		},
		{
			ID: "exf-webhook-beacon", Category: CategoryExfiltration, Severity: trust.SeverityMedium,
			Description: "outbound webhook beacon",
			re:          regexp.MustCompile(`(?i)https?://[^\s]{0,80}(webhook\.site|requestbin|burpcollaborator|interactsh)`),
		},

		// --- Cross-site scripting -------------------------------------------
		{
			ID: "xss-script-tag", Category: CategoryXSS, Severity: trust.SeverityHigh,
			Description: "script tag in content",
			re:          regexp.MustCompile(`(?i)<\s*script[\s>]`),
		},
		{
			ID: "xss-event-handler", Category: CategoryXSS, Severity: trust.SeverityMedium,
			Description: "inline event handler",
			re:          regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus)\s*=`),
		},
		{
			ID: "xss-javascript-url", Category: CategoryXSS, Severity: trust.SeverityMedium,
			Description: "javascript: URL",
			re:          regexp.MustCompile(`(?i)javascript\s*:`),
		},
		{
			ID: "xss-iframe-srcdoc", Category: CategoryXSS, Severity: trust.SeverityMedium,
			Description: "iframe with inline document",
			re:          regexp.MustCompile(`(?i)<\s*iframe[^>]{0,200}srcdoc\s*=`),
		},

		// --- Command injection ----------------------------------------------
		{
			ID: "cmd-substitution", Category: CategoryCommand, Severity: trust.SeverityMedium,
			Description: "command substitution into shell context",
			re:          regexp.MustCompile("(?i)(\\$\\(|`)[^\n`)]{0,120}(curl|wget|bash|sh |nc |python)"),
		},
		{
			ID: "cmd-pipe-to-shell", Category: CategoryCommand, Severity: trust.SeverityCritical,
			Description: "download piped into a shell",
			shellCheck:  shellCheckPipeToShell,
		},
		{
			ID: "cmd-remove-root", Category: CategoryCommand, Severity: trust.SeverityCritical,
			Description: "recursive force remove of filesystem root",
			shellCheck:  shellCheckRemoveRoot,
		},
		{
			ID: "cmd-device-write", Category: CategoryCommand, Severity: trust.SeverityHigh,
			Description: "raw device write",
			shellCheck:  shellCheckDeviceWrite,
		},
		{
			ID: "cmd-reverse-shell", Category: CategoryCommand, Severity: trust.SeverityCritical,
			Description: "reverse shell one-liner",
			re:          regexp.MustCompile(`(?i)(bash\s+-i\s+>&\s*/dev/tcp/|nc\s+(-e|\S+\s+\S+\s+-e)\s|python[23]?\s+-c\s+['"]import\s+socket)`),
		},

		// --- Structural / encoding ------------------------------------------
		{
			ID: "bomb-base64-blob", Category: CategoryStructuralBomb, Severity: trust.SeverityMedium,
			Description: "large opaque base64 blob",
			re:          regexp.MustCompile(`[A-Za-z0-9+/]{512,}={0,2}`),
		},
		{
			ID: "evade-escaped-unicode", Category: CategoryUnicodeEvasion, Severity: trust.SeverityMedium,
			Description: "escaped unicode control sequence in text",
			re:          regexp.MustCompile(`(?i)(\\u20[02][0-9a-f]|\\ufeff|&#x20[02][0-9a-f];)`),
		},
	}
}
