package unicode

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// confusables maps non-Latin characters that are visually identical to
// Latin letters. NFKC does not fold cross-script confusables — Cyrillic
// а (U+0430) stays Cyrillic — so this curated table is checked after
// normalization. Focused on characters that appear in English-language
// injection phrases, not exhaustive.
var confusables = map[rune]rune{
	// Cyrillic
	'а': 'a', 'А': 'A',
	'В': 'B',
	'с': 'c', 'С': 'C',
	'е': 'e', 'Е': 'E',
	'Н': 'H',
	'і': 'i', 'І': 'I',
	'Ј': 'J', 'ј': 'j',
	'К': 'K',
	'М': 'M',
	'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P',
	'ѕ': 's', 'Ѕ': 'S',
	'Т': 'T',
	'х': 'x', 'Х': 'X',
	'у': 'y', 'У': 'Y',
	// Greek
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I',
	'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P',
	'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
	'ν': 'v',
}

// scanMixedScript flags words that mix Latin letters with another script.
// A fully Cyrillic or Greek word is ordinary text; "pаssword" with one
// Cyrillic а in a Latin word is an evasion attempt.
func scanMixedScript(s string) []Finding {
	var findings []Finding

	offset := 0
	for _, word := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		pos := strings.Index(s[offset:], word) + offset
		offset = pos + len(word)

		hasLatin := false
		var foreign rune
		for _, r := range word {
			switch {
			case unicode.Is(unicode.Latin, r):
				hasLatin = true
			case unicode.Is(unicode.Cyrillic, r) || unicode.Is(unicode.Greek, r):
				foreign = r
			}
		}
		if hasLatin && foreign != 0 {
			findings = append(findings, Finding{
				Category:    "mixed-script",
				Description: fmt.Sprintf("word %q mixes Latin with another script", word),
				Position:    pos,
				Codepoint:   fmt.Sprintf("U+%04X", foreign),
				Severity:    trust.SeverityMedium,
			})
		}
	}
	return findings
}
