package compose

import (
	"strings"
	"time"
	"unicode"
)

const timestampLayout = "20060102_150405"

// SanitizeName keeps letters, digits and a small punctuation set, replaces
// everything else with '_' and caps the result at maxLen runes.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if !isAllowedNameRune(r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}

	cleaned := strings.Trim(b.String(), "_.")
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimRight(string(runes[:maxLen]), "_.")
		}
	}
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// OutputStem returns "<YYYYMMDD_HHMMSS>_<sanitized topic>"
func OutputStem(now time.Time, topic string, maxLen int) string {
	return now.Format(timestampLayout) + "_" + SanitizeName(topic, maxLen)
}
