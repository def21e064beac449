package upload

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// YouTube caps the combined tag length at 500 characters.
const maxTagChars = 500

// Title trims whitespace and caps the topic at the YouTube title limit
func Title(topic string) string {
	title := strings.Join(strings.Fields(topic), " ")
	if r := []rune(title); len(r) > maxTitleRunes {
		title = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	if title == "" {
		title = "untitled"
	}
	return title
}

// Tags merges the configured tags with the topic, dropping duplicates and
// anything past the combined length limit.
func Tags(base []string, topic string) []string {
	all := append(append([]string{}, base...), strings.TrimSpace(topic))
	all = lo.Filter(all, func(t string, _ int) bool {
		return strings.TrimSpace(t) != "" && !strings.ContainsAny(t, "<>")
	})
	all = lo.UniqBy(all, strings.ToLower)

	var out []string
	total := 0
	for _, t := range all {
		n := utf8.RuneCountInString(t)
		if strings.Contains(t, " ") {
			n += 2 // quoted by YouTube
		}
		if total+n > maxTagChars {
			break
		}
		total += n + 1
		out = append(out, t)
	}
	return out
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
