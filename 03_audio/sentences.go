package audio

import (
	"strings"
	"unicode"
)

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?':
		return true
	}
	return false
}

// SplitSentences breaks narration into speakable sentences. Terminators stay
// attached to their sentence; runs of terminators ("!?", "。。") end a single
// sentence. Newlines always end a sentence.
func SplitSentences(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if strings.IndexFunc(s, func(r rune) bool { return !isTerminator(r) && !unicode.IsSpace(r) }) >= 0 {
			out = append(out, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' || r == '\r' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if isTerminator(r) && (i+1 == len(runes) || !isTerminator(runes[i+1])) {
			// "3.5" is a number, not a sentence end.
			if r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) && i > 0 && unicode.IsDigit(runes[i-1]) {
				continue
			}
			flush()
		}
	}
	flush()
	return out
}
