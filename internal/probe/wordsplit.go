package probe

import (
	"errors"
	"strings"
)

var errEmptyCommand = errors.New("probe: empty command")

// splitWords performs the same POSIX-style, quote-aware word splitting as
// internal/notify.Runner, on every runPlugin call — shlex.split's Go equivalent,
// grounded on overcli/monitor.py's use of shlex.split for plugin argv.
func splitWords(s string) ([]string, error) {
	var (
		words       []string
		cur         strings.Builder
		inWord      bool
		quote       rune
		hasAnyQuote bool
	)

	flush := func() {
		if inWord || hasAnyQuote {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
			hasAnyQuote = false
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
				continue
			}
			cur.WriteRune(c)
		case c == '\'' || c == '"':
			quote = c
			hasAnyQuote = true
			inWord = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote in command")
	}
	flush()
	return words, nil
}
