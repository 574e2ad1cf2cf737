package logger

import (
	"fmt"
	"strings"
)

var namedEscapes = map[rune]string{
	'\n':   `\n`,
	'\r':   `\r`,
	'\t':   `\t`,
	'\x00': `\x00`,
}

// SanitizeForLog escapes control characters (newlines, ANSI escapes, NUL,
// DEL) so user input such as file names, URLs or user ids cannot forge log
// lines. Printable Unicode is kept as is.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if esc, ok := namedEscapes[r]; ok {
			b.WriteString(esc)
			continue
		}
		if r < 0x20 || r == 0x7f {
			fmt.Fprintf(&b, `\x%02x`, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
