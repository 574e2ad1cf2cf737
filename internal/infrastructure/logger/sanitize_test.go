package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "hello world", expected: "hello world"},
		{name: "empty", input: "", expected: ""},
		{name: "url unchanged", input: "https://upload.wikimedia.org/a/b.webm?x=1", expected: "https://upload.wikimedia.org/a/b.webm?x=1"},
		{name: "newline", input: "line1\nline2", expected: `line1\nline2`},
		{name: "crlf", input: "a\r\nb", expected: `a\r\nb`},
		{name: "tab", input: "a\tb", expected: `a\tb`},
		{name: "null byte", input: "a\x00b", expected: `a\x00b`},
		{name: "ansi escape", input: "\x1b[31mred", expected: `\x1b[31mred`},
		{name: "bell", input: "a\x07b", expected: `a\x07b`},
		{name: "del", input: "a\x7fb", expected: `a\x7fb`},
		{name: "unicode kept", input: "vidéo 中文 👋", expected: "vidéo 中文 👋"},
		{name: "forged entry", input: "clip.webm\nERROR: fake", expected: `clip.webm\nERROR: fake`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeForLog(tt.input))
		})
	}
}

func TestSanitizeForLog_NoRawControlChars(t *testing.T) {
	for i := 0; i < 0x20; i++ {
		out := SanitizeForLog(string(rune(i)))
		for _, r := range out {
			assert.GreaterOrEqual(t, r, rune(0x20), "control char 0x%02x leaked", i)
		}
	}
}

func TestSetOutputAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	jobLog := WithPrefix(Info, "[job abc]")
	jobLog.Printf("step %s", "trim")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "INFO: "), line)
	assert.Contains(t, line, "INFO: [job abc] ")
	assert.Contains(t, line, "step trim")
}
