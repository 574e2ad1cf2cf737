package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxFilenameLength is the maximum allowed filename length (common filesystem limit).
const maxFilenameLength = 255

// dangerousChars can break out of a Content-Disposition value or a path.
var dangerousChars = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
	'\n': true,
	'\r': true,
}

// SanitizeFilename replaces control and dangerous characters with '_',
// keeps other Unicode as is and truncates to 255 bytes keeping the
// extension. Empty results become "file".
func SanitizeFilename(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))

	for _, r := range name {
		if shouldReplace(r) {
			sb.WriteRune('_')
		} else {
			sb.WriteRune(r)
		}
	}

	result := strings.TrimSpace(sb.String())
	if result == "" || strings.Trim(result, "_") == "" {
		return "file"
	}

	if len(result) > maxFilenameLength {
		result = truncatePreservingExtension(result)
	}

	return result
}

func shouldReplace(r rune) bool {
	if r < 32 || r == 127 {
		return true
	}
	return dangerousChars[r]
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	extLen := len(ext)

	if extLen == 0 || extLen >= maxFilenameLength {
		return truncateToBytes(name, maxFilenameLength)
	}

	base := name[:len(name)-extLen]
	return truncateToBytes(base, maxFilenameLength-extLen) + ext
}

// truncateToBytes cuts s to at most maxBytes without splitting a rune.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// DownloadName names the index-th result of an edit of videoName. The
// result keeps its own extension since conversion changes the container.
func DownloadName(videoName string, index int, ext string) string {
	base := strings.TrimSuffix(videoName, filepath.Ext(videoName))
	if strings.TrimSpace(base) == "" {
		base = "video"
	}
	return SanitizeFilename(fmt.Sprintf("%s_edit_%d%s", base, index+1, ext))
}

// ContentDisposition returns a safe Content-Disposition header value.
func ContentDisposition(filename string, inline bool) string {
	sanitized := SanitizeFilename(filename)

	disposition := "attachment"
	if inline {
		disposition = "inline"
	}

	return fmt.Sprintf("%s; filename=%q", disposition, sanitized)
}
