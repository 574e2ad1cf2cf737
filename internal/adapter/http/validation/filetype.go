// Package validation checks uploaded videos and the names they arrive with.
package validation

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// ErrDisallowedFileType is returned when a file type is not in the allowlist.
var ErrDisallowedFileType = errors.New("file type not allowed")

// allowedMIMETypes lists the containers the edit pipeline accepts.
var allowedMIMETypes = map[string]bool{
	"video/mp4":        true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/3gpp":       true,
	"video/mpeg":       true,
	"video/ogg":        true,
}

// extensions maps an accepted type to the extension the working copy gets.
var extensions = map[string]string{
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/3gpp":       ".3gp",
	"video/mpeg":       ".mpg",
	"video/ogg":        ".ogv",
}

// magicBytesBufferSize is the number of bytes to read for content type detection.
const magicBytesBufferSize = 512

// ValidateMagicBytes sniffs up to 512 bytes of reader, reports the detected
// MIME type and whether it is an accepted video container, then rewinds
// the reader.
func ValidateMagicBytes(reader io.ReadSeeker) (mime string, allowed bool, err error) {
	buf := make([]byte, magicBytesBufferSize)
	n, err := io.ReadFull(reader, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", false, err
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}

	if n == 0 {
		return "application/octet-stream", false, nil
	}
	buf = buf[:n]

	mime = detectVideo(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
		// DetectContentType reports any Ogg stream as application/ogg.
		if mime == "application/ogg" && bytes.Contains(buf, []byte("\x01video")) {
			mime = "video/ogg"
		}
	}

	return mime, allowedMIMETypes[mime], nil
}

// Extension returns the canonical file extension for an accepted type, or
// "" for anything else.
func Extension(mime string) string {
	return extensions[mime]
}

// detectVideo recognizes containers http.DetectContentType misses or
// reports too coarsely.
func detectVideo(buf []byte) string {
	if len(buf) < 4 {
		return ""
	}

	// EBML header; the DocType tells WebM from generic Matroska.
	if bytes.HasPrefix(buf, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		if bytes.Contains(buf, []byte("matroska")) {
			return "video/x-matroska"
		}
		return "video/webm"
	}

	// RIFF....AVI
	if len(buf) >= 12 && bytes.Equal(buf[0:4], []byte("RIFF")) && bytes.Equal(buf[8:12], []byte("AVI ")) {
		return "video/x-msvideo"
	}

	// ISO base media: [4 bytes size]["ftyp"][brand]
	if len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")) {
		switch brand := string(buf[8:12]); {
		case brand == "qt  ":
			return "video/quicktime"
		case brand[:3] == "3gp" || brand[:3] == "3g2":
			return "video/3gpp"
		case brand == "M4A " || brand == "M4B " || brand == "M4P ":
			return "audio/mp4"
		default:
			return "video/mp4"
		}
	}

	// MPEG program stream pack header
	if bytes.HasPrefix(buf, []byte{0x00, 0x00, 0x01, 0xBA}) {
		return "video/mpeg"
	}

	return ""
}
