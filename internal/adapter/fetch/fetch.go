package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bnema/videocut/internal/port"
)

var (
	ErrBadStatus   = errors.New("unexpected HTTP status")
	ErrEmptySource = errors.New("downloaded file is empty")
	ErrTooLarge    = errors.New("source exceeds size limit")
)

// Fetcher downloads remote sources into workDir as <jobID>_source<ext>.
type Fetcher struct {
	client   *http.Client
	workDir  string
	maxBytes int64
}

func NewFetcher(workDir string, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{},
		workDir:  workDir,
		maxBytes: maxBytes,
	}
}

func (f *Fetcher) Download(ctx context.Context, jobID, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid source url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "videocut/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	dest := filepath.Join(f.workDir, jobID+"_source"+sourceExt(u))
	file, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	n, copyErr := io.Copy(file, body)
	closeErr := file.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("write source: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close source: %w", closeErr)
	case n == 0:
		err = ErrEmptySource
	case f.maxBytes > 0 && n > f.maxBytes:
		err = fmt.Errorf("%w of %d bytes", ErrTooLarge, f.maxBytes)
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// sourceExt keeps the remote extension so ffmpeg can guess the container.
func sourceExt(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 6 {
		return ".video"
	}
	return ext
}

var _ port.Fetcher = (*Fetcher)(nil)
