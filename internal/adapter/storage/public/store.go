package public

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bnema/videocut/internal/port"
)

// Store moves finished artifacts into dir, which is served under urlPrefix.
type Store struct {
	dir       string
	urlPrefix string
}

func NewStore(dir, urlPrefix string) *Store {
	return &Store{dir: dir, urlPrefix: urlPrefix}
}

func (s *Store) Dir() string {
	return s.dir
}

// Publish returns the public URL path of every artifact, in input order.
func (s *Store) Publish(ctx context.Context, jobID string, paths []string) ([]string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create public directory: %w", err)
	}

	published := make([]string, 0, len(paths))
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s_%d%s", jobID, i, filepath.Ext(p))
		if err := moveFile(p, filepath.Join(s.dir, name)); err != nil {
			return nil, fmt.Errorf("publish %s: %w", filepath.Base(p), err)
		}
		published = append(published, path.Join(s.urlPrefix, name))
	}
	return published, nil
}

// Cleanup removes a working file. A file that is already gone is not an
// error.
func (s *Store) Cleanup(p string) error {
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// moveFile renames src to dst, copying when they live on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

var _ port.Publisher = (*Store)(nil)
