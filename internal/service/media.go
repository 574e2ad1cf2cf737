package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/port"
	"github.com/google/uuid"
)

// Toolkit assembles the provider adapters into the operation set an
// executor runs plans with.
type Toolkit struct {
	port.Fetcher
	port.Editor
	port.Publisher
}

func NewToolkit(fetcher port.Fetcher, editor port.Editor, publisher port.Publisher) *Toolkit {
	return &Toolkit{
		Fetcher:   fetcher,
		Editor:    editor,
		Publisher: publisher,
	}
}

var _ port.MediaOperations = (*Toolkit)(nil)

// MediaService stages uploaded sources in the working directory under a
// job-unique name, where the executor picks them up.
type MediaService struct {
	workDir string
}

func NewMediaService(workDir string) *MediaService {
	return &MediaService{workDir: workDir}
}

// Stage copies src to "<workDir>/<jobID>_upload<ext>" and returns the path.
// The extension is taken from filename when it has one.
func (s *MediaService) Stage(jobID, filename string, src io.Reader) (string, error) {
	if !domain.ValidJobID(jobID) {
		return "", domain.ErrInvalidJobID
	}
	if err := os.MkdirAll(s.workDir, 0755); err != nil {
		logger.Error.Printf("failed to create work directory: %v", err)
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	uploadPath := filepath.Join(s.workDir, jobID+"_upload"+ext)

	dst, err := os.OpenFile(uploadPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		logger.Error.Printf("failed to create upload %s: %v", uploadPath, err)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	n, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(uploadPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		logger.Error.Printf("failed to save upload for job %s: %v", jobID, copyErr)
		return "", fmt.Errorf("failed to save upload: %w", copyErr)
	}

	logger.Info.Printf("upload staged: job=%s, filename=%s, size=%d", jobID, logger.SanitizeForLog(filename), n)
	return uploadPath, nil
}

// Discard removes a staged upload whose job was never accepted.
func (s *MediaService) Discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn.Printf("failed to discard upload %s: %v", path, err)
	}
}

// heldUpload is the sidecar written next to an upload that waits for a job.
type heldUpload struct {
	OwnerID  string `json:"ownerId"`
	Filename string `json:"filename"`
	Ext      string `json:"ext"`
}

func (s *MediaService) holdPath(uploadID string) string {
	return filepath.Join(s.workDir, uploadID+"_owner.json")
}

// Hold stages src with extension ext for a job that does not exist yet and
// returns the upload id a later submission claims it with. filename is the
// client's name for the video. Unclaimed uploads are left to the reaper.
func (s *MediaService) Hold(ownerID, filename, ext string, src io.Reader) (string, error) {
	uploadID := uuid.NewString()
	path, err := s.Stage(uploadID, "upload"+ext, src)
	if err != nil {
		return "", err
	}

	meta, err := json.Marshal(heldUpload{OwnerID: ownerID, Filename: filename, Ext: filepath.Ext(path)})
	if err == nil {
		err = os.WriteFile(s.holdPath(uploadID), meta, 0644)
	}
	if err != nil {
		s.Discard(path)
		return "", fmt.Errorf("failed to record upload owner: %w", err)
	}
	return uploadID, nil
}

// Claim moves a held upload to the staged name of jobID and returns its new
// path with the original filename. Uploads held by another owner are
// reported as missing. An upload can be claimed once.
func (s *MediaService) Claim(uploadID, ownerID, jobID string) (string, string, error) {
	if !domain.ValidJobID(jobID) {
		return "", "", domain.ErrInvalidJobID
	}
	notFound := fmt.Errorf("upload %s: %w", uploadID, domain.ErrNotFound)
	if !domain.ValidJobID(uploadID) {
		return "", "", notFound
	}

	metaPath := s.holdPath(uploadID)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return "", "", notFound
	}
	var held heldUpload
	if err := json.Unmarshal(raw, &held); err != nil || held.OwnerID != ownerID {
		return "", "", notFound
	}
	if strings.ContainsAny(held.Ext, `/\`) {
		return "", "", notFound
	}

	// Removing the sidecar is the claim; a concurrent claim loses here.
	if err := os.Remove(metaPath); err != nil {
		return "", "", notFound
	}

	src := filepath.Join(s.workDir, uploadID+"_upload"+held.Ext)
	dst := filepath.Join(s.workDir, jobID+"_upload"+held.Ext)
	if src != dst {
		if err := os.Link(src, dst); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", "", notFound
			}
			_ = os.WriteFile(metaPath, raw, 0644)
			return "", "", fmt.Errorf("failed to claim upload: %w", err)
		}
		_ = os.Remove(src)
	}

	logger.Info.Printf("upload %s claimed by job %s", uploadID, jobID)
	return dst, held.Filename, nil
}
