package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/videocut/internal/adapter/http/ratelimit"
	"github.com/bnema/videocut/internal/adapter/http/templates"
	"github.com/bnema/videocut/internal/adapter/http/validation"
	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/service"
	"github.com/google/uuid"
)

type JobService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error)
}

// UploadService stages an uploaded source under a job-unique name, or holds
// it for a job submitted later.
type UploadService interface {
	Stage(jobID, filename string, src io.Reader) (string, error)
	Hold(ownerID, filename, ext string, src io.Reader) (string, error)
	Claim(uploadID, ownerID, jobID string) (path, filename string, err error)
	Discard(path string)
}

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type Handlers struct {
	jobs        JobService
	uploads     UploadService
	limiter     *ratelimit.SubmitLimiter
	publicDir   string
	maxSizeMB   int
	behindProxy bool
}

func NewHandlers(jobs JobService, uploads UploadService, limiter *ratelimit.SubmitLimiter, publicDir string, maxSizeMB int, behindProxy bool) *Handlers {
	return &Handlers{
		jobs:        jobs,
		uploads:     uploads,
		limiter:     limiter,
		publicDir:   publicDir,
		maxSizeMB:   maxSizeMB,
		behindProxy: behindProxy,
	}
}

// JobView is the client-facing shape of a job. Server-side paths stay out.
type JobView struct {
	ID         string             `json:"jobId"`
	Status     domain.JobStatus   `json:"status"`
	VideoName  string             `json:"videoName,omitempty"`
	InputURL   string             `json:"inputUrl,omitempty"`
	Settings   domain.JobSettings `json:"settings"`
	Videos     []string           `json:"videos,omitempty"`
	Error      *domain.JobError   `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	StartedAt  *time.Time         `json:"startedAt,omitempty"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
}

func viewOf(job *domain.Job) JobView {
	return JobView{
		ID:         job.ID,
		Status:     job.Status,
		VideoName:  job.VideoName,
		InputURL:   job.InputURL,
		Settings:   job.Settings,
		Videos:     job.ResultPaths,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// UploadView answers a held upload. ID goes in the "source" field of a
// later submission.
type UploadView struct {
	ID        string `json:"uploadId"`
	VideoName string `json:"videoName"`
}

type submitBody struct {
	ID        string             `json:"id,omitempty"`
	URL       string             `json:"url,omitempty"`
	Source    string             `json:"source,omitempty"`
	VideoName string             `json:"videoName,omitempty"`
	Settings  domain.JobSettings `json:"settings"`
}

// SubmitJob accepts either a multipart upload ("file" plus optional
// "settings", "id" and "videoName" fields) or a JSON body referencing a
// remote video by "url" or a held upload by "source". It answers 202 as
// soon as the job is started.
func (h *Handlers) SubmitJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, _ := OwnerFrom(r.Context())

		if allowed, wait := h.limiter.Check(ownerID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many submissions, retry later")
			return
		}

		var (
			req service.SubmitRequest
			ok  bool
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			req, ok = h.stageUpload(w, r)
		} else {
			req, ok = h.decodeSubmit(w, r, ownerID)
		}
		if !ok {
			return
		}
		req.OwnerID = ownerID

		job, err := h.jobs.Submit(r.Context(), req)
		if err != nil {
			h.uploads.Discard(req.InputPath)
			logger.Warn.Printf("submit rejected for owner %s from %s: %v",
				logger.SanitizeForLog(ownerID), clientIP(r, h.behindProxy), err)
			writeError(w, statusFor(err), err.Error())
			return
		}

		logger.Info.Printf("job %s accepted for owner %s", job.ID, logger.SanitizeForLog(ownerID))
		w.Header().Set("Location", "/api/jobs/"+job.ID)
		writeJSON(w, http.StatusAccepted, viewOf(job))
	}
}

func (h *Handlers) decodeSubmit(w http.ResponseWriter, r *http.Request, ownerID string) (service.SubmitRequest, bool) {
	var body submitBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return service.SubmitRequest{}, false
	}
	switch {
	case body.URL != "" && body.Source != "":
		writeError(w, http.StatusBadRequest, "url and source are mutually exclusive")
		return service.SubmitRequest{}, false
	case body.Source != "":
		return h.claimSource(w, body, ownerID)
	case body.URL == "":
		writeError(w, http.StatusBadRequest, "url or source is required without an uploaded file")
		return service.SubmitRequest{}, false
	}

	name := body.VideoName
	if name == "" {
		name = path.Base(body.URL)
	}
	return service.SubmitRequest{
		ID:        body.ID,
		VideoName: validation.SanitizeFilename(name),
		InputURL:  body.URL,
		Settings:  body.Settings,
	}, true
}

// claimSource turns a held upload into the staged source of a new job.
func (h *Handlers) claimSource(w http.ResponseWriter, body submitBody, ownerID string) (service.SubmitRequest, bool) {
	id := body.ID
	if id == "" {
		id = uuid.NewString()
	}
	if !domain.ValidJobID(id) {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidJobID.Error())
		return service.SubmitRequest{}, false
	}

	inputPath, filename, err := h.uploads.Claim(body.Source, ownerID, id)
	if err != nil {
		status := statusFor(err)
		msg := "failed to claim upload"
		if status == http.StatusNotFound {
			msg = "upload not found"
		}
		writeError(w, status, msg)
		return service.SubmitRequest{}, false
	}

	name := body.VideoName
	if name == "" {
		name = filename
	}
	return service.SubmitRequest{
		ID:        id,
		VideoName: validation.SanitizeFilename(name),
		InputPath: inputPath,
		Settings:  body.Settings,
	}, true
}

// parseMultipart reads a multipart body capped at the upload limit. The
// caller removes the form's temporary files.
func (h *Handlers) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	maxBytes := int64(h.maxSizeMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
		}
		return false
	}
	return true
}

// openVideo opens the "file" part and checks its content is a video. It
// returns the extension matching the detected type.
func openVideo(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, string, bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file upload")
		return nil, nil, "", false
	}

	mime, allowed, err := validation.ValidateMagicBytes(file)
	if err != nil {
		_ = file.Close()
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return nil, nil, "", false
	}
	if !allowed {
		_ = file.Close()
		logger.Warn.Printf("rejected upload %s: detected %s", logger.SanitizeForLog(header.Filename), mime)
		writeError(w, http.StatusUnsupportedMediaType, validation.ErrDisallowedFileType.Error())
		return nil, nil, "", false
	}
	return file, header, validation.Extension(mime), true
}

// UploadSource holds an uploaded video for a job submitted later with the
// returned upload id as its "source".
func (h *Handlers) UploadSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, _ := OwnerFrom(r.Context())

		if !h.parseMultipart(w, r) {
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, ext, ok := openVideo(w, r)
		if !ok {
			return
		}
		defer func() { _ = file.Close() }()

		name := r.FormValue("videoName")
		if name == "" {
			name = header.Filename
		}
		name = validation.SanitizeFilename(name)

		uploadID, err := h.uploads.Hold(ownerID, name, ext, file)
		if err != nil {
			writeError(w, statusFor(err), "failed to save upload")
			return
		}

		logger.Info.Printf("upload %s held for owner %s", uploadID, logger.SanitizeForLog(ownerID))
		writeJSON(w, http.StatusCreated, UploadView{ID: uploadID, VideoName: name})
	}
}

func (h *Handlers) stageUpload(w http.ResponseWriter, r *http.Request) (service.SubmitRequest, bool) {
	if !h.parseMultipart(w, r) {
		return service.SubmitRequest{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var settings domain.JobSettings
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
			return service.SubmitRequest{}, false
		}
	}

	id := r.FormValue("id")
	if id == "" {
		id = uuid.NewString()
	}
	if !domain.ValidJobID(id) {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidJobID.Error())
		return service.SubmitRequest{}, false
	}

	file, header, ext, ok := openVideo(w, r)
	if !ok {
		return service.SubmitRequest{}, false
	}
	defer func() { _ = file.Close() }()

	inputPath, err := h.uploads.Stage(id, "upload"+ext, file)
	if err != nil {
		writeError(w, statusFor(err), "failed to save upload")
		return service.SubmitRequest{}, false
	}

	name := r.FormValue("videoName")
	if name == "" {
		name = header.Filename
	}
	return service.SubmitRequest{
		ID:        id,
		VideoName: validation.SanitizeFilename(name),
		InputPath: inputPath,
		Settings:  settings,
	}, true
}

func (h *Handlers) GetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := h.ownedJob(w, r)
		if !ok {
			return
		}
		if wantsHTML(r) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := templates.Status(domain.NotificationFor(job)).Render(r.Context(), w); err != nil {
				logger.Warn.Printf("failed to render status of job %s: %v", job.ID, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, viewOf(job))
	}
}

// wantsHTML reports whether the client asked for a status fragment rather
// than JSON.
func wantsHTML(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (h *Handlers) ListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, _ := OwnerFrom(r.Context())

		jobs, err := h.jobs.ListByOwner(r.Context(), ownerID)
		if err != nil {
			logger.Error.Printf("list jobs for %s: %v", logger.SanitizeForLog(ownerID), err)
			writeError(w, http.StatusInternalServerError, "failed to list jobs")
			return
		}

		views := make([]JobView, 0, len(jobs))
		for _, job := range jobs {
			views = append(views, viewOf(job))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// DownloadVideo serves one published result as an attachment named after
// the original video.
func (h *Handlers) DownloadVideo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := h.ownedJob(w, r)
		if !ok {
			return
		}

		index, err := strconv.Atoi(r.PathValue("n"))
		if err != nil || index < 0 || index >= len(job.ResultPaths) {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}

		name := path.Base(job.ResultPaths[index])
		filePath := filepath.Join(h.publicDir, name)
		if _, err := os.Stat(filePath); err != nil {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}

		download := validation.DownloadName(job.VideoName, index, filepath.Ext(name))
		w.Header().Set("Content-Disposition", validation.ContentDisposition(download, false))
		http.ServeFile(w, r, filePath)
	}
}

// ownedJob loads the job named in the path. Jobs of other owners are
// reported as missing.
func (h *Handlers) ownedJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	ownerID, _ := OwnerFrom(r.Context())

	job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error.Printf("get job %s: %v", logger.SanitizeForLog(r.PathValue("id")), err)
		}
		writeError(w, statusFor(err), "job not found")
		return nil, false
	}
	if job.OwnerID != ownerID {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobExists), errors.Is(err, fs.ErrExist):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrNoInput),
		errors.Is(err, domain.ErrInvalidJobID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// clientIP is the remote address, or the first X-Forwarded-For hop when
// running behind a trusted proxy.
func clientIP(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return logger.SanitizeForLog(strings.TrimSpace(first))
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return logger.SanitizeForLog(r.RemoteAddr)
	}
	return host
}
