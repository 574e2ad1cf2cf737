package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
)

var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("path contains null byte")
	ErrNoInputs    = errors.New("no input files")
	ErrOutOfRange  = errors.New("trim range starts after the end of the video")
)

// stderrTail bounds how much ffmpeg output ends up in a job error.
const stderrTail = 512

// Converter drives ffmpeg/ffprobe. Every output lands in workDir and is
// prefixed with the job id so concurrent jobs never collide and the reaper
// can attribute leftovers.
type Converter struct {
	workDir string
	ffmpeg  string
	ffprobe string
}

func NewConverter(workDir string) *Converter {
	return &Converter{
		workDir: workDir,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
	}
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return ErrInvalidPath
	}
	return nil
}

func (c *Converter) outputPath(jobID, stage string, index int, ext string) string {
	return filepath.Join(c.workDir, fmt.Sprintf("%s_%s_%d%s", jobID, stage, index, ext))
}

func (c *Converter) Manipulate(ctx context.Context, jobID, path string, m domain.Manipulations) (string, error) {
	if err := validatePath(path); err != nil {
		return "", fmt.Errorf("invalid input path: %w", err)
	}
	out := c.outputPath(jobID, "edit", 0, ".mp4")
	if err := c.run(ctx, manipulateArgs(path, out, m)); err != nil {
		return "", fmt.Errorf("manipulate: %w", err)
	}
	return out, nil
}

func (c *Converter) Trim(ctx context.Context, jobID, path string, ranges []domain.TrimRange) ([]string, error) {
	if err := validatePath(path); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}

	probe, err := c.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	duration := probe.Duration()

	outputs := make([]string, 0, len(ranges))
	for i, r := range ranges {
		if duration > 0 && r.Start >= duration {
			return nil, fmt.Errorf("range %d [%g, %g] of %gs video: %w", i, r.Start, r.End, duration, ErrOutOfRange)
		}
		out := c.outputPath(jobID, "trim", i, ".mp4")
		if err := c.run(ctx, trimArgs(path, out, r)); err != nil {
			return nil, fmt.Errorf("trim range %d: %w", i, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (c *Converter) Concat(ctx context.Context, jobID string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", ErrNoInputs
	}
	// The concat demuxer resolves relative entries against the list file's
	// directory, not the working directory.
	entries := make([]string, len(paths))
	for i, p := range paths {
		if err := validatePath(p); err != nil {
			return "", fmt.Errorf("invalid input path: %w", err)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve input path: %w", err)
		}
		entries[i] = abs
	}

	listPath := filepath.Join(c.workDir, jobID+"_concat.txt")
	if err := os.WriteFile(listPath, []byte(concatList(entries)), 0644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	defer func() { _ = os.Remove(listPath) }()

	out := c.outputPath(jobID, "concat", 0, ".mp4")
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", out,
	}
	if err := c.run(ctx, args); err != nil {
		return "", fmt.Errorf("concat: %w", err)
	}
	return out, nil
}

// Convert transcodes each input to WebM, trying AV1 first and falling back
// to VP9 when the AV1 encoder is unavailable or fails.
func (c *Converter) Convert(ctx context.Context, jobID string, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, ErrNoInputs
	}

	outputs := make([]string, 0, len(paths))
	for i, p := range paths {
		if err := validatePath(p); err != nil {
			return nil, fmt.Errorf("invalid input path: %w", err)
		}
		out := c.outputPath(jobID, "final", i, ".webm")
		if err := c.run(ctx, av1Args(p, out)); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("convert %d: %w", i, ctx.Err())
			}
			if err := c.run(ctx, vp9Args(p, out)); err != nil {
				return nil, fmt.Errorf("both AV1 and VP9 conversion failed for input %d: %w", i, err)
			}
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (c *Converter) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	cmd := exec.CommandContext(ctx, c.ffprobe, args...)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result domain.ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	result.RawJSON = string(output)

	if result.VideoStream() == nil {
		return nil, fmt.Errorf("no video stream found in %s", filepath.Base(inputPath))
	}
	return &result, nil
}

func (c *Converter) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, c.ffmpeg, append([]string{"-hide_banner", "-nostdin"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", err, tail(stderr.String(), stderrTail))
	}
	return nil
}

// manipulateFilter builds the -vf chain. Crop runs before rotation so the
// rectangle is expressed in source coordinates.
func manipulateFilter(m domain.Manipulations) string {
	var filters []string
	if m.Crop != nil {
		filters = append(filters, fmt.Sprintf("crop=iw*%s:ih*%s:iw*%s:ih*%s",
			ftoa(m.Crop.Width), ftoa(m.Crop.Height), ftoa(m.Crop.X), ftoa(m.Crop.Y)))
	}
	switch m.Rotate {
	case 90:
		filters = append(filters, "transpose=1")
	case 180:
		filters = append(filters, "hflip", "vflip")
	case 270:
		filters = append(filters, "transpose=2")
	}
	return strings.Join(filters, ",")
}

func manipulateArgs(in, out string, m domain.Manipulations) []string {
	args := []string{"-i", in}
	if vf := manipulateFilter(m); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, intermediateVideo...)
	if m.DisableAudio {
		args = append(args, "-an")
	} else {
		args = append(args, intermediateAudio...)
	}
	return append(args, "-y", out)
}

func trimArgs(in, out string, r domain.TrimRange) []string {
	args := []string{
		"-ss", ftoa(r.Start),
		"-i", in,
		"-t", ftoa(r.Duration()),
		"-avoid_negative_ts", "make_zero",
	}
	args = append(args, intermediateVideo...)
	args = append(args, intermediateAudio...)
	return append(args, "-y", out)
}

// Intermediates share one codec set so the concat demuxer can stream copy.
var (
	intermediateVideo = []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p"}
	intermediateAudio = []string{"-c:a", "aac", "-b:a", "192k"}
)

func av1Args(in, out string) []string {
	return []string{
		"-i", in,
		"-c:v", "libaom-av1",
		"-crf", "30",
		"-b:v", "0",
		"-cpu-used", "4",
		"-row-mt", "1",
		"-c:a", "libopus",
		"-b:a", "128k",
		"-y", out,
	}
}

func vp9Args(in, out string) []string {
	return []string{
		"-i", in,
		"-c:v", "libvpx-vp9",
		"-crf", "32",
		"-b:v", "0",
		"-row-mt", "1",
		"-c:a", "libopus",
		"-b:a", "128k",
		"-y", out,
	}
}

// concatList renders an ffconcat file. Single quotes in paths are closed,
// escaped and reopened as the demuxer expects.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

var _ port.Editor = (*Converter)(nil)
