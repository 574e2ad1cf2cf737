// Package templates renders the HTML fragments htmx clients swap in for a
// job's status.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/bnema/videocut/internal/domain"
)

// pollInterval is how often a pending fragment asks for a fresh copy of
// itself.
const pollInterval = "every 2s"

// Status picks the fragment matching the state carried by n.
func Status(n domain.Notification) templ.Component {
	switch n.Status {
	case domain.JobStatusDone:
		return StatusDone(n.JobID, n.Videos)
	case domain.JobStatusError:
		return StatusFailed(n.JobID, n.Error)
	default:
		return StatusPolling(n.JobID, n.Status, n.Step)
	}
}

// StatusPolling shows a job that has not finished and re-fetches itself
// until it does.
func StatusPolling(jobID string, status domain.JobStatus, step domain.StepKind) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div id="%s" class="job-status job-%s" hx-get="%s" hx-trigger="%s" hx-swap="outerHTML">`,
			fragmentID(jobID), templ.EscapeString(string(status)), templ.EscapeString(jobURL(jobID)), pollInterval)
		fmt.Fprintf(&b, `<span class="status">%s</span>`, templ.EscapeString(string(status)))
		if step != "" {
			fmt.Fprintf(&b, `<span class="step">%s</span>`, templ.EscapeString(string(step)))
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// StatusDone lists the published videos of a finished job.
func StatusDone(jobID string, videos []string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div id="%s" class="job-status job-done"><span class="status">done</span><ul class="videos">`, fragmentID(jobID))
		for i, v := range videos {
			href := templ.EscapeString(string(templ.URL(v)))
			fmt.Fprintf(&b, `<li><video controls preload="metadata" src="%s"></video><a href="%s" download>video %d</a></li>`, href, href, i+1)
		}
		b.WriteString(`</ul></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// StatusFailed explains why a job ended in error.
func StatusFailed(jobID string, jobErr *domain.JobError) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		msg := "unknown error"
		kind := ""
		if jobErr != nil {
			msg = jobErr.Message
			kind = string(jobErr.Kind)
		}
		var b strings.Builder
		fmt.Fprintf(&b, `<div id="%s" class="job-status job-error" role="alert">`, fragmentID(jobID))
		b.WriteString(`<span class="status">error</span>`)
		if kind != "" {
			fmt.Fprintf(&b, `<span class="kind">%s</span>`, templ.EscapeString(kind))
		}
		if jobErr != nil && jobErr.Step != "" {
			fmt.Fprintf(&b, `<span class="step">%s</span>`, templ.EscapeString(string(jobErr.Step)))
		}
		fmt.Fprintf(&b, `<p class="message">%s</p></div>`, templ.EscapeString(msg))
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func fragmentID(jobID string) string {
	return templ.EscapeString("job-" + jobID)
}

func jobURL(jobID string) string {
	return "/api/jobs/" + jobID
}
