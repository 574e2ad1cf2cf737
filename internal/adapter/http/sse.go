package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/videocut/internal/adapter/http/templates"
	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/infrastructure/logger"
)

// Gateway is the per-owner subscription side of the notification bus.
type Gateway interface {
	Subscribe(ownerID string) chan domain.Notification
	Unsubscribe(ownerID string, ch chan domain.Notification)
}

const keepAliveInterval = 15 * time.Second

type SSEHandler struct {
	gateway   Gateway
	keepAlive time.Duration
}

func NewSSEHandler(gateway Gateway) *SSEHandler {
	return &SSEHandler{
		gateway:   gateway,
		keepAlive: keepAliveInterval,
	}
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendNotification writes n as a "job" event, or "step" for progress.
func sendNotification(w http.ResponseWriter, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	event := "job"
	if n.Step != "" {
		event = "step"
	}
	sseWrite(w, event, string(data))
	return nil
}

// sendStatusHTML writes n as the same event sendNotification would, with the
// rendered status fragment as its data.
func sendStatusHTML(ctx context.Context, w http.ResponseWriter, n domain.Notification) error {
	var buf bytes.Buffer
	if err := templates.Status(n).Render(ctx, &buf); err != nil {
		return err
	}
	event := "job"
	if n.Step != "" {
		event = "step"
	}
	sseWrite(w, event, buf.String())
	return nil
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Events streams every notification for the authenticated owner until the
// client goes away. With ?format=html the data is a status fragment
// instead of JSON.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := OwnerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing owner")
			return
		}

		ch := h.gateway.Subscribe(ownerID)
		defer h.gateway.Unsubscribe(ownerID, ch)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		ready, _ := json.Marshal(map[string]string{"ownerId": ownerID})
		sseWrite(w, "ready", string(ready))

		send := sendNotification
		if r.URL.Query().Get("format") == "html" {
			send = func(w http.ResponseWriter, n domain.Notification) error {
				return sendStatusHTML(r.Context(), w, n)
			}
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(h.keepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case n, ok := <-ch:
				if !ok {
					return
				}
				if err := send(w, n); err != nil {
					logger.Warn.Printf("sse: failed to encode notification for job %s: %v", n.JobID, err)
				}
			}
		}
	}
}
