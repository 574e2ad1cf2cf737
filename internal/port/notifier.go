package port

import "github.com/bnema/videocut/internal/domain"

// Notifier pushes a notification to the owner's live connections. It
// reports whether any connection received it and must not block.
type Notifier interface {
	Notify(ownerID string, n domain.Notification) bool
}
