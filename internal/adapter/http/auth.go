package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/bnema/videocut/internal/infrastructure/logger"
)

type AuthService interface {
	ValidateToken(token string) (ownerID string, err error)
}

type ownerKey struct{}

// OwnerFrom returns the authenticated owner stored by AuthMiddleware.
func OwnerFrom(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerKey{}).(string)
	return ownerID, ok && ownerID != ""
}

func withOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// bearerToken reads the token from the Authorization header, falling back
// to the "token" query parameter for EventSource clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func AuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="videocut"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		ownerID, err := authSvc.ValidateToken(token)
		if err != nil {
			logger.Debug.Printf("rejected token from %s: %v", logger.SanitizeForLog(r.RemoteAddr), err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="videocut", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next(w, r.WithContext(withOwner(r.Context(), ownerID)))
	}
}
