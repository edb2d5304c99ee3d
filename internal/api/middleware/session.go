package middleware

import (
	"context"
	"net/http"
	"strings"

	"Artframe/internal/api/handlers"
	"Artframe/internal/core/previews"
)

type contextKey string

const (
	SessionIDKey contextKey = "session_id"
	IdentityKey  contextKey = "identity"
)

// Request headers that scope a preview request.
const (
	SessionIDHeader = "X-Session-ID"
	UserIDHeader    = "X-User-ID"
	UserTierHeader  = "X-User-Tier"
)

const maxSessionIDLength = 128

// RequireSession rejects requests without a well-formed X-Session-ID header and
// loads the session id and requester identity into the request context.
// X-User-ID is optional; X-User-Tier: premium marks premium requesters.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.Header.Get(SessionIDHeader))
		if sessionID == "" {
			handlers.WriteError(w, http.StatusBadRequest, "SessionRequired", "X-Session-ID header is required")
			return
		}
		if !validSessionID(sessionID) {
			handlers.WriteError(w, http.StatusBadRequest, "InvalidSession", "X-Session-ID must be 1-128 characters of [A-Za-z0-9_-]")
			return
		}

		identity := previews.Identity{
			UserID:  strings.TrimSpace(r.Header.Get(UserIDHeader)),
			Premium: strings.EqualFold(strings.TrimSpace(r.Header.Get(UserTierHeader)), "premium"),
		}

		ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
		ctx = context.WithValue(ctx, IdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionID returns the session id loaded by RequireSession, or "".
func GetSessionID(r *http.Request) string {
	id, _ := r.Context().Value(SessionIDKey).(string)
	return id
}

// GetIdentity returns the requester identity loaded by RequireSession.
func GetIdentity(r *http.Request) previews.Identity {
	identity, _ := r.Context().Value(IdentityKey).(previews.Identity)
	return identity
}

// SetTestSession sets the session id and identity in the context for testing purposes.
func SetTestSession(ctx context.Context, sessionID string, identity previews.Identity) context.Context {
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	return context.WithValue(ctx, IdentityKey, identity)
}

func validSessionID(id string) bool {
	if len(id) > maxSessionIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
