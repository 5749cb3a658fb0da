package middleware

import (
	"context"
	"net/http"

	"github.com/mementolabs/memento/internal/api"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// RequireUser extracts the caller's identity from the X-User-ID header and
// rejects requests without one. Identity is trusted from the edge; this
// service sits behind the gateway that authenticates it.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			api.Error(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID returns the caller's user ID from context.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
