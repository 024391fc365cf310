package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

type contextKeyAuth string

// ActorKey is the context key for the authenticated actor name.
const ActorKey contextKeyAuth = "actor"

// APIKeyAuth returns an HTTP middleware that validates the X-API-Key
// header against the configured key hashes (hex-encoded SHA-256 of the raw
// key, mapped to an actor name). On success the actor name is attached to
// the request context; it ends up in the audit trail of every mutation.
//
// With no keys configured authentication is disabled and the actor falls
// back to the X-Actor header, for development setups.
func APIKeyAuth(keyHashes map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keyHashes) == 0 {
				actor := r.Header.Get("X-Actor")
				if actor == "" {
					actor = "anonymous"
				}
				next.ServeHTTP(w, r.WithContext(
					context.WithValue(r.Context(), ActorKey, actor)))
				return
			}

			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			sum := sha256.Sum256([]byte(raw))
			hash := hex.EncodeToString(sum[:])

			for stored, name := range keyHashes {
				if subtle.ConstantTimeCompare([]byte(stored), []byte(hash)) == 1 {
					next.ServeHTTP(w, r.WithContext(
						context.WithValue(r.Context(), ActorKey, name)))
					return
				}
			}
			writeAuthError(w, http.StatusUnauthorized, "invalid API key")
		})
	}
}

// Actor extracts the authenticated actor name from the context.
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(ActorKey).(string); ok && a != "" {
		return a
	}
	return "anonymous"
}

func writeAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}
