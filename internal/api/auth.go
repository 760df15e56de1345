package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/kiro-claude-bridge/internal/apierror"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError renders err as the Anthropic error envelope of spec §7.
func writeError(w http.ResponseWriter, err error) {
	envelope, status := apierror.NewEnvelope(err)
	writeJSON(w, status, envelope)
}

// bearerOrAPIKey extracts the caller-supplied key from either the
// `x-api-key` header or an `Authorization: Bearer <key>` header, per
// spec §6.
func bearerOrAPIKey(r *http.Request) string {
	if v := r.Header.Get("x-api-key"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// apiKeyAuth gates north-side routes behind the configured apiKey.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.configStore.Get().APIKey
		got := bearerOrAPIKey(r)
		if got == "" {
			writeError(w, apierror.New(apierror.KindAuthMissing, "missing x-api-key or Authorization header", nil))
			return
		}
		if got != want {
			writeError(w, apierror.New(apierror.KindAuthInvalid, "invalid api key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminAuth gates admin routes behind the configured adminApiKey.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.configStore.Get().AdminAPIKey
		got := bearerOrAPIKey(r)
		if got == "" {
			writeError(w, apierror.New(apierror.KindAuthMissing, "missing x-api-key or Authorization header", nil))
			return
		}
		if got != want {
			writeError(w, apierror.New(apierror.KindAuthInvalid, "invalid admin api key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
