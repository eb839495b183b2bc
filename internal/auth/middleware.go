package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-nova/amplipi-preamp/internal/models"
)

const (
	// HeaderName carries the access key.
	HeaderName       = "X-API-Key"
	apiKeyQueryParam = "api-key"
)

// Middleware rejects requests without a valid key unless in open mode. The
// key is taken from the X-API-Key header or the api-key query parameter.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(HeaderName)
		if key == "" {
			key = r.URL.Query().Get(apiKeyQueryParam)
		}
		if name, ok := s.Verify(key); ok {
			slog.Debug("auth: accepted", "key", name, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(&models.AppError{Code: "UNAUTHORIZED", Message: "missing or invalid access key"})
	})
}
