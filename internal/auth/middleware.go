package auth

import (
	"net/http"
	"strings"
)

// Skipper lets requests bypass authentication.
type Skipper func(r *http.Request) bool

// PublicPaths skips health checks, metrics and provider webhooks, which carry
// their own signature.
func PublicPaths(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz", r.URL.Path == "/metrics":
		return true
	case strings.HasPrefix(r.URL.Path, "/webhooks/"):
		return true
	}
	return false
}

// Middleware enforces bearer-token authentication.
type Middleware struct {
	Config  Config
	Skipper Skipper
}

// NewMiddleware constructs a Middleware. A nil skipper authenticates every request.
func NewMiddleware(cfg Config, skipper Skipper) Middleware {
	return Middleware{Config: cfg, Skipper: skipper}
}

// Wrap wraps next with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.parseRequest(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="healthsync"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, ErrInvalidToken
	}
	return Parse(header[len(prefix):], m.Config)
}
