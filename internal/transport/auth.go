package transport

import (
	mcperrors "letta-mcp-server/internal/errors"
	"letta-mcp-server/internal/server"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// bearerAuth checks Authorization headers against a bcrypt hash. Verified
// tokens are remembered so bcrypt runs once per distinct token.
type bearerAuth struct {
	hash     []byte
	mu       sync.RWMutex
	verified map[string]bool
}

func newBearerAuth(hash string) *bearerAuth {
	a := &bearerAuth{verified: make(map[string]bool)}
	if hash != "" {
		a.hash = []byte(hash)
	}
	return a
}

// enabled reports whether a token hash is configured
func (a *bearerAuth) enabled() bool {
	return len(a.hash) > 0
}

func (a *bearerAuth) check(token string) bool {
	if !a.enabled() {
		return true
	}
	if token == "" {
		return false
	}
	a.mu.RLock()
	ok := a.verified[token]
	a.mu.RUnlock()
	if ok {
		return true
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(token)) != nil {
		return false
	}
	a.mu.Lock()
	a.verified[token] = true
	a.mu.Unlock()
	return true
}

// middleware rejects unauthenticated requests and tags the context with the
// caller's address, which rate limits and audit records key on
func (a *bearerAuth) middleware(handler *mcperrors.MCPErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.check(bearerToken(r)) {
				handler.HandleHTTPError(r.Context(), w, mcperrors.NewUnauthorizedError("missing or invalid bearer token"))
				return
			}
			ctx := server.WithClient(r.Context(), clientAddr(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "http:" + host
}
