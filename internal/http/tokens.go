package httpx

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// TokenAuth checks per-site script tokens. Comparison is constant time and
// always walks the full token list.
type TokenAuth struct {
	tokens [][]byte
}

// NewTokenAuth returns nil when no tokens are configured, which disables
// the check.
func NewTokenAuth(tokens []string) *TokenAuth {
	var a TokenAuth
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	if len(a.tokens) == 0 {
		return nil
	}
	return &a
}

// Valid reports whether token is accepted. A nil TokenAuth accepts any
// token, including none.
func (a *TokenAuth) Valid(token string) bool {
	if a == nil {
		return true
	}
	if token == "" {
		return false
	}
	ok := 0
	for _, t := range a.tokens {
		ok |= subtle.ConstantTimeCompare(t, []byte(token))
	}
	return ok == 1
}

// normalizeIP strips a port and IPv6 brackets.
func normalizeIP(addr string) string {
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]"); idx > 0 {
			return addr[1:idx]
		}
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// clientIP returns the caller address. Forwarding headers are honoured only
// behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	return normalizeIP(r.RemoteAddr)
}
