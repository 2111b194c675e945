package adapthttp

import (
	"net/http"
	"strings"
)

// ClientIP derives the caller's address from proxy headers: the first
// X-Forwarded-For entry, then X-Real-IP, else "unknown".
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}

// accountHeader carries the identity asserted by a forward-auth proxy.
const accountHeader = "Remote-User"

// apiKey keys the general API policy by account when a trusted forward-auth
// proxy vouches for one, otherwise by client address. Without a trusted
// proxy the header is client-controlled and ignored.
func (s *Server) apiKey(r *http.Request) string {
	if s.opts.TrustForwardAuth {
		if account := strings.TrimSpace(r.Header.Get(accountHeader)); account != "" {
			return "account:" + account
		}
	}
	return "ip:" + ClientIP(r)
}
