package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"cadastra/pkg/requestcontext"
)

// ClientMetadata extracts the client IP, raw User-Agent and a parsed
// browser/OS platform string from the request and adds them to the context.
// Audit events use these for enrichment. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPFromRequest(r)
		rawUA := r.Header.Get("User-Agent")

		platform := ""
		if rawUA != "" {
			ua := useragent.New(rawUA)
			name, version := ua.Browser()
			platform = name + "/" + version + " " + ua.OS()
		}

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, rawUA, platform)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func clientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr is host:port.
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}
