package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the request's RemoteAddr field
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the leftmost X-Forwarded-For entry
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"
)

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	Source IPSourceType

	// TrustProxy must be set for proxy headers to be honored at all.
	// Without it RemoteAddr is always used.
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration, which ignores proxy headers
func DefaultIPConfig() *IPConfig {
	return &IPConfig{Source: IPSourceRemoteAddr}
}

type clientIPKey struct{}

// ClientIP returns the client IP stored by ClientIPMiddleware, or the host
// part of RemoteAddr when the middleware did not run.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return cleanIP(r.RemoteAddr)
}

// ClientIPMiddleware extracts the client IP once and stores it in the request context
func ClientIPMiddleware(config *IPConfig) Middleware {
	if config == nil {
		config = DefaultIPConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey{}, extractClientIP(r, config))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractClientIP(r *http.Request, config *IPConfig) string {
	var ip string
	if config.TrustProxy {
		switch config.Source {
		case IPSourceXForwardedFor:
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip = strings.TrimSpace(strings.Split(xff, ",")[0])
			}
		case IPSourceXRealIP:
			ip = strings.TrimSpace(r.Header.Get("X-Real-IP"))
		}
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return cleanIP(ip)
}

// cleanIP strips the port from host:port and [v6]:port forms
func cleanIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
