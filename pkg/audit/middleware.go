package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// RequestInfo is the transport context recorded alongside audit entries
type RequestInfo struct {
	IP        string
	UserAgent string
}

// contextKey is a value for use with context.WithValue, kept private to the
// package so only this middleware can populate it.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "audit context value " + k.name
}

var requestInfoKey = &contextKey{"RequestInfo"}

// RequestInfoFromHTTP extracts client transport details from a request.
// Proxy headers are preferred over the raw remote address.
func RequestInfoFromHTTP(r *http.Request) RequestInfo {
	return RequestInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// CaptureRequestInfo is an HTTP middleware that stores the request's
// transport details in the context so downstream services can attach them to
// the audit entries they record.
func CaptureRequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), requestInfoKey, RequestInfoFromHTTP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestInfoFromContext returns the transport details captured by
// CaptureRequestInfo, or a zero RequestInfo when none were captured.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if info, ok := ctx.Value(requestInfoKey).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}

// Metadata converts the request info into event metadata, ready for the
// caller to fill in action-specific fields.
func (info RequestInfo) Metadata() EventMetadata {
	return EventMetadata{
		IP:        info.IP,
		UserAgent: info.UserAgent,
	}
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
