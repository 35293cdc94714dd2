package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureThroughMiddleware(req *http.Request) RequestInfo {
	var captured RequestInfo
	handler := CaptureRequestInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestInfoFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return captured
}

func TestCaptureRequestInfo(t *testing.T) {
	t.Run("uses the remote address", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/2fa/challenge", nil)
		req.RemoteAddr = "203.0.113.9:4455"
		req.Header.Set("User-Agent", "licensemart-web/2.4")

		info := captureThroughMiddleware(req)
		assert.Equal(t, "203.0.113.9", info.IP)
		assert.Equal(t, "licensemart-web/2.4", info.UserAgent)
	})

	t.Run("prefers the first forwarded address", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/2fa/challenge", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

		info := captureThroughMiddleware(req)
		assert.Equal(t, "198.51.100.7", info.IP, "The client address should come from X-Forwarded-For")
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/2fa/challenge", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set("X-Real-IP", "192.0.2.44")

		info := captureThroughMiddleware(req)
		assert.Equal(t, "192.0.2.44", info.IP)
	})

	t.Run("missing context value yields zero info", func(t *testing.T) {
		info := RequestInfoFromContext(context.Background())
		assert.Empty(t, info.IP)
		assert.Empty(t, info.UserAgent)
	})
}

func TestRequestInfoMetadata(t *testing.T) {
	info := RequestInfo{IP: "203.0.113.9", UserAgent: "licensemart-ios/5.1"}
	meta := info.Metadata()
	assert.Equal(t, "203.0.113.9", meta.IP)
	assert.Equal(t, "licensemart-ios/5.1", meta.UserAgent)
}
