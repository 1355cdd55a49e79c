package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newTestRouter(RateLimitMiddleware(NewRateLimiter(rate.Every(time.Hour), 2), nil))

	assert.Equal(t, http.StatusOK, get(r, "/ping", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/ping", nil).Code)
}

func TestRateLimiterIsPerIP(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.Same(t, rl.GetLimiter("10.0.0.1"), rl.GetLimiter("10.0.0.1"))
	assert.NotSame(t, rl.GetLimiter("10.0.0.1"), rl.GetLimiter("10.0.0.2"))
}

func TestSecurityHeaders(t *testing.T) {
	w := get(newTestRouter(SecurityHeadersMiddleware()), "/ping", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://app.example.com", nil, true},
		{"", []string{"https://app.example.com"}, true},
		{"https://app.example.com/", []string{"https://app.example.com"}, true},
		{"https://evil.example.com", []string{"https://app.example.com"}, false},
		{"https://evil.example.com", []string{"*"}, true},
		{"http://localhost:3000", []string{"localhost"}, true},
		{"http://localhost.evil:3000", []string{"localhost"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OriginAllowed(tt.origin, tt.allowed), "%s in %v", tt.origin, tt.allowed)
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := newTestRouter(CORSMiddleware([]string{"https://app.example.com"}))

	w := get(r, "/ping", http.Header{"Origin": {"https://app.example.com"}})
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/ping", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIPWhitelist(t *testing.T) {
	open := NewIPWhitelist(nil)
	assert.True(t, open.IsAllowed("203.0.113.9"))

	wl := NewIPWhitelist([]string{"10.0.0.5", " "})
	assert.True(t, wl.IsAllowed("127.0.0.1"))
	assert.True(t, wl.IsAllowed("10.0.0.5"))
	assert.True(t, wl.IsAllowed("10.0.0.5:4411"))
	assert.False(t, wl.IsAllowed("10.0.0.6"))

	r := newTestRouter(IPWhitelistMiddleware(wl, nil))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.6:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInputValidator(t *testing.T) {
	iv := NewInputValidator()
	assert.True(t, iv.ValidateTenant("acme-corp_1.eu"))
	assert.False(t, iv.ValidateTenant(""))
	assert.False(t, iv.ValidateTenant("acme corp"))
	assert.False(t, iv.ValidateTenant("acme/../globex"))

	assert.False(t, iv.ValidateToken("short"))
	assert.False(t, iv.ValidateToken("aaaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.True(t, iv.ValidateToken("aaaaaaaaaa.bbbbbbbbbb.cccccccccc"))
}
