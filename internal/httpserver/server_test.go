package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	cfgpkg "github.com/taoyao-code/evo-gateway/internal/config"
	appmetrics "github.com/taoyao-code/evo-gateway/internal/metrics"
	"go.uber.org/zap"
)

func newTestServer(ready bool, swagger bool) *Server {
	gin.SetMode(gin.TestMode)
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	return New(cfg, Options{
		MetricsPath:    "/metrics",
		MetricsHandler: appmetrics.Handler(reg),
		Swagger:        swagger,
		ReadyFn:        func() bool { return ready },
		Logger:         zap.NewNop(),
	})
}

func TestHealthzReadyzMetrics(t *testing.T) {
	srv := newTestServer(true, false)

	tests := []struct {
		path string
		code int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/swagger/index.html", http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		srv.Handler().ServeHTTP(rr, req)
		if rr.Code != tt.code {
			t.Fatalf("%s code=%d, want %d", tt.path, rr.Code, tt.code)
		}
	}
}

func TestReadyzNotReady(t *testing.T) {
	srv := newTestServer(false, false)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz not-ready code=%d", rr.Code)
	}
}

func TestSwaggerAndRegister(t *testing.T) {
	srv := newTestServer(true, true)
	srv.Register(func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	})

	for _, path := range []string{"/swagger/doc.json", "/ping"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s code=%d", path, rr.Code)
		}
	}
}
