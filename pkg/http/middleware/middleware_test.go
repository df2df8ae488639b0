package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	applogger "PriceAgent/pkg/logger"

	"github.com/labstack/echo/v4"
)

func newEcho() *echo.Echo {
	e := echo.New()
	l := applogger.Nop()
	e.Use(Recover(l), Metrics(l, time.Second), CORS(CORSConfig{
		AllowOrigins: []string{"http://dashboard.local"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/panic", func(c echo.Context) error { panic("boom") })
	return e
}

func TestRecoverReturns500(t *testing.T) {
	rec := httptest.NewRecorder()
	newEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	e := newEcho()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "http://dashboard.local")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "http://dashboard.local" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "http://evil.local")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Fatalf("origin should not be allowed, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("request should still be served, got %d", rec.Code)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{101: "1xx", 204: "2xx", 302: "3xx", 409: "4xx", 503: "5xx"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Fatalf("%d: got %s want %s", code, got, want)
		}
	}
}
