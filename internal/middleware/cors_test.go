package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	wrapped := CORS([]string{"https://crm.example.com"})(okHandler())

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/quota/evaluate", nil)
		req.Header.Set("Origin", "https://crm.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		// Browsers send the requested header names lowercased.
		req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://crm.example.com" {
			t.Errorf("expected allowed origin, got %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "authorization,content-type" {
			t.Errorf("expected requested headers to be allowed, got %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPost {
			t.Errorf("expected POST to be allowed, got %q", got)
		}
	})

	t.Run("preflight asking for an unlisted header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/tier-limits", nil)
		req.Header.Set("Origin", "https://crm.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		req.Header.Set("Access-Control-Request-Headers", "x-admin-override")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected preflight to be refused, got allow-origin %q", got)
		}
	})

	t.Run("request from unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/tier-limits", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS header, got %q", got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("non-preflight requests still reach the handler, got %d", rec.Code)
		}
	})
}
