package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Metrics Auth Middleware Tests
// =============================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestMetricsAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		header     string
		wantStatus int
	}{
		{"valid credentials", "scraper", "secret123", true, "", http.StatusOK},
		{"no credentials", "", "", false, "", http.StatusUnauthorized},
		{"wrong username", "other", "secret123", true, "", http.StatusUnauthorized},
		{"wrong password", "scraper", "nope", true, "", http.StatusUnauthorized},
		{"empty credentials", "", "", true, "", http.StatusUnauthorized},
		{"malformed header", "", "", false, "Basic notvalidbase64!!!", http.StatusUnauthorized},
	}

	mw := NewMetricsAuthMiddleware("scraper", "secret123")
	wrapped := mw.Handler(okHandler())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			wrapped.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := rec.Header().Get("WWW-Authenticate"); got != `Basic realm="quotaledger metrics"` {
					t.Errorf("unexpected WWW-Authenticate header: %q", got)
				}
				if !strings.Contains(rec.Body.String(), `"unauthorized"`) {
					t.Errorf("expected JSON error body, got %q", rec.Body.String())
				}
			}
		})
	}
}

func TestMetricsAuthMiddleware_DisabledWhenNoCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("", "")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	mw.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 with auth disabled, got %d", rec.Code)
	}
}
