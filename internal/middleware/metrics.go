package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// MetricsAuthMiddleware puts basic auth in front of the Prometheus scrape
// endpoint. Scrapers use their own credentials, not the API token.
type MetricsAuthMiddleware struct {
	user    [sha256.Size]byte
	pass    [sha256.Size]byte
	enabled bool
}

// NewMetricsAuthMiddleware creates the middleware. With no username and no
// password the endpoint is open.
func NewMetricsAuthMiddleware(username, password string) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		user:    sha256.Sum256([]byte(username)),
		pass:    sha256.Sum256([]byte(password)),
		enabled: username != "" || password != "",
	}
}

func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.enabled && !m.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="quotaledger metrics"`)
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized compares fixed-size digests so neither value's length leaks.
func (m *MetricsAuthMiddleware) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], m.user[:])
	passOK := subtle.ConstantTimeCompare(p[:], m.pass[:])
	return userOK&passOK == 1
}
