package middleware

import (
	"crypto/sha256"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// APITokenMiddleware guards the API with a single shared bearer token whose
// bcrypt hash comes from configuration.
type APITokenMiddleware struct {
	hash    []byte
	enabled bool
	limiter *RateLimiter
	logger  *slog.Logger

	// bcrypt is slow by construction; digests of tokens that already
	// matched skip it.
	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewAPITokenMiddleware creates the middleware. An empty hash disables
// authentication, which config only permits in development. Failed attempts
// are counted per client IP in limiter when it is non-nil.
func NewAPITokenMiddleware(tokenHash string, limiter *RateLimiter, logger *slog.Logger) *APITokenMiddleware {
	return &APITokenMiddleware{
		hash:     []byte(tokenHash),
		enabled:  tokenHash != "",
		limiter:  limiter,
		logger:   logger,
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Handler returns middleware that rejects requests without a valid token.
func (m *APITokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		if m.limiter != nil && m.limiter.Blocked(clientIP) {
			retryAfter := int(m.limiter.TimeUntilReset(clientIP).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSONError(w, http.StatusTooManyRequests, domain.ERATELIMIT, "Too many requests. Please try again later.")
			return
		}

		token, ok := bearerToken(r)
		if !ok || !m.verify(token) {
			if m.limiter != nil {
				m.limiter.RecordFailure(clientIP)
			}
			m.logger.Warn("rejected API token",
				"ip", clientIP,
				"path", r.URL.Path,
				"token_present", ok,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="quotaledger"`)
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *APITokenMiddleware) verify(token string) bool {
	digest := sha256.Sum256([]byte(token))

	m.mu.RLock()
	_, ok := m.verified[digest]
	m.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(m.hash, []byte(token)) != nil {
		return false
	}

	m.mu.Lock()
	m.verified[digest] = struct{}{}
	m.mu.Unlock()
	return true
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HashToken returns the bcrypt hash to store in API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
