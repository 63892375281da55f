package middleware

import (
	"encoding/json"
	"net/http"
)

// Stack composes middleware so the first argument runs outermost.
//
// Example:
//
//	protected := middleware.Stack(tokenMw.Handler, limiter.Limit)
//	mux.Handle("GET /v1/tier-limits", protected(handler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// writeJSONError writes the same error envelope the handlers use.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
