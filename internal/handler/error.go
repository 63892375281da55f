package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes and writes the JSON
// envelope {"error":{"code","message"}}.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	op := domain.ErrorOp(err)

	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, op, status)

	writeJSONError(w, status, code, message)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.ESTORAGE, domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// ValidationErrorResponse writes field-level errors.
// It accepts both domain.ValidationError and validator.ValidationErrors.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var fields map[string]string

	var ve *domain.ValidationError
	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &ve):
		fields = ve.Fields
	case errors.As(err, &vErrs):
		fields = make(map[string]string, len(vErrs))
		for _, fe := range vErrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	default:
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"field_count", len(fields),
		"path", r.URL.Path,
	)

	writeJSON(w, http.StatusBadRequest, JSONError{Error: JSONErrorBody{
		Code:    domain.EINVALID,
		Message: "Validation failed",
		Fields:  fields,
	}})
}

// fieldMessage turns a validator failure into a short client message.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gtefield":
		return "must not be before " + fe.Param()
	default:
		return "is invalid"
	}
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err)
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// 5xx are server-side failures; 4xx are expected client errors
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, JSONError{Error: JSONErrorBody{Code: code, Message: message}})
}

// writeJSON writes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError is a typed response structure for API errors.
type JSONError struct {
	Error JSONErrorBody `json:"error"`
}

// JSONErrorBody is the inner object of JSONError.
type JSONErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
