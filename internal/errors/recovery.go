package errors

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// RecoveryMiddleware returns a middleware that recovers from panics raised by
// the numerical core and answers with a JSON 500.
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Recovered from panic",
						zap.Any("error", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("stack", string(debug.Stack())),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": http.StatusText(http.StatusInternalServerError),
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// StatusCode maps an error to the HTTP status the server reports for it.
// Validation kinds are client errors; everything else is a server error.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindInvalidArity, KindInvalidMatrixShape, KindConfiguration,
		KindInvalidElementType, KindNoFreeParameters, KindParameterCountMismatch:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
