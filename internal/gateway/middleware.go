package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/monitoring"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	requestIDContextKey contextKey = "request_id"

	// PrincipalHeader carries the authenticated caller identity. Verifying
	// it is the transport collaborator's job; the core trusts attribution.
	PrincipalHeader = "X-Medilock-Principal"
)

// PrincipalFromContext returns the attributed caller principal
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(principalContextKey).(string)
	return principal
}

// RequestIDFromContext returns the request-scoped id
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}

// RequestIDMiddleware assigns each request a unique id
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalMiddleware extracts the attributed principal and rejects
// unattributed requests
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := r.Header.Get(PrincipalHeader)
		if principal == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error": "missing caller principal",
				"code":  "MISSING_PRINCIPAL",
			})
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs each request and records its metrics
func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			duration := time.Since(start)
			monitoring.RecordHTTPRequest(r.Method, r.URL.Path, recorder.status, duration)

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": recorder.status,
				"duration_ms": duration.Milliseconds(),
				"request_id":  RequestIDFromContext(r.Context()),
				"principal":   PrincipalFromContext(r.Context()),
			})
			if recorder.status >= 400 {
				entry.Warn("HTTP request completed with error")
			} else {
				entry.Info("HTTP request completed")
			}
		})
	}
}
