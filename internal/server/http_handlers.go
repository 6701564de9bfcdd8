package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"resumeforge/internal/ai"
	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

const healthCheckTimeout = 15 * time.Second

// healthReporter is implemented by ai.Router
type healthReporter interface {
	Health(ctx context.Context) map[types.TaskKind]map[string]any
	Stats() map[types.TaskKind]map[string]any
}

// healthHandler provides a health check endpoint including AI model status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":   "healthy",
		"service":  "resumeforge",
		"version":  s.Version,
		"sessions": s.sessions.Len(),
	}

	overallHealthy := true
	if reporter, ok := s.client.(healthReporter); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		aiStatus := reporter.Health(ctx)
		response["ai_models"] = aiStatus
		for _, status := range aiStatus {
			if modelUnavailable(status["model"]) {
				overallHealthy = false
			}
		}
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func modelUnavailable(v any) bool {
	info, ok := v.(*ai.ModelInfo)
	return ok && info != nil && !info.Available
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "resumeforge",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"active_sessions":        s.sessions.Len(),
			"api_keys_configured":    s.apiKeyCount(),
		},
	}

	if reporter, ok := s.client.(healthReporter); ok {
		response["circuit_breakers"] = reporter.Stats()
	}

	if s.keyWatcher != nil {
		response["vault_key_watcher"] = s.keyWatcher.Status()
	}

	// Add rate limiting stats if enabled
	if s.limiter != nil {
		response["rate_limiting"] = s.limiter.Stats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	if r.Header.Get("Content-Type") != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// statusFor maps an application error to the HTTP status reported for it
func statusFor(err error) int {
	appErr, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case errors.ErrCodeWorkflowBusy:
		return http.StatusConflict
	case errors.ErrCodeWorkflowGuard, errors.ErrCodeInvalidRequest:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case errors.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeJobFetchFailed:
		return http.StatusBadGateway
	}

	switch appErr.Kind() {
	case errors.KindIngestionFailed, errors.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case errors.KindTransportFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeAppError writes err with the status statusFor picks for it
func writeAppError(w http.ResponseWriter, title string, err error) {
	status := statusFor(err)
	response := ErrorResponse{Error: title, Message: err.Error()}

	if appErr, ok := errors.As(err); ok {
		response.Message = appErr.Message
		response.Code = appErr.Code
		response.Kind = string(appErr.Kind())
		if len(appErr.Context) > 0 {
			response.Details = appErr.Context
		}
	}
	writeJSON(w, status, response)
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
