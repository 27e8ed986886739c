package runtime

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/oddiya/queueflow/broker"
	errspkg "github.com/oddiya/queueflow/internal/runtime/errors"
	"github.com/oddiya/queueflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/oddiya/queueflow/internal/runtime/logging"
)

// StartAdminAPIServer mounts the administrative HTTP API when enabled. The
// actual listener starts with the other HTTP servers in Start.
func (s *Service) StartAdminAPIServer() {
	if !s.Conf.AdminAPIEnabled {
		return
	}

	port := s.Conf.AdminAPIPort
	if port == 0 {
		port = 8082
	}

	routes := map[string]http.HandlerFunc{
		"POST /api/messages/{category}":       s.handleDispatchMessage,
		"POST /api/messages/{category}/batch": s.handleDispatchBatch,
		"GET /api/queues":                     s.handleListQueues,
		"GET /api/queues/{name}":              s.handleQueueInfo,
		"GET /api/queues/{name}/messages":     s.handleReceiveMessages,
		"DELETE /api/queues/messages":         s.handlePurgeAll,
		"DELETE /api/queues/{name}/messages":  s.handlePurgeQueue,
		"GET /api/health":                     s.handleHealth,
		"OPTIONS /api/":                       s.handlePreflight,
	}
	for pattern, handler := range routes {
		s.RegisterHTTPHandler(port, pattern, s.withAdminMiddleware(handler))
	}
}

// apiError is the uniform error body of the admin API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func (s *Service) withAdminMiddleware(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		s.applyCORSHeaders(w, r)
		s.Logger.Debug("Admin API request", loggingpkg.LogFields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		next(w, r)
	})
}

func (s *Service) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) applyCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if s.Conf == nil || len(s.Conf.AdminAPICORSAllowedOrigins) == 0 {
		return
	}
	origin := s.getAllowedCORSOrigin(r.Header.Get("Origin"))
	if origin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the
// appropriate Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.AdminAPICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, body); err != nil {
		s.Logger.Error("Failed to encode response", err, nil)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

// mapQueueError translates broker and validation errors into HTTP responses.
func (s *Service) mapQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrQueueNotFound):
		s.writeError(w, http.StatusNotFound, "queue_not_found", err.Error())
	case errors.Is(err, broker.ErrPurgeUnsupported):
		s.writeError(w, http.StatusConflict, "purge_unsupported", err.Error())
	case errors.Is(err, errspkg.ErrQueueNameRequired):
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errspkg.IsValidationError(err):
		s.writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		var cfgErr errspkg.ConfigValidationError
		if errors.As(err, &cfgErr) {
			s.writeError(w, http.StatusBadRequest, "unknown_category", err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// newEnvelope returns an empty concrete envelope for the category.
func newEnvelope(category Category) (Envelope, error) {
	switch category {
	case CategoryEmail:
		return &EmailMessage{}, nil
	case CategoryImageProcessing:
		return &ImageProcessingMessage{}, nil
	case CategoryAnalytics:
		return &AnalyticsMessage{}, nil
	case CategoryRecommendation:
		return &RecommendationMessage{}, nil
	case CategoryVideoProcessing:
		return &VideoProcessingMessage{}, nil
	default:
		return nil, errspkg.NewConfigValidationError(fmt.Errorf("%w: %q", errspkg.ErrUnknownCategory, string(category)))
	}
}

// decodeEnvelope builds the concrete envelope for a category from a JSON body.
func decodeEnvelope(category Category, r *http.Request) (Envelope, error) {
	env, err := newEnvelope(category)
	if err != nil {
		return nil, err
	}
	if err := jsoncodec.Decode(r.Body, env); err != nil {
		return nil, errspkg.NewValidationError(string(category), "body", "is not valid JSON")
	}
	return env, nil
}

func (s *Service) handleDispatchMessage(w http.ResponseWriter, r *http.Request) {
	category := Category(r.PathValue("category"))
	env, err := decodeEnvelope(category, r)
	if err != nil {
		s.mapQueueError(w, err)
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), env).Get(r.Context())
	if err != nil {
		s.mapQueueError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"message_id": result.MessageID,
		"queue_name": result.QueueName,
	})
}

func (s *Service) handleDispatchBatch(w http.ResponseWriter, r *http.Request) {
	category := Category(r.PathValue("category"))
	if !category.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown_category", fmt.Sprintf("unknown category %q", string(category)))
		return
	}

	var bodies []jsoncodec.RawMessage
	if err := jsoncodec.Decode(r.Body, &bodies); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON array of envelopes")
		return
	}

	// Undecodable elements fail per entry, like envelopes that decode but do
	// not validate. Only an empty or transport-rejected batch fails whole.
	var undecodable []broker.BatchError
	envs := make([]Envelope, 0, len(bodies))
	for _, raw := range bodies {
		env, err := decodeRawEnvelope(category, raw)
		if err != nil {
			undecodable = append(undecodable, broker.BatchError{
				Code:        "validation_failed",
				Message:     err.Error(),
				SenderFault: true,
			})
			continue
		}
		envs = append(envs, env)
	}

	if len(envs) == 0 && len(undecodable) > 0 {
		s.writeJSON(w, http.StatusAccepted, broker.BatchResult{Failed: undecodable})
		return
	}

	result, err := s.dispatcher.DispatchBatch(r.Context(), category, envs).Get(r.Context())
	if err != nil {
		s.mapQueueError(w, err)
		return
	}

	result.Failed = append(result.Failed, undecodable...)
	s.writeJSON(w, http.StatusAccepted, result)
}

func decodeRawEnvelope(category Category, raw []byte) (Envelope, error) {
	env, err := newEnvelope(category)
	if err != nil {
		return nil, err
	}
	if err := jsoncodec.Unmarshal(raw, env); err != nil {
		return nil, errspkg.NewValidationError(string(category), "body", "is not valid JSON")
	}
	return env, nil
}

func (s *Service) handleListQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := s.AllQueueStatistics(r.Context())
	if err != nil {
		s.mapQueueError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"queues": stats})
}

func (s *Service) handleQueueInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := s.QueueInfo(r.Context(), r.PathValue("name"))
	if err != nil {
		s.mapQueueError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleReceiveMessages(w http.ResponseWriter, r *http.Request) {
	maxMessages := 1
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "max must be a positive integer")
			return
		}
		maxMessages = n
	}

	msgs, err := s.Receive(r.Context(), r.PathValue("name"), maxMessages)
	if err != nil {
		s.mapQueueError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Service) handlePurgeQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.ClearQueue(r.Context(), r.PathValue("name")); err != nil {
		s.mapQueueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePurgeAll(w http.ResponseWriter, r *http.Request) {
	if err := s.ClearAllQueues(r.Context()); err != nil {
		s.mapQueueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.Health(r.Context())
	status := http.StatusOK
	if report.Status != HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}
