package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/pastcast-service/internal/circuitbreaker"
	"github.com/kjstillabower/pastcast-service/internal/estimator"
	"github.com/kjstillabower/pastcast-service/internal/geocode"
	"github.com/kjstillabower/pastcast-service/internal/health"
	"github.com/kjstillabower/pastcast-service/internal/models"
	"github.com/kjstillabower/pastcast-service/internal/observability"
	"github.com/kjstillabower/pastcast-service/internal/service"
	"github.com/kjstillabower/pastcast-service/internal/validation"
)

// ServiceName is reported by /health.
const ServiceName = "pastcast-service"

// minSearchQueryLength is the shortest free-text query forwarded to the geocoder.
const minSearchQueryLength = 3

const metricParamsMessage = "Missing required parameters: location, date, and metric are required."

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecastService *service.ForecastService
	monitor         *health.Monitor
	logger          *zap.Logger
	rateLimiter     *rate.Limiter
	metrics         *observability.Metrics
}

// NewHandler returns a new Handler. A nil limiter disables rate limiting in
// the /test load simulation; nil metrics get a private set.
func NewHandler(
	forecastService *service.ForecastService,
	monitor *health.Monitor,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
	metrics *observability.Metrics,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Handler{
		forecastService: forecastService,
		monitor:         monitor,
		logger:          logger,
		rateLimiter:     rateLimiter,
		metrics:         metrics,
	}
}

// PostProbability handles POST /api/weather/probability.
func (h *Handler) PostProbability(w http.ResponseWriter, r *http.Request) {
	var req models.ProbabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	loc, dr, err := validation.ProbabilityInput(req)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	report, err := h.forecastService.Probability(r.Context(), loc, dr, models.ParseDatasetMode(req.DatasetMode), req.IncludeAIInsights)
	if err != nil {
		h.monitor.Tracker().RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.monitor.Tracker().RecordSuccess()
	writeJSON(w, http.StatusOK, report)
}

// PostCompare handles POST /api/weather/compare.
func (h *Handler) PostCompare(w http.ResponseWriter, r *http.Request) {
	var req models.CompareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	locs, dr, err := validation.CompareInput(req, estimator.MaxComparisonLocations)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	resp, err := h.forecastService.Compare(r.Context(), locs, dr, models.ParseDatasetMode(req.DatasetMode))
	if err != nil {
		h.monitor.Tracker().RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.monitor.Tracker().RecordSuccess()
	writeJSON(w, http.StatusOK, resp)
}

// PostMetric handles POST /api/weather/metric.
func (h *Handler) PostMetric(w http.ResponseWriter, r *http.Request) {
	var req models.MetricRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req, err := validation.MetricInput(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", metricParamsMessage)
		return
	}
	h.monitor.Tracker().RecordSuccess()
	writeJSON(w, http.StatusOK, h.forecastService.MetricProbability(r.Context(), req))
}

// PostChat handles POST /api/chat and /ai/chat. A body that does not decode
// is answered as an empty message.
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		loggerFromRequest(r).Debug("chat body not decodable", zap.Error(err))
		req.Message = ""
	}
	h.monitor.Tracker().RecordSuccess()
	writeJSON(w, http.StatusOK, models.ChatResponse{Response: h.forecastService.Chat(r.Context(), req.Message)})
}

// GetReverseGeocode handles GET /api/geocode/reverse?lat=&lon=.
func (h *Handler) GetReverseGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "lat and lon query parameters must be numbers")
		return
	}
	if err := validation.Coordinates(lat, lon); err != nil {
		writeValidationError(w, r, err)
		return
	}

	place, err := h.forecastService.ReverseGeocode(r.Context(), lat, lon)
	if err != nil {
		h.writeGeocodeError(w, r, err)
		return
	}
	h.monitor.Tracker().RecordSuccess()
	writeJSON(w, http.StatusOK, place)
}

// GetSearchGeocode handles GET /api/geocode/search?q=.
func (h *Handler) GetSearchGeocode(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(query)) < minSearchQueryLength {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
			"q must be at least "+strconv.Itoa(minSearchQueryLength)+" characters")
		return
	}

	place, err := h.forecastService.SearchLocation(r.Context(), query)
	if err != nil {
		h.writeGeocodeError(w, r, err)
		return
	}
	h.monitor.Tracker().RecordSuccess()
	writeJSON(w, http.StatusOK, place)
}

// writeGeocodeError maps geocoder failures to responses. Only upstream
// failures count as errors for the degraded check.
func (h *Handler) writeGeocodeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrGeocodingDisabled):
		writeError(w, r, http.StatusNotImplemented, "GEOCODING_DISABLED", "Geocoding is disabled")
	case errors.Is(err, geocode.ErrPlaceNotFound):
		h.monitor.Tracker().RecordSuccess()
		writeError(w, r, http.StatusNotFound, "PLACE_NOT_FOUND", "No place found")
	default:
		h.monitor.Tracker().RecordError()
		loggerFromRequest(r).Warn("geocode failed",
			zap.String("category", string(geocode.CategorizeError(err))),
			zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "GEOCODER_UNAVAILABLE", "Geocoding service unavailable")
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.monitor.Observe()

	checks := map[string]string{"geocoder": "disabled"}
	if geo := h.forecastService.Geocoder(); geo != nil {
		checks["geocoder"] = breakerCheck(geo.BreakerState())
	}
	resp := map[string]interface{}{
		"status":    result.Status,
		"service":   ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.StatusCode, resp)
}

func breakerCheck(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.StateOpen:
		return "unhealthy"
	case circuitbreaker.StateHalfOpen:
		return "recovering"
	default:
		return "healthy"
	}
}

// NotFound is the router's fallback for unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed is the router's fallback for known paths with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method "+r.Method+" not allowed")
}

// decodeBody decodes a JSON request body into v. On failure it writes
// 400 INVALID_BODY and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		loggerFromRequest(r).Debug("invalid request body", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return false
	}
	return true
}

// loggerFromRequest returns the request-scoped logger set by CorrelationIDMiddleware.
func loggerFromRequest(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value
// without HTML escaping, so thresholds such as ">20 km/h" stay literal.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeValidationError writes 400 VALIDATION_ERROR with the offending fields in the message.
func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

// writeServiceError maps a service failure. A request that ran out of time
// gets 504; anything else is an internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		loggerFromRequest(r).Debug("request deadline reached", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out")
		return
	}
	loggerFromRequest(r).Error("service error", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
