package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// RouterConfig controls which routes are mounted and how API routes are bounded.
type RouterConfig struct {
	RequestTimeout time.Duration
	TestingMode    bool
	InFlight       *InFlightTracker
}

// NewRouter mounts every route on a new mux.Router. CORS is applied by the
// caller around the returned router.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = CorrelationIDMiddleware(h.logger)(http.HandlerFunc(h.NotFound))
	router.MethodNotAllowedHandler = CorrelationIDMiddleware(h.logger)(http.HandlerFunc(h.MethodNotAllowed))

	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware(h.metrics, cfg.InFlight))
	router.Use(RecoverMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	limited := RateLimitMiddleware(h.rateLimiter, h.monitor.Tracker(), h.metrics)
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	api := func(f http.HandlerFunc) http.Handler {
		return limited(TimeoutMiddleware(timeout)(f))
	}
	router.Handle("/api/weather/probability", api(h.PostProbability)).Methods(http.MethodPost)
	router.Handle("/api/weather/compare", api(h.PostCompare)).Methods(http.MethodPost)
	router.Handle("/api/weather/metric", api(h.PostMetric)).Methods(http.MethodPost)
	router.Handle("/api/chat", api(h.PostChat)).Methods(http.MethodPost)
	router.Handle("/ai/chat", api(h.PostChat)).Methods(http.MethodPost)
	router.Handle("/api/geocode/reverse", api(h.GetReverseGeocode)).Methods(http.MethodGet)
	router.Handle("/api/geocode/search", api(h.GetSearchGeocode)).Methods(http.MethodGet)

	if cfg.TestingMode {
		h.logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}
	return router
}
