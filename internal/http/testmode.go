package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// GetTestStatus handles GET /test. Returns current simulated state.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.monitor.Config()
	window := cfg.DegradedWindow
	if window <= 0 {
		window = cfg.OverloadWindow
	}
	tracker := h.monitor.Tracker()
	errs, _ := tracker.ErrorRate(window)

	resp := map[string]interface{}{
		"total_requests_in_window":  tracker.RequestCount(window),
		"denied_requests_in_window": tracker.DenialCount(window),
		"errors_in_window":          errs,
		"window_length":             window.String(),
		"state":                     h.monitor.Evaluate().Status,
		"config": map[string]interface{}{
			"rate_limit_rps":          cfg.RateLimitRPS,
			"overload_threshold":      h.monitor.OverloadThreshold(),
			"overload_window_seconds": cfg.OverloadWindow.Seconds(),
			"degraded_error_pct":      cfg.DegradedErrorPct,
			"idle_threshold":          cfg.IdleThresholdReqPerMin,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		h.postTestLoad(w, r)
	case "error":
		h.postTestError(w, r)
	case "reset":
		h.postTestReset(w, r)
	case "shutdown":
		h.postTestShutdown(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

// postTestLoad records count simulated requests, passing each through the
// rate limiter when one is configured.
func (h *Handler) postTestLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = 10
	}
	tracker := h.monitor.Tracker()
	var accepted, denied int
	if h.rateLimiter != nil {
		for i := 0; i < body.Count; i++ {
			if h.rateLimiter.Allow() {
				tracker.RecordSuccess()
				accepted++
			} else {
				tracker.RecordDenied()
				h.metrics.RateLimitDeniedTotal.Inc()
				denied++
			}
		}
	} else {
		tracker.RecordSuccessN(body.Count)
		accepted = body.Count
	}
	msg := "Recorded " + strconv.Itoa(accepted) + " accepted"
	if denied > 0 {
		msg += ", " + strconv.Itoa(denied) + " denied"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"action":   "load",
		"message":  msg,
		"state":    h.monitor.Evaluate().Status,
		"accepted": accepted,
		"denied":   denied,
	})
}

// postTestError records count simulated errors (default 1).
func (h *Handler) postTestError(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = 1
	}
	h.monitor.Tracker().RecordErrorN(body.Count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"action":         "error",
		"message":        "Recorded " + strconv.Itoa(body.Count) + " errors",
		"state":          h.monitor.Evaluate().Status,
		"error_rate_pct": h.monitor.ErrorRatePct(),
	})
}

// postTestReset clears tracked traffic and the shutdown flag.
func (h *Handler) postTestReset(w http.ResponseWriter, r *http.Request) {
	h.monitor.Reset()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "reset",
		"message": "All simulated state cleared",
	})
}

// postTestShutdown sets the shutdown flag; /health reports shutting-down afterwards.
func (h *Handler) postTestShutdown(w http.ResponseWriter, r *http.Request) {
	h.monitor.SetShuttingDown(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "shutdown",
		"message": "Shutting-down flag set",
	})
}
