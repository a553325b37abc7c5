package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/pastcast-service/internal/circuitbreaker"
	"github.com/kjstillabower/pastcast-service/internal/models"
	"github.com/kjstillabower/pastcast-service/internal/observability"
)

// Geocoder resolves coordinates to place names and back.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (models.Place, error)
	Search(ctx context.Context, query string) (models.Place, error)
	BreakerState() circuitbreaker.State
}

var (
	ErrPlaceNotFound   = errors.New("place not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrBadResponse     = errors.New("unexpected geocoder response")
	ErrClientError     = errors.New("geocoder rejected request")
	ErrNetwork         = errors.New("geocoder unreachable")
)

// Operation labels for metrics.
const (
	OpReverse = "reverse"
	OpSearch  = "search"
)

// BreakerComponent names the geocoder circuit in metrics and health checks.
const BreakerComponent = "nominatim"

// Config holds Nominatim client parameters.
type Config struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Breaker        circuitbreaker.Config
}

// NominatimClient talks to an OpenStreetMap Nominatim instance.
type NominatimClient struct {
	baseURL   *url.URL
	userAgent string
	timeout   time.Duration
	client    *http.Client

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	breaker *circuitbreaker.CircuitBreaker
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewNominatimClient validates cfg and returns a client. A nil metrics gets a private set.
func NewNominatimClient(cfg Config, metrics *observability.Metrics) (*NominatimClient, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid geocoder URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid geocoder URL %q: need http(s) scheme and host", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("geocoder user agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	bc := cfg.Breaker
	if bc.Component == "" {
		bc.Component = BreakerComponent
	}
	userHook := bc.OnStateChange
	bc.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.CircuitBreakerState.WithLabelValues(bc.Component).Set(float64(to))
		if userHook != nil {
			userHook(from, to)
		}
	}
	metrics.CircuitBreakerState.WithLabelValues(bc.Component).Set(float64(circuitbreaker.StateClosed))

	return &NominatimClient{
		baseURL:        u,
		userAgent:      cfg.UserAgent,
		timeout:        cfg.Timeout,
		client:         &http.Client{Timeout: cfg.Timeout},
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		breaker:        circuitbreaker.New(bc),
		metrics:        metrics,
	}, nil
}

type nominatimAddress struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

// Reverse resolves coordinates to a place. Coordinates Nominatim cannot
// resolve yield a place labelled with the coordinates themselves.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (models.Place, error) {
	key := fmt.Sprintf("%s:%.5f,%.5f", OpReverse, lat, lon)
	return c.coalesce(ctx, key, func(ctx context.Context) (models.Place, error) {
		params := url.Values{}
		params.Set("format", "json")
		params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
		params.Set("addressdetails", "1")

		body, err := c.get(ctx, OpReverse, "reverse", params)
		if err != nil {
			return models.Place{}, err
		}
		var p nominatimPlace
		if err := json.Unmarshal(body, &p); err != nil {
			return models.Place{}, fmt.Errorf("%w: parse reverse response: %v", ErrBadResponse, err)
		}
		return toPlace(p, lat, lon), nil
	})
}

// Search resolves free text to the best-matching place.
func (c *NominatimClient) Search(ctx context.Context, query string) (models.Place, error) {
	query = strings.TrimSpace(query)
	key := OpSearch + ":" + strings.ToLower(query)
	return c.coalesce(ctx, key, func(ctx context.Context) (models.Place, error) {
		params := url.Values{}
		params.Set("format", "json")
		params.Set("q", query)
		params.Set("limit", "1")
		params.Set("addressdetails", "1")

		body, err := c.get(ctx, OpSearch, "search", params)
		if err != nil {
			return models.Place{}, err
		}
		var results []nominatimPlace
		if err := json.Unmarshal(body, &results); err != nil {
			return models.Place{}, fmt.Errorf("%w: parse search response: %v", ErrBadResponse, err)
		}
		if len(results) == 0 {
			return models.Place{}, fmt.Errorf("%w: %q", ErrPlaceNotFound, query)
		}
		lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
		lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
		if errLat != nil || errLon != nil {
			return models.Place{}, fmt.Errorf("%w: bad coordinates %q,%q", ErrBadResponse, results[0].Lat, results[0].Lon)
		}
		place := toPlace(results[0], lat, lon)
		if results[0].DisplayName != "" {
			place.Label = results[0].DisplayName
		}
		return place, nil
	})
}

// BreakerState returns the geocoder circuit state.
func (c *NominatimClient) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// coalesce joins concurrent identical lookups onto one upstream call. The
// shared call is detached from any single caller's cancellation; each caller
// still stops waiting when its own context ends. Nothing outlives the call.
func (c *NominatimClient) coalesce(ctx context.Context, key string, fn func(context.Context) (models.Place, error)) (models.Place, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		budget := time.Duration(c.retryAttempts)*c.timeout + c.retryMaxDelay*time.Duration(c.retryAttempts)
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
		defer cancel()
		return fn(shared)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.GeocodeCoalescedTotal.Inc()
		}
		if res.Err != nil {
			c.metrics.GeocodeErrorsTotal.WithLabelValues(string(CategorizeError(res.Err))).Inc()
			return models.Place{}, res.Err
		}
		return res.Val.(models.Place), nil
	case <-ctx.Done():
		return models.Place{}, ctx.Err()
	}
}

// get performs one logical request with retry and circuit breaking.
func (c *NominatimClient) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBaseDelay
	bo.MaxInterval = c.retryMaxDelay
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retryAttempts-1)), ctx)

	var body []byte
	operation := func() error {
		var permanent error
		err := c.breaker.Call(ctx, func() error {
			b, err := c.callAPI(ctx, op, path, params)
			if err != nil && !isRetryable(err) {
				// Not an upstream health signal; keep it out of the breaker counts.
				permanent = err
				return nil
			}
			body = b
			return err
		})
		if permanent != nil {
			return backoff.Permanent(permanent)
		}
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrUpstreamFailure, err))
		}
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		c.metrics.GeocodeRetriesTotal.Inc()
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *NominatimClient) callAPI(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL.JoinPath(path)
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.GeocodeCallsTotal.WithLabelValues(op, "error").Inc()
		c.metrics.GeocodeDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	c.metrics.GeocodeCallsTotal.WithLabelValues(op, status).Inc()
	c.metrics.GeocodeDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w", ErrPlaceNotFound)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrClientError, resp.StatusCode)
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, context.DeadlineExceeded)
}

// toPlace builds a place from a Nominatim record. The label joins the first of
// city/town/village with state and country, then falls back to the display
// name, then to the coordinates.
func toPlace(p nominatimPlace, lat, lon float64) models.Place {
	city := firstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village)
	place := models.Place{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: p.DisplayName,
		City:        city,
		State:       p.Address.State,
		Country:     p.Address.Country,
	}
	if p.DisplayName == "" {
		place.Label = CoordinateLabel(lat, lon)
		return place
	}
	var parts []string
	for _, s := range []string{city, p.Address.State, p.Address.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	place.Label = strings.Join(parts, ", ")
	if place.Label == "" {
		place.Label = p.DisplayName
	}
	return place
}

// CoordinateLabel formats coordinates to four decimals.
func CoordinateLabel(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
