package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/pastcast-service/internal/assistant"
	"github.com/kjstillabower/pastcast-service/internal/estimator"
	"github.com/kjstillabower/pastcast-service/internal/geocode"
	"github.com/kjstillabower/pastcast-service/internal/models"
	"github.com/kjstillabower/pastcast-service/internal/observability"
)

// ErrGeocodingDisabled is returned by the geocoding operations when no geocoder is configured.
var ErrGeocodingDisabled = errors.New("geocoding disabled")

// Config tunes optional behavior of ForecastService.
type Config struct {
	// EnrichMissingCity resolves a missing city name through the reverse
	// geocoder before estimating.
	EnrichMissingCity bool
	// EnrichTimeout bounds a single enrichment lookup (default 2s).
	EnrichTimeout time.Duration
}

// ForecastService is the service layer over the estimator, the chat
// classifier, the metric sampler and the optional geocoder.
type ForecastService struct {
	geocoder geocode.Geocoder
	sampler  *assistant.Sampler
	metrics  *observability.Metrics
	cfg      Config
}

// NewForecastService wires the service. A nil geocoder disables geocoding and
// city enrichment; a nil sampler gets a time-seeded one; nil metrics get a private set.
func NewForecastService(geocoder geocode.Geocoder, sampler *assistant.Sampler, metrics *observability.Metrics, cfg Config) *ForecastService {
	if sampler == nil {
		sampler = assistant.NewSeededSampler(0)
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 2 * time.Second
	}
	return &ForecastService{geocoder: geocoder, sampler: sampler, metrics: metrics, cfg: cfg}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// Probability produces the report for one location. An absent city name
// becomes the "Selected Location" placeholder unless EnrichMissingCity is
// set, in which case the reverse-geocoded city is used and may switch on the
// cool-city rule. The only error is the context's, when the caller gave up
// during enrichment.
func (s *ForecastService) Probability(ctx context.Context, loc models.Location, dr models.DateRange, mode models.DatasetMode, includeInsights bool) (models.WeatherReport, error) {
	loc = s.resolveCity(ctx, loc)
	if err := ctx.Err(); err != nil {
		return models.WeatherReport{}, err
	}
	report := estimator.Estimate(loc, dr, mode, includeInsights)
	s.metrics.RecordEstimate(report.Location.CityName, string(report.DatasetMode))
	loggerFromContext(ctx).Debug("probability estimated",
		zap.String("city", report.Location.CityName),
		zap.String("dataset_mode", string(report.DatasetMode)),
		zap.Float64("good_weather", report.Probabilities.GoodWeather.Probability))
	return report, nil
}

// Compare evaluates up to estimator.MaxComparisonLocations locations
// concurrently and returns the reports in input order with a summary.
func (s *ForecastService) Compare(ctx context.Context, locs []models.Location, dr models.DateRange, mode models.DatasetMode) (models.ComparisonResponse, error) {
	locs = estimator.CapLocations(locs)
	reports := make([]models.WeatherReport, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range locs {
		g.Go(func() error {
			resolved := s.resolveCity(gctx, loc)
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = estimator.Estimate(resolved, dr, mode, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ComparisonResponse{}, fmt.Errorf("compare locations: %w", err)
	}

	for _, r := range reports {
		s.metrics.RecordEstimate(r.Location.CityName, string(r.DatasetMode))
	}
	s.metrics.ComparisonsTotal.Inc()
	return models.ComparisonResponse{
		ComparisonResults: reports,
		Summary:           estimator.Summarize(reports, dr),
	}, nil
}

// Chat answers a free-text message from the scripted rule table.
func (s *ForecastService) Chat(ctx context.Context, message string) string {
	res := assistant.Match(message)
	s.metrics.ChatResponsesTotal.WithLabelValues(res.Rule).Inc()
	loggerFromContext(ctx).Debug("chat answered", zap.String("rule", res.Rule))
	return res.Response
}

// MetricProbability samples a mock probability for the requested metric.
func (s *ForecastService) MetricProbability(ctx context.Context, req models.MetricRequest) models.MetricResponse {
	p := s.sampler.SampleProbability(req.Metric)
	s.metrics.MetricSamplesTotal.WithLabelValues(assistant.Kind(req.Metric)).Inc()
	return models.MetricResponse{
		Probability: p,
		Location:    req.Location,
		Date:        req.Date,
		Metric:      req.Metric,
		Message:     fmt.Sprintf("Weather probability for %s in %s on %s: %d%%", req.Metric, req.Location, req.Date, p),
	}
}

// ReverseGeocode resolves coordinates to a place.
func (s *ForecastService) ReverseGeocode(ctx context.Context, lat, lon float64) (models.Place, error) {
	if s.geocoder == nil {
		return models.Place{}, ErrGeocodingDisabled
	}
	return s.geocoder.Reverse(ctx, lat, lon)
}

// SearchLocation resolves free text to a place.
func (s *ForecastService) SearchLocation(ctx context.Context, query string) (models.Place, error) {
	if s.geocoder == nil {
		return models.Place{}, ErrGeocodingDisabled
	}
	return s.geocoder.Search(ctx, query)
}

// GeocodingEnabled reports whether a geocoder is configured.
func (s *ForecastService) GeocodingEnabled() bool {
	return s.geocoder != nil
}

// Geocoder returns the configured geocoder, or nil.
func (s *ForecastService) Geocoder() geocode.Geocoder {
	return s.geocoder
}

// resolveCity fills a missing city name from the reverse geocoder when
// enrichment is on. Failures keep the location unchanged.
func (s *ForecastService) resolveCity(ctx context.Context, loc models.Location) models.Location {
	if !s.cfg.EnrichMissingCity || s.geocoder == nil || strings.TrimSpace(loc.CityName) != "" {
		return loc
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.EnrichTimeout)
	defer cancel()
	place, err := s.geocoder.Reverse(lookupCtx, loc.Latitude, loc.Longitude)
	if err != nil {
		loggerFromContext(ctx).Warn("city enrichment failed",
			zap.Float64("latitude", loc.Latitude),
			zap.Float64("longitude", loc.Longitude),
			zap.String("category", string(geocode.CategorizeError(err))),
			zap.Error(err))
		return loc
	}
	if place.City != "" {
		loc.CityName = place.City
	}
	return loc
}
