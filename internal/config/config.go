package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	RequestTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int

	CORSAllowedOrigins []string

	GeocodingEnabled        bool
	GeocodingURL            string
	GeocodingUserAgent      string
	GeocodingTimeout        time.Duration
	GeocodingRetryAttempts  int
	GeocodingRetryBaseDelay time.Duration
	GeocodingRetryMaxDelay  time.Duration

	GeocodingEnrichMissingCity bool

	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	SamplerSeed uint64

	TrackedCities []string
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Geocoding struct {
		Enabled           *bool  `yaml:"enabled"`
		URL               string `yaml:"url"`
		UserAgent         string `yaml:"user_agent"`
		Timeout           string `yaml:"timeout"`
		RetryMaxAttempts  int    `yaml:"retry_max_attempts"`
		RetryBaseDelay    string `yaml:"retry_base_delay"`
		RetryMaxDelay     string `yaml:"retry_max_delay"`
		EnrichMissingCity bool   `yaml:"enrich_missing_city"`
		CircuitBreaker    struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"geocoding"`

	Assistant struct {
		SamplerSeed uint64 `yaml:"sampler_seed"`
	} `yaml:"assistant"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) relative
// to the working directory, then applies env overrides. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "config", env+".yaml"))
}

// LoadFile reads configuration from path, then applies env overrides, defaults and validation.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("SERVER_PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8000"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = trimAll(fc.CORS.AllowedOrigins)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	cfg.GeocodingEnabled = true
	if fc.Geocoding.Enabled != nil {
		cfg.GeocodingEnabled = *fc.Geocoding.Enabled
	}
	if v := strings.TrimSpace(os.Getenv("GEOCODING_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GEOCODING_ENABLED: %w", err)
		}
		cfg.GeocodingEnabled = enabled
	}
	cfg.GeocodingURL = strings.TrimSpace(os.Getenv("GEOCODING_URL"))
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = strings.TrimSpace(fc.Geocoding.URL)
	}
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = "https://nominatim.openstreetmap.org"
	}
	cfg.GeocodingUserAgent = strings.TrimSpace(fc.Geocoding.UserAgent)
	if cfg.GeocodingUserAgent == "" {
		cfg.GeocodingUserAgent = "pastcast-service/1.0"
	}
	cfg.GeocodingTimeout = parseDurationOrZero(fc.Geocoding.Timeout, 3*time.Second)
	cfg.GeocodingRetryAttempts = fc.Geocoding.RetryMaxAttempts
	if cfg.GeocodingRetryAttempts <= 0 {
		cfg.GeocodingRetryAttempts = 2
	}
	cfg.GeocodingRetryBaseDelay = parseDuration(fc.Geocoding.RetryBaseDelay, 200*time.Millisecond)
	cfg.GeocodingRetryMaxDelay = parseDuration(fc.Geocoding.RetryMaxDelay, 2*time.Second)
	cfg.GeocodingEnrichMissingCity = fc.Geocoding.EnrichMissingCity

	cfg.CircuitBreakerFailureThreshold = fc.Geocoding.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Geocoding.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Geocoding.CircuitBreaker.Timeout, 30*time.Second)

	cfg.SamplerSeed = fc.Assistant.SamplerSeed
	cfg.TrackedCities = trimAll(fc.Metrics.TrackedCities)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return trimAll(strings.Split(s, ","))
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// validate performs post-load validation. The request timeout is raised above
// the geocoding timeout when enrichment can run inside a request.
func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be a number in 1-65535, got %q", cfg.ServerPort)
	}
	if cfg.GeocodingEnabled {
		if cfg.GeocodingTimeout <= 0 {
			return fmt.Errorf("geocoding.timeout must be positive")
		}
		if !strings.HasPrefix(cfg.GeocodingURL, "http://") && !strings.HasPrefix(cfg.GeocodingURL, "https://") {
			return fmt.Errorf("geocoding.url must be an http(s) URL, got %q", cfg.GeocodingURL)
		}
		if cfg.RequestTimeout <= cfg.GeocodingTimeout {
			cfg.RequestTimeout = cfg.GeocodingTimeout + time.Second
		}
	}
	if cfg.GeocodingRetryMaxDelay < cfg.GeocodingRetryBaseDelay {
		return fmt.Errorf("geocoding.retry_max_delay (%s) must be >= retry_base_delay (%s)",
			cfg.GeocodingRetryMaxDelay, cfg.GeocodingRetryBaseDelay)
	}
	return nil
}
