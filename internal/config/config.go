package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultLowStockThreshold is the stock level below which an item is reported as low.
const DefaultLowStockThreshold = 10

// Config holds service and watcher configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	DataDir       string
	InventoryFile string // absolute or relative to DataDir
	DriversFile   string
	ReviewsFile   string

	LowStockThreshold int

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	TrackedCities     []string
	CityMaxLength     int

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CORSAllowedOrigins []string

	ShutdownTimeout         time.Duration
	ShutdownInFlightTimeout time.Duration

	DegradedWindow       time.Duration
	DegradedErrorPct     int
	OverloadWindow       time.Duration
	OverloadThresholdPct int

	WatchInterval    time.Duration
	WatchTargets     []WatchTarget
	WatchMetricsPort string

	AMQPURL      string
	AMQPExchange string

	TracingEnabled     bool
	TracingZipkinURL   string
	TracingServiceName string
}

// WatchTarget names one file the watcher process polls.
type WatchTarget struct {
	Name  string
	Path  string
	Label string // console heading printed above changed content
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Data struct {
		Dir           string `yaml:"dir"`
		InventoryFile string `yaml:"inventory_file"`
		DriversFile   string `yaml:"drivers_file"`
		ReviewsFile   string `yaml:"reviews_file"`
	} `yaml:"data"`

	Inventory struct {
		LowStockThreshold *int `yaml:"low_stock_threshold"`
	} `yaml:"inventory"`

	WeatherAPI struct {
		URL           string   `yaml:"url"`
		Timeout       string   `yaml:"timeout"`
		TrackedCities []string `yaml:"tracked_cities"`
		CityMaxLength int      `yaml:"city_max_length"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          bool   `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"health"`

	Watcher struct {
		Interval    string `yaml:"interval"`
		MetricsPort string `yaml:"metrics_port"`
		Targets     []struct {
			Name  string `yaml:"name"`
			Path  string `yaml:"path"`
			Label string `yaml:"label"`
		} `yaml:"targets"`
	} `yaml:"watcher"`

	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`

	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ZipkinURL   string `yaml:"zipkin_url"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"tracing"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml,
// after loading a .env file from the working directory if one exists.
// A missing config file is an error only when ENV_NAME names it explicitly.
// The weather API key may be empty; the weather endpoint then reports upstream auth errors.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	explicitEnv := env != ""
	if !explicitEnv {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		if explicitEnv {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8000")

	cfg.DataDir = firstNonEmpty(os.Getenv("DATA_DIR"), fc.Data.Dir, "data")
	cfg.InventoryFile = cfg.dataPath(firstNonEmpty(fc.Data.InventoryFile, "inventory.csv"))
	cfg.DriversFile = cfg.dataPath(firstNonEmpty(fc.Data.DriversFile, "drivers.csv"))
	cfg.ReviewsFile = cfg.dataPath(firstNonEmpty(fc.Data.ReviewsFile, "reviews.csv"))

	cfg.LowStockThreshold = DefaultLowStockThreshold
	if fc.Inventory.LowStockThreshold != nil {
		cfg.LowStockThreshold = *fc.Inventory.LowStockThreshold
	}

	cfg.WeatherAPIKey = strings.TrimSpace(os.Getenv("WEATHER_API_KEY"))
	if cfg.WeatherAPIKey == "" {
		key, err := loadSecretKey(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.TrackedCities = fc.WeatherAPI.TrackedCities
	cfg.CityMaxLength = fc.WeatherAPI.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}

	cfg.WatchInterval = parseDurationOrZero(fc.Watcher.Interval, 3*time.Second)
	cfg.WatchMetricsPort = fc.Watcher.MetricsPort
	for _, t := range fc.Watcher.Targets {
		cfg.WatchTargets = append(cfg.WatchTargets, WatchTarget{
			Name:  strings.TrimSpace(t.Name),
			Path:  cfg.dataPath(t.Path),
			Label: t.Label,
		})
	}
	if len(cfg.WatchTargets) == 0 {
		cfg.WatchTargets = []WatchTarget{
			{Name: "inventory", Path: cfg.InventoryFile, Label: "Inventory file updated:"},
			{Name: "drivers", Path: cfg.DriversFile, Label: "Driver safety file updated:"},
		}
	}

	cfg.AMQPURL = firstNonEmpty(os.Getenv("AMQP_URL"), fc.AMQP.URL)
	cfg.AMQPExchange = firstNonEmpty(fc.AMQP.Exchange, "smartstore.snapshots")

	cfg.TracingEnabled = fc.Tracing.Enabled
	cfg.TracingZipkinURL = firstNonEmpty(fc.Tracing.ZipkinURL, "http://localhost:9411/api/v2/spans")
	cfg.TracingServiceName = firstNonEmpty(fc.Tracing.ServiceName, "smartstore-copilot")

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Target returns the watch target with the given name.
func (c *Config) Target(name string) (WatchTarget, bool) {
	for _, t := range c.WatchTargets {
		if t.Name == name {
			return t, true
		}
	}
	return WatchTarget{}, false
}

// dataPath resolves p against DataDir unless it is absolute.
func (c *Config) dataPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func loadSecretKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
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
// Returns zero or negative durations as-is (caller should handle fallback).
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

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.WatchInterval <= 0 {
		return fmt.Errorf("watcher.interval must be positive")
	}
	if cfg.LowStockThreshold < 0 {
		return fmt.Errorf("inventory.low_stock_threshold must not be negative, got %d", cfg.LowStockThreshold)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	seen := make(map[string]struct{}, len(cfg.WatchTargets))
	for _, t := range cfg.WatchTargets {
		if t.Name == "" || t.Path == "" {
			return fmt.Errorf("watcher.targets entries need name and path")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("watcher.targets: duplicate name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}
