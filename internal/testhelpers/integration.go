//go:build integration

// Package testhelpers builds live dependencies for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/smartstore-copilot/internal/client"
	"github.com/kjstillabower/smartstore-copilot/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey  string
	APIURL  string
	Timeout time.Duration
	AMQPURL string // empty when no broker is available
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/weather"
	}

	return IntegrationTestConfig{
		APIKey:  apiKey,
		APIURL:  apiURL,
		Timeout: 5 * time.Second,
		AMQPURL: os.Getenv("AMQP_URL"),
	}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, cfg.Timeout)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService wraps a live client in a WeatherService.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) *service.WeatherService {
	t.Helper()
	return service.NewWeatherService(SetupIntegrationClient(t, cfg))
}
