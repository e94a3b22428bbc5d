package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/smartstore-copilot/internal/client"
	"github.com/kjstillabower/smartstore-copilot/internal/models"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
)

// alertConditions are the weather[0].main values that raise a delivery alert.
var alertConditions = map[string]struct{}{
	"Rain":         {},
	"Thunderstorm": {},
	"Snow":         {},
}

// IsAlertCondition reports whether condition should raise a delivery alert.
// Matching is exact.
func IsAlertCondition(condition string) bool {
	_, ok := alertConditions[condition]
	return ok
}

// WeatherService proxies current-weather lookups. Every call goes upstream.
type WeatherService struct {
	client client.WeatherClient
}

func NewWeatherService(c client.WeatherClient) *WeatherService {
	return &WeatherService{client: c}
}

// FetchWeather returns the current weather for city. City is echoed back as
// given. Upstream failures are returned unchanged so callers can use
// client.ErrorMessage and errors.As with *client.UpstreamError.
func (s *WeatherService) FetchWeather(ctx context.Context, city string) (models.WeatherResult, error) {
	start := time.Now()
	logger := loggerFromContext(ctx)
	observability.RecordWeatherQuery(city)

	obs, err := s.client.CurrentWeather(ctx, city)
	if err != nil {
		logger.Warn("weather lookup failed",
			zap.String("city", city),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.WeatherResult{}, fmt.Errorf("fetch weather for %s: %w", city, err)
	}

	result := models.WeatherResult{
		City:        city,
		Condition:   obs.Condition,
		Description: obs.Description,
		Temperature: obs.Temperature,
		Alert:       IsAlertCondition(obs.Condition),
	}
	if result.Alert {
		observability.WeatherAlertsTotal.WithLabelValues(obs.Condition).Inc()
	}
	logger.Debug("weather served",
		zap.String("city", city),
		zap.String("condition", obs.Condition),
		zap.Bool("alert", result.Alert),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}
