package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kjstillabower/smartstore-copilot/internal/circuitbreaker"
	"github.com/kjstillabower/smartstore-copilot/internal/models"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
	"github.com/kjstillabower/smartstore-copilot/internal/reqctx"
)

// WeatherClient fetches the current weather for a city.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, city string) (models.Observation, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// DefaultErrorMessage is reported when the upstream error body carries no message.
const DefaultErrorMessage = "Failed to get weather"

// UpstreamError is a non-200 response from the weather provider.
type UpstreamError struct {
	StatusCode int
	Message    string // upstream "message" field, or DefaultErrorMessage
	Err        error  // sentinel matching the status class
}

func (e *UpstreamError) Error() string { return e.Message }

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrorMessage returns the text to show a caller for err: the upstream
// message for an UpstreamError, the error text otherwise.
func ErrorMessage(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "weather provider temporarily unavailable"
	}
	return err.Error()
}

// OpenWeatherClient calls the OpenWeatherMap current-weather endpoint. One
// request per lookup; it does not retry.
type OpenWeatherClient struct {
	apiKey  string
	apiURL  *url.URL
	timeout time.Duration
	client  *http.Client
	tracer  trace.Tracer
	breaker *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient builds a client for apiURL. An empty apiKey is
// allowed: the provider then answers 401 and callers see its message.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL: %q needs scheme and host", apiURL)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  u,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("github.com/kjstillabower/smartstore-copilot/internal/client"),
	}, nil
}

// SetCircuitBreaker guards upstream calls with cb. Only transport failures,
// 5xx and 429 responses count against it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// IsBreakerFailure reports whether err should count against the circuit breaker.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrLocationNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500 && ue.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

type openWeatherError struct {
	Message string `json:"message"`
}

// CurrentWeather returns the provider's current reading for city.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, city string) (models.Observation, error) {
	var obs models.Observation
	call := func(ctx context.Context) error {
		var err error
		obs, err = c.callAPI(ctx, city)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return models.Observation{}, err
	}
	return obs, nil
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (models.Observation, error) {
	ctx, span := c.tracer.Start(ctx, "openweathermap.current",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("weather.city", city)),
	)
	defer span.End()

	obs, err := c.do(ctx, city)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorMessage(err))
	}
	return obs, err
}

func (c *OpenWeatherClient) do(ctx context.Context, city string) (models.Observation, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.Observation{}, fmt.Errorf("build request: %w", err)
	}
	if corrID := reqctx.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		// *url.Error carries the request URL, and with it the appid query parameter.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return models.Observation{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.Observation{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Observation{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.Observation{}, newUpstreamError(resp.StatusCode, body)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Observation{}, fmt.Errorf("parse response: %w", err)
	}
	if len(apiResp.Weather) == 0 {
		return models.Observation{}, errors.New("parse response: no weather conditions")
	}

	return mapResponse(apiResp, city), nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	u := *c.apiURL
	params := u.Query()
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func newUpstreamError(statusCode int, body []byte) *UpstreamError {
	msg := DefaultErrorMessage
	var e openWeatherError
	if json.Unmarshal(body, &e) == nil && strings.TrimSpace(e.Message) != "" {
		msg = e.Message
	}

	var sentinel error
	switch {
	case statusCode == http.StatusUnauthorized:
		sentinel = ErrInvalidAPIKey
	case statusCode == http.StatusNotFound:
		sentinel = ErrLocationNotFound
	case statusCode == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case statusCode >= 500:
		sentinel = ErrUpstreamFailure
	}
	return &UpstreamError{StatusCode: statusCode, Message: msg, Err: sentinel}
}

func mapResponse(apiResp openWeatherResponse, city string) models.Observation {
	location := apiResp.Name
	if location == "" {
		location = city
	}
	return models.Observation{
		Location:    location,
		Condition:   apiResp.Weather[0].Main,
		Description: apiResp.Weather[0].Description,
		Temperature: apiResp.Main.Temp,
		Humidity:    apiResp.Main.Humidity,
		WindSpeed:   apiResp.Wind.Speed,
		Timestamp:   time.Now(),
	}
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}
