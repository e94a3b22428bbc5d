package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const dashboardOrigin = "http://localhost:3000"

func newTestRouter(t *testing.T, env *testEnv, limiter *rate.Limiter) http.Handler {
	t.Helper()
	return NewRouter(env.handler, RouterOptions{
		RequestTimeout:     time.Second,
		RateLimiter:        limiter,
		Traffic:            env.traffic,
		InFlight:           &InFlightTracker{},
		CORSAllowedOrigins: []string{dashboardOrigin},
		Logger:             zap.NewNop(),
	})
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/inventory/status", "", http.StatusOK},
		{http.MethodGet, "/api/inventory/low-stock", "", http.StatusOK},
		{http.MethodGet, "/api/drivers/risk", "", http.StatusOK},
		{http.MethodGet, "/api/sentiment/reviews", "", http.StatusOK},
		{http.MethodGet, "/api/weather/?city=Delhi", "", http.StatusOK},
		{http.MethodGet, "/api/weather?city=Delhi", "", http.StatusOK},
		{http.MethodPost, "/api/chatbot/query", `{"question":"hi"}`, http.StatusOK},
		{http.MethodPost, "/api/inventory/status", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/chatbot/query", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			env := newTestEnv(t, nil)
			router := newTestRouter(t, env, nil)
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_CorrelationIDOnEveryResponse(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(t, env, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/drivers/risk", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestRouter_RateLimitOnlyOnWeather(t *testing.T) {
	// Arrange: a single token
	env := newTestEnv(t, nil)
	router := newTestRouter(t, env, rate.NewLimiter(rate.Every(time.Hour), 1))

	// Act
	codes := make([]int, 0, 4)
	for _, path := range []string{"/api/weather/?city=Pune", "/api/weather/?city=Pune", "/api/inventory/status", "/api/inventory/status"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		codes = append(codes, w.Code)
	}

	// Assert
	want := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK, http.StatusOK}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
	if env.weather.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", env.weather.calls)
	}
}

func TestRouter_CORS(t *testing.T) {
	env := newTestEnv(t, nil)
	router := newTestRouter(t, env, nil)

	t.Run("preflight from dashboard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/chatbot/query", nil)
		req.Header.Set("Origin", dashboardOrigin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != dashboardOrigin {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, dashboardOrigin)
		}
	})

	t.Run("simple request from dashboard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/inventory/status", nil)
		req.Header.Set("Origin", dashboardOrigin)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != dashboardOrigin {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, dashboardOrigin)
		}
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Correlation-Id" && got != "X-Correlation-ID" {
			t.Errorf("Access-Control-Expose-Headers = %q", got)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/inventory/status", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})
}
