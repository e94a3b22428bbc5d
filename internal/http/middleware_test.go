package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/smartstore-copilot/internal/reqctx"
	"github.com/kjstillabower/smartstore-copilot/internal/traffic"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "req-1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			core, logs := observer.New(zapcore.InfoLevel)
			var seenID string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenID = reqctx.CorrelationID(r.Context())
				reqctx.Logger(r.Context()).Info("inside handler")
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Correlation-ID", tt.incoming)
			}
			w := httptest.NewRecorder()

			// Act
			CorrelationIDMiddleware(zap.New(core))(next).ServeHTTP(w, req)

			// Assert
			header := w.Header().Get("X-Correlation-ID")
			if header == "" {
				t.Fatal("X-Correlation-ID response header not set")
			}
			if tt.incoming != "" && header != tt.incoming {
				t.Errorf("header = %q, want %q", header, tt.incoming)
			}
			if seenID != header {
				t.Errorf("context correlation ID = %q, want %q", seenID, header)
			}
			entries := logs.All()
			if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != header {
				t.Errorf("scoped logger entries = %v", entries)
			}
		})
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})

	start := time.Now()
	TimeoutMiddleware(2*time.Second)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("request context has no deadline")
	}
	if d := deadline.Sub(start); d <= 0 || d > 2*time.Second+100*time.Millisecond {
		t.Errorf("deadline in %v, want about 2s", d)
	}
}

func TestTimeoutMiddleware_CancelsSlowHandler(t *testing.T) {
	var ctxErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	})

	TimeoutMiddleware(20*time.Millisecond)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want context.DeadlineExceeded", ctxErr)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// Arrange: one token, refilled hourly
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	tracker := traffic.New(time.Minute)
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	h := RateLimitMiddleware(limiter, tracker)(next)

	// Act
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/weather/?city=Pune", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/weather/?city=Pune", nil))

	// Assert
	if first.Code != http.StatusOK {
		t.Errorf("first status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	if got := tracker.Counts(time.Minute).Denied; got != 1 {
		t.Errorf("denied = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	calls := 0
	h := RateLimitMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	for i := 0; i < 5; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if calls != 5 {
		t.Errorf("handler calls = %d, want 5", calls)
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	inflight := &InFlightTracker{}
	var during int64
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(inflight))
	router.HandleFunc("/api/drivers/risk", func(w http.ResponseWriter, r *http.Request) {
		during = inflight.Count()
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drivers/risk", nil))

	if during != 1 {
		t.Errorf("in-flight during request = %d, want 1", during)
	}
	if got := inflight.Count(); got != 0 {
		t.Errorf("in-flight after request = %d, want 0", got)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestRouteLabel(t *testing.T) {
	var label string
	router := mux.NewRouter()
	router.HandleFunc("/api/weather/", func(w http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/weather/?city=Pune", nil))
	if label != "/api/weather/" {
		t.Errorf("routeLabel() = %q, want /api/weather/", label)
	}

	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("routeLabel() without route = %q, want unmatched", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 429: "4xx", 502: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestStatusRecorder_KeepsFirstStatus(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusInternalServerError)
	if rec.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want %d", rec.statusCode, http.StatusNotFound)
	}
}
