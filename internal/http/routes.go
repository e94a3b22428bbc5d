package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/smartstore-copilot/internal/observability"
	"github.com/kjstillabower/smartstore-copilot/internal/traffic"
)

// RouterOptions configures NewRouter. Zero values disable the matching feature.
type RouterOptions struct {
	RequestTimeout     time.Duration
	RateLimiter        *rate.Limiter
	Traffic            *traffic.Tracker
	InFlight           *InFlightTracker
	CORSAllowedOrigins []string
	Logger             *zap.Logger
}

// NewRouter registers every API route on a mux router and wraps it with CORS.
// The weather route alone gets the request timeout and rate limit, since it is
// the only one that calls upstream.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware(opts.InFlight))

	r.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/inventory/status", h.GetInventoryStatus).Methods(http.MethodGet)
	api.HandleFunc("/inventory/low-stock", h.GetInventoryLowStock).Methods(http.MethodGet)
	api.HandleFunc("/drivers/risk", h.GetDriverRisk).Methods(http.MethodGet)
	api.HandleFunc("/sentiment/reviews", h.GetSentimentReviews).Methods(http.MethodGet)
	api.HandleFunc("/chatbot/query", h.PostChatbotQuery).Methods(http.MethodPost)

	var weather http.Handler = http.HandlerFunc(h.GetWeather)
	if opts.RequestTimeout > 0 {
		weather = TimeoutMiddleware(opts.RequestTimeout)(weather)
	}
	weather = RateLimitMiddleware(opts.RateLimiter, opts.Traffic)(weather)
	api.Handle("/weather/", weather).Methods(http.MethodGet)
	api.Handle("/weather", weather).Methods(http.MethodGet)

	return CORS(r, opts.CORSAllowedOrigins)
}
