package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/smartstore-copilot/internal/circuitbreaker"
	"github.com/kjstillabower/smartstore-copilot/internal/client"
	"github.com/kjstillabower/smartstore-copilot/internal/lifecycle"
	"github.com/kjstillabower/smartstore-copilot/internal/models"
	"github.com/kjstillabower/smartstore-copilot/internal/reqctx"
	"github.com/kjstillabower/smartstore-copilot/internal/service"
	"github.com/kjstillabower/smartstore-copilot/internal/traffic"
	"github.com/kjstillabower/smartstore-copilot/internal/validation"
)

// RootMessage is returned by GET /.
const RootMessage = "SmartStore Copilot API is running"

const maxChatBodyBytes = 1 << 20

// Services are the read paths behind the API.
type Services struct {
	Inventory *service.InventoryService
	Drivers   *service.DriverService
	Sentiment *service.SentimentService
	Weather   *service.WeatherService
	Chatbot   *service.ChatbotService
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DataDir          string
	DegradedWindow   time.Duration
	DegradedErrorPct int
	CityMaxLength    int

	// Overloaded when weather requests in OverloadWindow exceed
	// OverloadThresholdPct of what RateLimitRPS admits. Disabled when RateLimitRPS is 0.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc       Services
	health    HealthConfig
	logger    *zap.Logger
	traffic   *traffic.Tracker
	lifecycle *lifecycle.State

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a Handler. tracker and state may be nil.
func NewHandler(svc Services, health HealthConfig, logger *zap.Logger, tracker *traffic.Tracker, state *lifecycle.State) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = traffic.New(time.Minute)
	}
	if state == nil {
		state = &lifecycle.State{}
	}
	return &Handler{svc: svc, health: health, logger: logger, traffic: tracker, lifecycle: state}
}

type messageResponse struct {
	Message string `json:"message"`
}

type statusErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type inventoryResponse struct {
	Status    string          `json:"status"`
	Inventory []models.Record `json:"inventory"`
	Skipped   int             `json:"skipped"`
}

type lowStockResponse struct {
	Status    string          `json:"status"`
	Threshold int             `json:"threshold"`
	Items     []models.Record `json:"items"`
	Invalid   int             `json:"invalid"`
	Skipped   int             `json:"skipped"`
}

type driversResponse struct {
	Status  string          `json:"status"`
	Drivers []models.Record `json:"drivers"`
	Skipped int             `json:"skipped"`
}

type sentimentResponse struct {
	Status string `json:"status"`
	models.SentimentSummary
}

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: RootMessage})
}

// GetInventoryStatus handles GET /api/inventory/status.
func (h *Handler) GetInventoryStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Inventory.Status(r.Context())
	if err != nil {
		writeSnapshotError(w, r, err, "Failed to read inventory file")
		return
	}
	writeJSON(w, http.StatusOK, inventoryResponse{Status: "success", Inventory: snap.Records, Skipped: snap.Skipped})
}

// GetInventoryLowStock handles GET /api/inventory/low-stock.
func (h *Handler) GetInventoryLowStock(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Inventory.LowStock(r.Context())
	if err != nil {
		writeSnapshotError(w, r, err, "Failed to read inventory file")
		return
	}
	writeJSON(w, http.StatusOK, lowStockResponse{
		Status:    "success",
		Threshold: report.Threshold,
		Items:     report.Items,
		Invalid:   report.Invalid,
		Skipped:   report.Skipped,
	})
}

// GetDriverRisk handles GET /api/drivers/risk.
func (h *Handler) GetDriverRisk(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Drivers.Risks(r.Context())
	if err != nil {
		writeSnapshotError(w, r, err, "Failed to read driver risk file")
		return
	}
	writeJSON(w, http.StatusOK, driversResponse{Status: "success", Drivers: snap.Records, Skipped: snap.Skipped})
}

// GetSentimentReviews handles GET /api/sentiment/reviews.
func (h *Handler) GetSentimentReviews(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Sentiment.Summarize(r.Context())
	if err != nil {
		writeSnapshotError(w, r, err, "Failed to read reviews file")
		return
	}
	writeJSON(w, http.StatusOK, sentimentResponse{Status: "success", SentimentSummary: sum})
}

// GetWeather handles GET /api/weather/?city=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(r.URL.Query().Get("city"), 1, h.health.CityMaxLength)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := h.svc.Weather.FetchWeather(r.Context(), city)
	if err != nil {
		if client.IsBreakerFailure(err) {
			h.traffic.Record(traffic.Error)
		} else {
			h.traffic.Record(traffic.Success)
		}
		writeJSON(w, weatherErrorStatus(err), errorResponse{Error: client.ErrorMessage(err)})
		if logger := reqctx.Logger(r.Context()); logger != nil {
			logger.Debug("upstream error", zap.Error(err))
		}
		return
	}
	h.traffic.Record(traffic.Success)
	writeJSON(w, http.StatusOK, result)
}

// weatherErrorStatus maps a weather lookup error to an HTTP status.
func weatherErrorStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable
	case client.CategorizeError(err) == client.ErrorCategoryTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// PostChatbotQuery handles POST /api/chatbot/query.
func (h *Handler) PostChatbotQuery(w http.ResponseWriter, r *http.Request) {
	var q *models.ChatQuery
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&q); err != nil || q == nil {
		msg := "request body must be a JSON object"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Chatbot.Answer(q.Question))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, healthResponse{
		Status:    result.status,
		Service:   "smartstore-copilot",
		Checks:    result.checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, overloaded, data
// directory present, weather upstream error rate.
func (h *Handler) computeHealthStatus() healthResult {
	checks := map[string]string{"dataDir": "healthy", "weatherApi": "healthy"}
	if h.lifecycle.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.overloaded() {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold", checks}
	}

	result := healthResult{"healthy", http.StatusOK, "", checks}
	if h.health.DataDir != "" {
		if info, err := os.Stat(h.health.DataDir); err != nil || !info.IsDir() {
			checks["dataDir"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "data_dir_missing", checks}
		}
	}
	if h.health.DegradedWindow > 0 && h.health.DegradedErrorPct > 0 {
		c := h.traffic.Counts(h.health.DegradedWindow)
		if c.Success+c.Error > 0 && c.ErrorPct() >= float64(h.health.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			if result.reason == "" {
				result = healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
			}
		}
	}
	return result
}

// overloaded compares weather traffic, denials included, against the share of
// the rate limit set by OverloadThresholdPct.
func (h *Handler) overloaded() bool {
	hc := h.health
	if hc.RateLimitRPS <= 0 || hc.OverloadWindow <= 0 || hc.OverloadThresholdPct <= 0 {
		return false
	}
	threshold := float64(hc.RateLimitRPS) * hc.OverloadWindow.Seconds() * float64(hc.OverloadThresholdPct) / 100
	return float64(h.traffic.Counts(hc.OverloadWindow).Total()) > threshold
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSnapshotError writes {status:"error", message}: 404 with the
// not-found message for a missing file, 500 with readFailed otherwise.
func writeSnapshotError(w http.ResponseWriter, r *http.Request, err error, readFailed string) {
	var nf *service.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, statusErrorResponse{Status: "error", Message: nf.Message})
		return
	}
	if logger := reqctx.Logger(r.Context()); logger != nil {
		logger.Error("snapshot read failed", zap.Error(err))
	}
	writeJSON(w, http.StatusInternalServerError, statusErrorResponse{Status: "error", Message: readFailed})
}
