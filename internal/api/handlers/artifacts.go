package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/storage"
	"github.com/wonny/dva-forecast/pkg/config"
	"github.com/wonny/dva-forecast/pkg/database"
	"github.com/wonny/dva-forecast/pkg/logger"
)

// ArtifactHandler serves the persisted pipeline artifacts read-only
// ⭐ SSOT: 아티팩트 API 핸들러는 이 구조체에서만
type ArtifactHandler struct {
	paths     config.PathsConfig
	productID string
	logger    *logger.Logger
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(cfg *config.Config, log *logger.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		paths:     cfg.Paths,
		productID: cfg.Generate.ProductID,
		logger:    log,
	}
}

type forecastPoint struct {
	DS        string   `json:"ds"`
	Yhat      *float64 `json:"yhat"` // NaN → null
	ProductID string   `json:"product_id,omitempty"`
}

// GetParams returns the best hyperparameters
// GET /api/params
func (h *ArtifactHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	hp, err := storage.ReadBestParams(h.paths.BestParams)
	if err != nil {
		h.respondArtifactError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changepoint_prior_scale": hp.ChangepointPriorScale,
		"seasonality_prior_scale": hp.SeasonalityPriorScale,
		"fourier_order":           hp.FourierOrder,
	})
}

// GetRawForecast returns the raw forecast
// GET /api/forecast/raw?from=2024-01-01&to=2024-06-30
func (h *ArtifactHandler) GetRawForecast(w http.ResponseWriter, r *http.Request) {
	h.serveForecast(w, r, h.paths.ForecastOutput)
}

// GetFinalForecast returns the post-processed forecast
// GET /api/forecast/final?from=&to=&product_id=
func (h *ArtifactHandler) GetFinalForecast(w http.ResponseWriter, r *http.Request) {
	h.serveForecast(w, r, h.paths.FinalForecast)
}

func (h *ArtifactHandler) serveForecast(w http.ResponseWriter, r *http.Request, path string) {
	q := r.URL.Query()

	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	product := q.Get("product_id")

	recs, err := storage.ReadForecast(path, h.productID)
	if err != nil {
		h.respondArtifactError(w, r, err)
		return
	}

	points := make([]forecastPoint, 0, len(recs))
	for _, rec := range recs {
		if !from.IsZero() && rec.Date.Before(from) {
			continue
		}
		if !to.IsZero() && rec.Date.After(to) {
			continue
		}
		if product != "" && rec.ProductID != product {
			continue
		}
		p := forecastPoint{DS: rec.Date.Format(contracts.DateLayout), ProductID: rec.ProductID}
		if !math.IsNaN(rec.Predicted) {
			v := rec.Predicted
			p.Yhat = &v
		}
		points = append(points, p)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(points),
		"forecast": points,
	})
}

// GetScores returns the latest MAPE scores
// GET /api/scores
func (h *ArtifactHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	scores, err := storage.ReadScores(h.paths.MAPEScores)
	if err != nil {
		h.respondArtifactError(w, r, err)
		return
	}

	periods := scores.Periods()
	out := make([]map[string]interface{}, 0, len(periods))
	for _, p := range periods {
		out = append(out, map[string]interface{}{"period": p, "mape": scores[p]})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"scores": out})
}

// respondArtifactError 없는 아티팩트는 404, 나머지는 500
func (h *ArtifactHandler) respondArtifactError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, http.StatusNotFound, "artifact not produced yet")
		return
	}
	h.logger.WithError(err).WithField("path", r.URL.Path).Error("Failed to read artifact")
	respondError(w, http.StatusInternalServerError, "failed to read artifact")
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = storage.ParseDate(fromStr); err != nil {
			return from, to, errors.New("invalid from date")
		}
	}
	if toStr != "" {
		if to, err = storage.ParseDate(toStr); err != nil {
			return from, to, errors.New("invalid to date")
		}
	}
	return from, to, nil
}

// =============================================================================
// Health
// =============================================================================

// HealthChecker *database.DB
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// HealthHandler reports service and optional database health
type HealthHandler struct {
	db HealthChecker // nil when DB_ENABLED=false
}

// NewHealthHandler creates a health handler; db may be nil
func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health returns server health status
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "dva-forecast-api",
	}
	if h.db == nil {
		respondJSON(w, http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, err := h.db.HealthCheck(ctx)
	body["database"] = status
	if err != nil {
		body["status"] = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
