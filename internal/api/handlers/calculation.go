// Package handlers provides HTTP handlers for the dispense API.
package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/verdantrx/dispense-engine/internal/api/middleware"
	"github.com/verdantrx/dispense-engine/internal/domain/calculation"
	"github.com/verdantrx/dispense-engine/internal/engine"
	"github.com/verdantrx/dispense-engine/pkg/workerpool"
)

// CalculationHandler handles dispense calculation endpoints
type CalculationHandler struct {
	repo   *calculation.Repository
	engine *engine.Engine
	pool   *workerpool.Pool
	logger *zap.Logger
}

// NewCalculationHandler creates a new handler. The worker pool is optional;
// without it POST /batch returns 503.
func NewCalculationHandler(repo *calculation.Repository, eng *engine.Engine, pool *workerpool.Pool, logger *zap.Logger) *CalculationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalculationHandler{
		repo:   repo,
		engine: eng,
		pool:   pool,
		logger: logger,
	}
}

// Routes returns the handler routes
func (h *CalculationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/batch", h.CreateBatch)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/warnings", h.GetWarnings)
	r.Get("/{id}/export", h.Export)
	r.Post("/{id}/resume", h.Resume)
	return r
}

// CreateResponse is the response for creating a calculation
type CreateResponse struct {
	ID       string                   `json:"id"`
	Complete bool                     `json:"complete"`
	Record   *calculation.Calculation `json:"record"`
}

// Create handles POST /calculations
func (h *CalculationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("calculation-handler")
	ctx, span := tracer.Start(ctx, "create_calculation")
	defer span.End()

	var req calculation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.DrugToken == "" {
		h.jsonError(w, "drug_token is required", http.StatusBadRequest)
		return
	}
	if req.DaysSupply < 0 {
		h.jsonError(w, "days_supply must not be negative", http.StatusBadRequest)
		return
	}

	calc := h.engine.Run(ctx, req)
	span.SetAttributes(attribute.String("calculation_id", calc.ID))

	if err := h.repo.Save(ctx, calc); err != nil {
		h.logger.Error("save failed", zap.Error(err))
		h.jsonError(w, "failed to save calculation", http.StatusInternalServerError)
		return
	}

	h.logger.Info("calculation created",
		zap.String("id", calc.ID),
		zap.String("drug_token", req.DrugToken),
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.Int("warnings", len(calc.Warnings)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResponse{
		ID:       calc.ID,
		Complete: calc.IsComplete(),
		Record:   calc,
	})
}

// BatchRequest is the request body for batch calculation
type BatchRequest struct {
	Requests []calculation.Request `json:"requests"`
}

// BatchResponse acknowledges accepted batch items
type BatchResponse struct {
	Accepted []string `json:"accepted"`
	Rejected int      `json:"rejected"`
}

// CreateBatch handles POST /calculations/batch. Items are queued to the
// worker pool and processed asynchronously; the response carries the IDs to
// poll.
func (h *CalculationHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		h.jsonError(w, "batch processing unavailable", http.StatusServiceUnavailable)
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Requests) == 0 {
		h.jsonError(w, "requests must not be empty", http.StatusBadRequest)
		return
	}

	resp := BatchResponse{}
	for _, item := range req.Requests {
		if item.DrugToken == "" {
			resp.Rejected++
			continue
		}
		id := uuid.New().String()
		task := &workerpool.Task{
			ID:      id,
			Payload: item,
		}
		if err := h.pool.Submit(task); err != nil {
			h.logger.Warn("batch submit failed", zap.String("id", id), zap.Error(err))
			resp.Rejected++
			continue
		}
		resp.Accepted = append(resp.Accepted, id)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

// Get handles GET /calculations/{id}
func (h *CalculationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	calc, err := h.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, calculation.ErrNotFound) {
			h.jsonError(w, "calculation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load failed", zap.String("id", id), zap.Error(err))
		h.jsonError(w, "failed to load calculation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(calc)
}

// GetWarnings handles GET /calculations/{id}/warnings, returning the
// deduplicated warning list.
func (h *CalculationHandler) GetWarnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	calc, err := h.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, calculation.ErrNotFound) {
			h.jsonError(w, "calculation not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "failed to load calculation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       calc.ID,
		"warnings": calc.DedupedWarnings(),
	})
}

// Resume handles POST /calculations/{id}/resume. Remaining stages run and
// the updated record is persisted.
func (h *CalculationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	calc, err := h.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, calculation.ErrNotFound) {
			h.jsonError(w, "calculation not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "failed to load calculation", http.StatusInternalServerError)
		return
	}

	if calc.IsComplete() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CreateResponse{ID: calc.ID, Complete: true, Record: calc})
		return
	}

	h.engine.Resume(ctx, calc)

	if err := h.repo.Save(ctx, calc); err != nil {
		h.logger.Error("save after resume failed", zap.String("id", id), zap.Error(err))
		h.jsonError(w, "failed to save calculation", http.StatusInternalServerError)
		return
	}

	h.logger.Info("calculation resumed", zap.String("id", id))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CreateResponse{
		ID:       calc.ID,
		Complete: calc.IsComplete(),
		Record:   calc,
	})
}

// Export handles GET /calculations/{id}/export?format=csv|json
func (h *CalculationHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	calc, err := h.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, calculation.ErrNotFound) {
			h.jsonError(w, "calculation not found", http.StatusNotFound)
			return
		}
		h.jsonError(w, "failed to load calculation", http.StatusInternalServerError)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="calculation-%s.json"`, id))
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(calc)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="calculation-%s.csv"`, id))
		h.writeCSV(w, calc)
	default:
		h.jsonError(w, "format must be csv or json", http.StatusBadRequest)
	}
}

// writeCSV flattens the record into one summary row plus one row per
// ranked candidate.
func (h *CalculationHandler) writeCSV(w http.ResponseWriter, calc *calculation.Calculation) {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{"section", "field", "value"})

	cw.Write([]string{"request", "drug_token", calc.Request.DrugToken})
	cw.Write([]string{"request", "sig_text", calc.Request.SigText})
	cw.Write([]string{"request", "days_supply", strconv.FormatFloat(calc.Request.DaysSupply, 'f', -1, 64)})

	if calc.Resolution != nil {
		cw.Write([]string{"resolution", "rxcui", calc.Resolution.RxCUI})
		cw.Write([]string{"resolution", "name", calc.Resolution.Name})
	}
	if calc.Selected != nil {
		cw.Write([]string{"selected", "ndc", calc.Selected.NDC})
		cw.Write([]string{"selected", "product_name", calc.Selected.ProductName})
		cw.Write([]string{"selected", "package_description", calc.Selected.PackageDescription})
		cw.Write([]string{"selected", "active", strconv.FormatBool(calc.Selected.Active)})
	}
	if calc.Quantity != nil {
		cw.Write([]string{"quantity", "value", strconv.FormatFloat(calc.Quantity.Value, 'f', -1, 64)})
		cw.Write([]string{"quantity", "unit", calc.Quantity.Unit})
	}
	if calc.MultiPack != nil {
		cw.Write([]string{"multi_pack", "package_count", strconv.Itoa(calc.MultiPack.PackageCount)})
		cw.Write([]string{"multi_pack", "remainder", strconv.FormatFloat(calc.MultiPack.Remainder, 'f', -1, 64)})
	}

	for i, cand := range calc.Ranked {
		prefix := fmt.Sprintf("ranked_%d", i+1)
		score := ""
		if cand.MatchScore != nil {
			score = strconv.FormatFloat(*cand.MatchScore, 'f', 4, 64)
		}
		cw.Write([]string{prefix, "ndc", cand.NDC})
		cw.Write([]string{prefix, "score", score})
	}

	for _, warn := range calc.DedupedWarnings() {
		cw.Write([]string{"warning", string(warn.Type), warn.Message})
	}
}

func (h *CalculationHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
