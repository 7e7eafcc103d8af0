package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

type AssignRequest struct {
	URL       string `json:"url"`
	VisitorID string `json:"visitor_id"`
}

type AssignResponse struct {
	Matched      bool   `json:"matched"`
	ExperimentID string `json:"experiment_id,omitempty"`
	Variant      string `json:"variant,omitempty"`
	Content      string `json:"content,omitempty"`
	New          bool   `json:"new,omitempty"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.URL == "" || req.VisitorID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	exp, err := s.registry.FindActive(r.Context(), req.URL)
	if err != nil {
		http.Error(w, "Failed to resolve experiment", http.StatusServiceUnavailable)
		return
	}
	if exp == nil {
		// No matching experiment is a valid outcome, not an error.
		writeJSON(w, http.StatusOK, AssignResponse{Matched: false})
		return
	}

	variant, isNew, err := s.assignor.Assign(r.Context(), exp, req.VisitorID)
	if err != nil {
		// Never fall back to a default variant: a visible failure beats an
		// undefined one.
		http.Error(w, "Failed to assign variant", http.StatusServiceUnavailable)
		return
	}

	content := exp.VariantA
	if variant == store.VariantB {
		content = exp.VariantB
	}
	writeJSON(w, http.StatusOK, AssignResponse{
		Matched:      true,
		ExperimentID: exp.ID,
		Variant:      string(variant),
		Content:      content,
		New:          isNew,
	})
}

type ConvertRequest struct {
	ExperimentID string   `json:"experiment_id"`
	VisitorID    string   `json:"visitor_id"`
	Value        *float64 `json:"value,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.VisitorID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	err := s.recorder.RecordConversion(r.Context(), req.ExperimentID, req.VisitorID, req.Value)
	if errors.Is(err, engine.ErrAssignmentNotFound) {
		http.Error(w, "No assignment for visitor", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Failed to record conversion", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := engine.Metrics(r.Context(), s.store, id, s.params)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to compute metrics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type AdminExperiment struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	URL                      string     `json:"url"`
	Status                   string     `json:"status"`
	VisitsA                  int64      `json:"visits_a"`
	VisitsB                  int64      `json:"visits_b"`
	ConversionsA             int64      `json:"conversions_a"`
	ConversionsB             int64      `json:"conversions_b"`
	ConversionRateA          float64    `json:"conversion_rate_a"`
	ConversionRateB          float64    `json:"conversion_rate_b"`
	StatisticallySignificant bool       `json:"statistically_significant"`
	WinnerVariant            *string    `json:"winner_variant,omitempty"`
	StartDate                *time.Time `json:"start_date,omitempty"`
	EndDate                  *time.Time `json:"end_date,omitempty"`
}

func (s *Server) handleAdminExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Failed to list experiments", http.StatusInternalServerError)
		return
	}

	response := make([]AdminExperiment, 0, len(experiments))
	for _, exp := range experiments {
		item := AdminExperiment{
			ID:                       exp.ID,
			Name:                     exp.Name,
			URL:                      exp.URL,
			Status:                   string(exp.Status),
			VisitsA:                  exp.VisitsA,
			VisitsB:                  exp.VisitsB,
			ConversionsA:             exp.ConversionsA,
			ConversionsB:             exp.ConversionsB,
			ConversionRateA:          exp.ConversionRateA,
			ConversionRateB:          exp.ConversionRateB,
			StatisticallySignificant: exp.StatisticallySignificant,
			StartDate:                exp.StartDate,
			EndDate:                  exp.EndDate,
		}
		if exp.WinnerVariant != nil {
			wv := string(*exp.WinnerVariant)
			item.WinnerVariant = &wv
		}
		response = append(response, item)
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
