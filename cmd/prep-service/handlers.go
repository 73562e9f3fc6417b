package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
	"github.com/synaptica-ai/ehrprep/pkg/common/models"
	"github.com/synaptica-ai/ehrprep/pkg/observability/metrics"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
	"github.com/synaptica-ai/ehrprep/pkg/runs"
)

type runService interface {
	Create(ctx context.Context, req models.PrepareRequest) (models.PreparationRun, error)
	Get(ctx context.Context, id uuid.UUID) (models.PreparationRun, error)
	List(ctx context.Context, status string, limit int) ([]models.PreparationRun, error)
}

type PrepService struct {
	runs runService
}

func newRouter(s *PrepService) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", metrics.Handler).Methods("GET")
	router.HandleFunc("/api/v1/preparations", s.handleCreateRun).Methods("POST")
	router.HandleFunc("/api/v1/preparations", s.handleListRuns).Methods("GET")
	router.HandleFunc("/api/v1/preparations/{id}", s.handleGetRun).Methods("GET")
	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *PrepService) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	run, err := s.runs.Create(r.Context(), req)
	if err != nil {
		if patientdata.IsConfigurationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("Failed to create preparation run")
		http.Error(w, "Failed to create preparation run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (s *PrepService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("Failed to load preparation run")
		http.Error(w, "Failed to load preparation run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *PrepService) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	list, err := s.runs.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list preparation runs")
		http.Error(w, "Failed to list preparation runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"count": len(list),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
