package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dkallos/arbiter/internal/modules/alerts"
	"github.com/dkallos/arbiter/internal/modules/implemented"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.HealthCheck(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "arbiter",
	})
}

// handleStatus returns the dashboard headline: targets, budget and the
// current rebalance recommendation in one payload.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	targets, err := s.allocations.GetTargets()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	budget, err := s.allocations.GetBudget()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	decision, err := s.rebalance.Get()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets":   targets,
		"budget":    budget,
		"rebalance": decision,
	})
}

func (s *Server) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.allocations.GetTargets()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, targets)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.allocations.GetPositions()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetRejections(w http.ResponseWriter, r *http.Request) {
	rejections, err := s.rejections.GetRejections()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rejections)
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.markets.GetAll()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

func (s *Server) handleGetRebalance(w http.ResponseWriter, r *http.Request) {
	decision, err := s.rebalance.Get()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

// handlePutBudget updates the single user input and kicks off an immediate
// recompute so the dashboard does not wait a full cycle.
func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Budget float64 `json:"budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Budget <= 0 {
		s.writeError(w, http.StatusBadRequest, "budget must be positive")
		return
	}

	if err := s.allocations.SetBudget(req.Budget); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.refresh != nil {
		go func() {
			if err := s.refresh(); err != nil {
				s.log.Error().Err(err).Msg("Post-budget refresh failed")
			}
		}()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"budget": req.Budget,
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := s.alerts.ListAlerts(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if err := s.alerts.Acknowledge(id); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleListCovers(w http.ResponseWriter, r *http.Request) {
	covers, err := s.alerts.ListCovers()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, covers)
}

func (s *Server) handleAddCover(w http.ResponseWriter, r *http.Request) {
	var cover alerts.Cover
	if err := json.NewDecoder(r.Body).Decode(&cover); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cover.ExpiryDate == "" {
		s.writeError(w, http.StatusBadRequest, "expiry_date is required")
		return
	}
	if _, err := time.Parse("2006-01-02", cover.ExpiryDate); err != nil {
		s.writeError(w, http.StatusBadRequest, "expiry_date must be YYYY-MM-DD")
		return
	}

	id, err := s.alerts.AddCover(cover)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

func (s *Server) handleDeleteCover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid cover id")
		return
	}

	if err := s.alerts.DeleteCover(id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetImplemented(w http.ResponseWriter, r *http.Request) {
	state, err := s.implemented.GetState()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePutImplementedPositions(w http.ResponseWriter, r *http.Request) {
	var positions []implemented.Position
	if err := json.NewDecoder(r.Body).Decode(&positions); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.implemented.ReplacePositions(positions); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePutImplementedCash(w http.ResponseWriter, r *http.Request) {
	var cash implemented.Cash
	if err := json.NewDecoder(r.Body).Decode(&cash); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.implemented.SetCash(cash); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetDrift compares user-entered positions against the current
// targets.
func (s *Server) handleGetDrift(w http.ResponseWriter, r *http.Request) {
	state, err := s.implemented.GetState()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	targets, err := s.allocations.GetPositions()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	drifts := implemented.ComputeDrift(state, targets)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"drifts":  drifts,
		"in_sync": len(drifts) == 0,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
