package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"doorstep/internal/store"
	"doorstep/internal/types"
)

// CreateNeighborhoodRequest is the body for POST /api/v1/neighborhoods.
type CreateNeighborhoodRequest struct {
	Title     string             `json:"title"`
	Postcode  string             `json:"postcode"`
	Frequency types.Frequency    `json:"frequency"`
	Info      string             `json:"info"`
	Manager   types.ManagerInfo  `json:"manager"`
	Radius    float64            `json:"radius"`
	Branding  types.BrandingInfo `json:"branding"`
}

func (s *Server) handleCreateNeighborhood(w http.ResponseWriter, r *http.Request) {
	var req CreateNeighborhoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}

	if req.Title == "" || req.Postcode == "" {
		s.writeError(w, badRequestf("title and postcode are required"))
		return
	}
	if !req.Frequency.Valid() {
		s.writeError(w, badRequestf("frequency must be Weekly or Monthly"))
		return
	}
	if req.Radius <= 0 || req.Radius > 50 {
		s.writeError(w, badRequestf("radius must be in (0, 50]"))
		return
	}
	if req.Manager.Email == "" {
		s.writeError(w, badRequestf("manager email is required"))
		return
	}

	now := time.Now().UTC()
	hood := types.Neighborhood{
		ID:        types.NewID(),
		Title:     req.Title,
		Postcode:  req.Postcode,
		Frequency: req.Frequency,
		Info:      req.Info,
		Manager:   req.Manager,
		Radius:    req.Radius,
		Branding:  req.Branding,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	if err := s.store.Create(r.Context(), store.CollectionNeighborhoods, hood.ID, hood); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("neighborhood created",
		zap.String("neighborhood_id", hood.ID),
		zap.String("postcode", hood.Postcode))
	writeJSON(w, http.StatusCreated, hood)
}

func (s *Server) handleGetNeighborhood(w http.ResponseWriter, r *http.Request) {
	var hood types.Neighborhood
	if err := s.store.Get(r.Context(), store.CollectionNeighborhoods, chi.URLParam(r, "id"), &hood); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hood)
}

func (s *Server) handleListNeighborhoods(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context(), store.CollectionNeighborhoods)
	if err != nil {
		s.writeError(w, err)
		return
	}

	hoods := make([]types.Neighborhood, 0, len(docs))
	for _, doc := range docs {
		var hood types.Neighborhood
		if err := json.Unmarshal(doc, &hood); err != nil {
			continue
		}
		hoods = append(hoods, hood)
	}
	sort.Slice(hoods, func(i, j int) bool {
		return hoods[i].CreatedAt.After(hoods[j].CreatedAt)
	})
	writeJSON(w, http.StatusOK, hoods)
}

func (s *Server) handleDeleteNeighborhood(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), store.CollectionNeighborhoods, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
