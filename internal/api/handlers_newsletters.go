package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GenerateNewsletterRequest is the body for POST /api/v1/newsletters/generate.
type GenerateNewsletterRequest struct {
	NeighborhoodID string `json:"neighborhood_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleGenerateNewsletter(w http.ResponseWriter, r *http.Request) {
	var req GenerateNewsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}
	if req.NeighborhoodID == "" {
		s.writeError(w, badRequestf("neighborhood_id is required"))
		return
	}

	n, err := s.newsletters.StartGeneration(r.Context(), req.NeighborhoodID, req.ConversationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, n)
}

func (s *Server) handleGetNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := s.newsletters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleListNewsletters(w http.ResponseWriter, r *http.Request) {
	newsletters, err := s.newsletters.List(r.Context(), r.URL.Query().Get("neighborhood_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newsletters)
}

// UpdateNewsletterRequest is the body for PUT /api/v1/newsletters/{id}/update.
type UpdateNewsletterRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleUpdateNewsletter(w http.ResponseWriter, r *http.Request) {
	var req UpdateNewsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}
	if req.Message == "" {
		s.writeError(w, badRequestf("message is required"))
		return
	}

	n, err := s.newsletters.ApplyUpdate(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// NewsletterActionRequest is the body for POST /api/v1/newsletters/{id}/action.
type NewsletterActionRequest struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Server) handleNewsletterAction(w http.ResponseWriter, r *http.Request) {
	var req NewsletterActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}
	if req.Action != "accept" && req.Action != "reject" {
		s.writeError(w, badRequestf("action must be accept or reject"))
		return
	}

	n, err := s.newsletters.Act(r.Context(), chi.URLParam(r, "id"), req.Action, req.Feedback)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleRegenerateNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := s.newsletters.Regenerate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, n)
}

func (s *Server) handleDeleteNewsletter(w http.ResponseWriter, r *http.Request) {
	if err := s.newsletters.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
