package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CreateConversationRequest is the body for POST /api/v1/conversations.
type CreateConversationRequest struct {
	NeighborhoodID string `json:"neighborhood_id"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}
	if req.NeighborhoodID == "" {
		s.writeError(w, badRequestf("neighborhood_id is required"))
		return
	}

	conv, err := s.conversations.Create(r.Context(), req.NeighborhoodID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	neighborhoodID := r.URL.Query().Get("neighborhood_id")
	if neighborhoodID == "" {
		s.writeError(w, badRequestf("neighborhood_id query parameter is required"))
		return
	}

	convs, err := s.conversations.ListByNeighborhood(r.Context(), neighborhoodID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// ChatRequest is the body for POST /api/v1/conversations/{id}/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}
	if req.Message == "" {
		s.writeError(w, badRequestf("message is required"))
		return
	}

	reply, err := s.chat.Send(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
