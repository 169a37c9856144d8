package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"doorstep/internal/tools"
)

// ToolDescriptor is the listing shape for GET /api/v1/tools.
type ToolDescriptor struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Schema      tools.ToolSchema `json:"parameters"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	var listed []*tools.Tool
	if category := r.URL.Query().Get("category"); category != "" {
		// categories are registered with a leading slash; accept both forms
		if !strings.HasPrefix(category, "/") {
			category = "/" + category
		}
		listed = s.registry.GetByCategory(tools.ToolCategory(category))
	} else {
		listed = s.registry.All()
	}

	descriptors := make([]ToolDescriptor, 0, len(listed))
	for _, tool := range listed {
		descriptors = append(descriptors, ToolDescriptor{
			ID:          tool.Name,
			Description: tool.Description,
			Category:    string(tool.Category),
			Schema:      tool.Schema,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": descriptors,
		"count": len(descriptors),
		"total": s.registry.Count(),
	})
}

// ExecuteToolRequest is the body for POST /api/v1/tools/{id}/execute.
type ExecuteToolRequest struct {
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req ExecuteToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequestf("invalid request body"))
		return
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	// the envelope carries failure; the transport stays 200 unless the
	// tool itself is unknown
	result := s.executor.Execute(r.Context(), chi.URLParam(r, "id"), req.Parameters)
	if !result.Success && !s.registry.Has(chi.URLParam(r, "id")) {
		writeJSON(w, http.StatusNotFound, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
