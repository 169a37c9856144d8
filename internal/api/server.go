// Package api exposes the engine over HTTP. Handlers are thin: they
// decode, call the managers, and map domain errors onto status codes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"doorstep/internal/chat"
	"doorstep/internal/conversation"
	"doorstep/internal/newsletter"
	"doorstep/internal/store"
	"doorstep/internal/tools"
)

// Server wires the managers behind the REST surface.
type Server struct {
	store         store.Store
	newsletters   *newsletter.Manager
	conversations *conversation.Manager
	chat          *chat.Service
	registry      *tools.Registry
	executor      *tools.Executor
	logger        *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(s store.Store, newsletters *newsletter.Manager, conversations *conversation.Manager, chatSvc *chat.Service, registry *tools.Registry, executor *tools.Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:         s,
		newsletters:   newsletters,
		conversations: conversations,
		chat:          chatSvc,
		registry:      registry,
		executor:      executor,
		logger:        logger,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/neighborhoods", func(r chi.Router) {
			r.Post("/", s.handleCreateNeighborhood)
			r.Get("/", s.handleListNeighborhoods)
			r.Get("/{id}", s.handleGetNeighborhood)
			r.Delete("/{id}", s.handleDeleteNeighborhood)
		})

		r.Route("/newsletters", func(r chi.Router) {
			r.Post("/generate", s.handleGenerateNewsletter)
			r.Get("/", s.handleListNewsletters)
			r.Get("/{id}", s.handleGetNewsletter)
			r.Put("/{id}/update", s.handleUpdateNewsletter)
			r.Post("/{id}/action", s.handleNewsletterAction)
			r.Post("/{id}/regenerate", s.handleRegenerateNewsletter)
			r.Delete("/{id}", s.handleDeleteNewsletter)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.handleCreateConversation)
			r.Get("/", s.handleListConversations)
			r.Get("/{id}", s.handleGetConversation)
			r.Post("/{id}/chat", s.handleChat)
		})

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", s.handleListTools)
			r.Post("/{id}/execute", s.handleExecuteTool)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps domain errors onto HTTP status codes with a JSON body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, newsletter.ErrInvalidState),
		errors.Is(err, newsletter.ErrConflict),
		errors.Is(err, newsletter.ErrGenerationInFlight):
		status = http.StatusConflict
	case errors.Is(err, conversation.ErrClosed):
		status = http.StatusConflict
	case errors.Is(err, store.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errBadRequest marks validation failures for status mapping.
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
