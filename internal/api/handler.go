// Package api exposes progress submission, content selection and admin
// roll-ups over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-learn/internal/auth"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/progress"
	"github.com/p-n-ai/pai-learn/internal/report"
)

const maxBodyBytes = 1 << 20

// Config holds dependencies for the HTTP handlers.
type Config struct {
	Orchestrator *progress.Orchestrator
	Selector     *content.Selector
	Reporter     *report.Reporter
	Verifier     auth.Verifier
	Hub          *Hub // optional; nil disables the live feed

	// Profiles defaults to the orchestrator's store when it keeps profiles.
	Profiles  progress.ProfileStore
	IOTimeout time.Duration
}

// Handler serves the /api routes.
type Handler struct {
	orch     *progress.Orchestrator
	selector *content.Selector
	reporter *report.Reporter
	verifier auth.Verifier
	hub      *Hub
	profiles progress.ProfileStore
	timeout  time.Duration
	schema   *requestSchema
}

// NewHandler validates cfg and compiles the request schemas.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	schema, err := newRequestSchema()
	if err != nil {
		return nil, err
	}

	selector := cfg.Selector
	if selector == nil {
		selector = content.NewSelector(nil, cfg.Orchestrator.Store(), nil)
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = report.NewReporter(cfg.Orchestrator.Store())
	}

	profiles := cfg.Profiles
	if profiles == nil {
		profiles, _ = cfg.Orchestrator.Store().(progress.ProfileStore)
	}
	timeout := cfg.IOTimeout
	if timeout <= 0 {
		timeout = progress.DefaultIOTimeout
	}

	return &Handler{
		orch:     cfg.Orchestrator,
		selector: selector,
		reporter: reporter,
		verifier: cfg.Verifier,
		hub:      cfg.Hub,
		profiles: profiles,
		timeout:  timeout,
		schema:   schema,
	}, nil
}

// Register mounts the routes on mux. Every route requires a bearer token.
func (h *Handler) Register(mux *http.ServeMux) {
	authed := auth.Middleware(h.verifier)
	admin := func(next http.HandlerFunc) http.Handler {
		return authed(requireAdmin(next))
	}

	mux.Handle("POST /api/update-progress", authed(http.HandlerFunc(h.handleUpdateProgress)))
	mux.Handle("GET /api/progress", authed(http.HandlerFunc(h.handleMyProgress)))
	if h.profiles != nil {
		mux.Handle("GET /api/profile", authed(http.HandlerFunc(h.handleGetProfile)))
		mux.Handle("PUT /api/profile", authed(http.HandlerFunc(h.handlePutProfile)))
	}
	mux.Handle("GET /api/courses/{courseId}", authed(http.HandlerFunc(h.handleCourseContent)))

	mux.Handle("GET /api/admin/learners", admin(h.handleAdminLearners))
	mux.Handle("GET /api/admin/report.xlsx", admin(h.handleAdminReport))
	if h.hub != nil {
		mux.Handle("GET /api/admin/live", admin(h.hub.ServeHTTP))
	}
}

func requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok || !id.IsAdmin() {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r)
	})
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeServerError logs err and answers 500 without exposing store detail.
func writeServerError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg,
		"method", r.Method,
		"path", r.URL.Path,
		"learner_id", identity(r).LearnerID,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, msg)
}
