package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-learn/internal/progress"
)

type profileRequest struct {
	Preferences string `json:"preferences"`
	Goals       string `json:"goals"`
	Strengths   string `json:"strengths"`
	Weaknesses  string `json:"weaknesses"`
}

// handleGetProfile answers with an empty profile when none has been saved.
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, _, err := h.profiles.GetProfile(ctx, identity(r).LearnerID)
	if err != nil {
		writeServerError(w, r, "failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}
	if err := h.schema.validateProfile(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req profileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p := progress.LearnerProfile{
		Preferences: req.Preferences,
		Goals:       req.Goals,
		Strengths:   req.Strengths,
		Weaknesses:  req.Weaknesses,
		UpdatedAt:   time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.profiles.PutProfile(ctx, identity(r).LearnerID, p); err != nil {
		writeServerError(w, r, "failed to save profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
