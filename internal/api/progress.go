package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/p-n-ai/pai-learn/internal/progress"
)

type updateProgressRequest struct {
	CourseID  string  `json:"courseId"`
	ChapterID string  `json:"chapterId"`
	Score     float64 `json:"score"`
}

func (h *Handler) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}

	if err := h.schema.validateUpdateProgress(body); err != nil {
		var se *schemaError
		if errors.As(err, &se) && se.scoreRelated {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid score: %s", se.msg))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateProgressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	score, ok := integralScore(req.Score)
	if !ok {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid score %v: must be an integer between %d and %d", req.Score, progress.MinScore, progress.MaxScore))
		return
	}

	id := identity(r)
	res, err := h.orch.SubmitScore(r.Context(), id.LearnerID, req.CourseID, req.ChapterID, score)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case progress.IsInvalidScore(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeServerError(w, r, "failed to update progress", err)
	}
}

// integralScore accepts whole numbers that fit comfortably in an int; range
// checking is left to the orchestrator.
func integralScore(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func (h *Handler) handleMyProgress(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reporter.Learner(r.Context(), identity(r).LearnerID)
	if err != nil {
		writeServerError(w, r, "failed to load progress", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
