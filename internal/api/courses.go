package api

import "net/http"

func (h *Handler) handleCourseContent(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("courseId")

	chapters, err := h.selector.ForLearner(r.Context(), identity(r).LearnerID, courseID)
	if err != nil {
		writeServerError(w, r, "failed to load course content", err)
		return
	}
	writeJSON(w, http.StatusOK, chapters)
}
