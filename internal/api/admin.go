package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-learn/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) handleAdminLearners(w http.ResponseWriter, r *http.Request) {
	learners, err := h.reporter.Learners(r.Context())
	if err != nil {
		writeServerError(w, r, "failed to load learners", err)
		return
	}
	writeJSON(w, http.StatusOK, learners)
}

func (h *Handler) handleAdminReport(w http.ResponseWriter, r *http.Request) {
	learners, err := h.reporter.Learners(r.Context())
	if err != nil {
		writeServerError(w, r, "failed to load learners", err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, learners); err != nil {
		writeServerError(w, r, "failed to build report", err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="learners.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
