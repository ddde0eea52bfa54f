package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ExportDependencies is the subset of Dependencies used by ExportHandler.
type ExportDependencies interface {
	ExportEvaluator(ctx context.Context, w io.Writer, evaluatorID string) (string, error)
	ExportAll(ctx context.Context, w io.Writer) (string, error)
}

// ExportHandler serves CSV attachments.
type ExportHandler struct {
	deps ExportDependencies
	responder
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps ExportDependencies, r responder) *ExportHandler {
	return &ExportHandler{deps: deps, responder: r}
}

// HandleEvaluator handles GET /api/export/{evaluatorId}.
func (h *ExportHandler) HandleEvaluator(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_evaluator"
	var buf bytes.Buffer
	name, err := h.deps.ExportEvaluator(r.Context(), &buf, chi.URLParam(r, "evaluatorId"))
	if err != nil {
		h.fail(w, r, op, err, "Failed to export evaluations")
		return
	}
	writeCSV(w, name, buf.Bytes())
}

// HandleAll handles GET /api/export-all.
func (h *ExportHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_all"
	var buf bytes.Buffer
	name, err := h.deps.ExportAll(r.Context(), &buf)
	if err != nil {
		h.fail(w, r, op, err, "Failed to export all evaluations")
		return
	}
	writeCSV(w, name, buf.Bytes())
}

// writeCSV sends body as a download; the body is buffered so a failed
// export still gets a JSON error instead of a truncated file.
func writeCSV(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
