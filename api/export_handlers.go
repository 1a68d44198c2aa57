package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/facturasur/invoice-export-service/internal/export"
)

var errNoDatabase = errors.New("no database configured")

// ExportResponse is the body of both export endpoints.
type ExportResponse struct {
	Success     bool                     `json:"success"`
	Valid       bool                     `json:"valid"`
	BatchID     string                   `json:"batchId,omitempty"`
	Exported    int                      `json:"exported,omitempty"`
	Columns     []string                 `json:"columns"`
	Rows        [][]string               `json:"rows"`
	TaxRows     []export.TaxRow          `json:"taxRows,omitempty"`
	Concepts    []export.ConceptRow      `json:"concepts,omitempty"`
	Diagnostics []export.DiagnosticError `json:"diagnostics,omitempty"`
}

// ExportPreview builds and validates the export batch without side effects.
func (h *Handler) ExportPreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	batch, result, _, err := h.buildExportBatch(r)
	if err != nil {
		h.log.Error("export preview failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	json.NewEncoder(w).Encode(buildExportResponse(batch, result))
}

// Export validates the batch and, only when no CRITICAL diagnostic exists,
// marks the records exported under a fresh batch id.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	batch, result, ids, err := h.buildExportBatch(r)
	if err != nil {
		h.log.Error("export failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := buildExportResponse(batch, result)
	if !result.Valid {
		w.WriteHeader(http.StatusUnprocessableEntity)
		response.Success = false
		json.NewEncoder(w).Encode(response)
		return
	}
	if len(ids) == 0 {
		json.NewEncoder(w).Encode(response)
		return
	}

	batchID := uuid.New()
	if err := h.repo.MarkExported(r.Context(), ids, batchID); err != nil {
		h.log.Error("failed to mark records exported", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to mark records exported")
		return
	}

	h.log.Info("export batch completed", "batch_id", batchID, "records", len(ids))
	response.BatchID = batchID.String()
	response.Exported = len(ids)
	json.NewEncoder(w).Encode(response)
}

// buildExportBatch loads the exportable records and the master snapshot,
// builds the rows and validates them.
func (h *Handler) buildExportBatch(r *http.Request) (export.Batch, export.Result, []uuid.UUID, error) {
	if h.repo == nil {
		return export.Batch{}, export.Result{}, nil, errNoDatabase
	}
	ctx := r.Context()

	records, err := h.repo.ListExportable(ctx)
	if err != nil {
		return export.Batch{}, export.Result{}, nil, err
	}
	masters, err := h.repo.LoadMasters(ctx)
	if err != nil {
		return export.Batch{}, export.Result{}, nil, err
	}

	exportRecords := make([]export.Record, 0, len(records))
	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		exportRecords = append(exportRecords, export.Record{
			ID:      rec.ID.String(),
			Invoice: rec.Invoice,
		})
		ids = append(ids, rec.ID)
	}

	builder := export.NewBuilder(h.config.Export)
	batch := builder.BuildBatch(exportRecords, masters)
	result := export.NewValidator().Validate(batch.Rows)
	return batch, result, ids, nil
}

func buildExportResponse(batch export.Batch, result export.Result) ExportResponse {
	rows := make([][]string, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		rows = append(rows, row.Values())
	}
	return ExportResponse{
		Success:     true,
		Valid:       result.Valid,
		Columns:     export.ColumnNames,
		Rows:        rows,
		TaxRows:     batch.TaxRows,
		Concepts:    batch.Concepts,
		Diagnostics: result.Errors,
	}
}
