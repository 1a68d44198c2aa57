// Package api exposes the HTTP surface: document processing, invoice CRUD,
// review queue, stats and the Tango export endpoints.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/facturasur/invoice-export-service/internal/ai"
	"github.com/facturasur/invoice-export-service/internal/db"
	"github.com/facturasur/invoice-export-service/internal/extract"
	"github.com/facturasur/invoice-export-service/internal/models"
	"github.com/facturasur/invoice-export-service/internal/ocr"
	"github.com/facturasur/invoice-export-service/internal/services"
	"github.com/facturasur/invoice-export-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Handler handles HTTP requests.
type Handler struct {
	config *models.Config
	log    *slog.Logger
	repo   *db.Repository // nil when no database is configured
	store  *storage.Store // nil when no object storage is configured
}

// NewHandler creates the API handler.
func NewHandler(config *models.Config, log *slog.Logger, repo *db.Repository, store *storage.Store) *Handler {
	return &Handler{config: config, log: log, repo: repo, store: store}
}

// SetupRoutes configures the HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Processing
	router.HandleFunc("/api/process-invoice", h.ProcessInvoice).Methods("POST")

	// Invoice CRUD
	router.HandleFunc("/api/invoices", h.GetInvoices).Methods("GET")
	router.HandleFunc("/api/invoice/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/api/invoice/{id}", h.UpdateInvoice).Methods("PUT")
	router.HandleFunc("/api/invoice/{id}", h.DeleteInvoice).Methods("DELETE")
	router.HandleFunc("/api/invoice/{id}/imagen", h.GetInvoiceImage).Methods("GET")

	// Review queue
	router.HandleFunc("/api/review", h.GetReviewQueue).Methods("GET")
	router.HandleFunc("/api/invoice/{id}/approve", h.ApproveInvoice).Methods("POST")

	// Export
	router.HandleFunc("/api/export/preview", h.ExportPreview).Methods("POST")
	router.HandleFunc("/api/export", h.Export).Methods("POST")

	// Statistics and health
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Memory      MemoryStats       `json:"memory"`
	Tesseract   ServiceStatus     `json:"tesseract"`
	ImageMagick ServiceStatus     `json:"imageMagick"`
	Database    ServiceStatus     `json:"database"`
	Storage     ServiceStatus     `json:"storage"`
	AI          map[string]string `json:"ai"`
}

// MemoryStats reports process memory usage.
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus is one dependency's availability.
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports the status of every dependency the pipeline needs.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	tesseractStatus := checkBinary("tesseract", "--version")
	imageMagickStatus := h.checkImageMagick()
	databaseStatus := h.checkDatabase(r)
	storageStatus := h.checkStorage(r)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Tesseract:   tesseractStatus,
		ImageMagick: imageMagickStatus,
		Database:    databaseStatus,
		Storage:     storageStatus,
		AI: map[string]string{
			"defaultProvider": h.config.AI.DefaultProvider,
			"ocrEngine":       h.config.OCR.Engine,
		},
	}

	// The fallback path needs tesseract and imagemagick; without either the
	// service still works through the AI providers, but flag it.
	if !tesseractStatus.Available || !imageMagickStatus.Available {
		response.Status = "degraded"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func checkBinary(name string, arg string) ServiceStatus {
	output, err := exec.Command(name, arg).CombinedOutput()
	if err != nil {
		return ServiceStatus{Available: false, Error: name + " not found or not executable"}
	}
	version := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	return ServiceStatus{Available: true, Version: version}
}

func (h *Handler) checkImageMagick() ServiceStatus {
	if status := checkBinary("magick", "--version"); status.Available {
		return status
	}
	return checkBinary("convert", "--version")
}

func (h *Handler) checkDatabase(r *http.Request) ServiceStatus {
	if h.repo == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}
	if _, err := h.repo.GetMonthlyStats(r.Context()); err != nil {
		return ServiceStatus{Available: false, Error: err.Error()}
	}
	return ServiceStatus{Available: true}
}

func (h *Handler) checkStorage(r *http.Request) ServiceStatus {
	if h.store == nil {
		return ServiceStatus{Available: false, Error: "not configured"}
	}
	if !h.store.Healthy(r.Context()) {
		return ServiceStatus{Available: false, Error: "bucket unreachable"}
	}
	return ServiceStatus{Available: true}
}

// ProcessInvoice accepts a scanned document, runs the extraction pipeline
// and persists the record unless it is a duplicate.
func (h *Handler) ProcessInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "file too large or invalid form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "no file provided (use 'file' or 'image' field)")
			return
		}
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	providerName := r.FormValue("aiProvider")
	if providerName == "" {
		providerName = h.config.AI.DefaultProvider
	}
	modelName := r.FormValue("model")
	language := r.FormValue("language")
	if language == "" {
		language = h.config.OCR.Language
	}

	processor := h.buildProcessor(providerName, modelName, language)
	result, err := processor.Process(ctx, imageData)

	totalDuration := time.Since(start).Seconds()
	if err != nil {
		h.log.Error("processing failed", "error", err)
		json.NewEncoder(w).Encode(models.ProcessResponse{
			Success:       false,
			Error:         err.Error(),
			TotalDuration: totalDuration,
		})
		return
	}

	invoice := result.Invoice

	// Duplicates short-circuit creation: the document is reported back, but
	// no record and no stored image are produced.
	if result.Duplicate {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       true,
			"duplicate":     true,
			"saved":         false,
			"invoice":       invoice,
			"engine":        result.Engine,
			"totalDuration": totalDuration,
		})
		return
	}

	var imagenURL string
	if h.store != nil {
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/jpeg"
		}
		filename := fmt.Sprintf("%s_%s%s",
			time.Now().Format("20060102_150405"),
			uuid.New().String()[:8],
			storage.FileExtension(contentType),
		)
		imagenURL, err = h.store.UploadDocument(ctx, filename, bytes.NewReader(imageData), int64(len(imageData)), contentType)
		if err != nil {
			h.log.Warn("failed to store document image", "error", err)
		}
	}

	var record *db.InvoiceRecord
	if h.repo != nil {
		record = &db.InvoiceRecord{Invoice: *invoice, ImagenURL: imagenURL}
		if invoice.NeedsReview {
			record.Estado = db.EstadoRevision
		} else {
			record.Estado = db.EstadoAprobada
		}
		if err := h.repo.SaveInvoice(ctx, record); err != nil {
			h.log.Error("failed to save invoice", "error", err)
			record = nil
		}
	}

	response := map[string]interface{}{
		"success":       true,
		"duplicate":     false,
		"saved":         record != nil,
		"invoice":       invoice,
		"engine":        result.Engine,
		"ocrDuration":   result.OCRDuration,
		"aiDuration":    result.AIDuration,
		"totalDuration": totalDuration,
	}
	if record != nil {
		response["id"] = record.ID
		response["estado"] = record.Estado
	}
	if imagenURL != "" {
		response["imagen_url"] = imagenURL
	}

	json.NewEncoder(w).Encode(response)
}

// buildProcessor assembles the pipeline for one request. The AI extractor
// is nil when the chosen provider has no credentials, which sends the
// request straight down the OCR path.
func (h *Handler) buildProcessor(providerName, modelName, language string) *services.Processor {
	var aiExtractor services.AIExtractor
	if provider, err := h.createProvider(providerName, modelName); err == nil {
		normalizer := ai.NewNormalizer(h.config.Pipeline.ReceptorCUIT)
		aiExtractor = ai.NewExtractor(provider, normalizer)
	} else {
		h.log.Warn("AI provider unavailable", "provider", providerName, "error", err)
	}

	var detector *services.DuplicateDetector
	if h.repo != nil {
		detector = services.NewDuplicateDetector(h.repo)
	}

	return services.NewProcessor(
		h.config.Pipeline,
		aiExtractor,
		extract.New(h.config.Pipeline.ReceptorCUIT, h.config.Pipeline.KnownSuppliers),
		ocr.NewPreprocessor(h.log),
		ocr.NewTesseractOCR(language),
		detector,
		h.log,
	)
}

// createProvider creates the requested AI provider.
func (h *Handler) createProvider(providerName, modelName string) (ai.Provider, error) {
	switch providerName {
	case "openai":
		if h.config.AI.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai api key not configured")
		}
		model := modelName
		if model == "" {
			model = h.config.AI.OpenAI.Model
		}
		return ai.NewOpenAIProvider(h.config.AI.OpenAI.APIKey, h.config.AI.OpenAI.BaseURL, model), nil

	case "gemini":
		if h.config.AI.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini api key not configured")
		}
		model := modelName
		if model == "" {
			model = h.config.AI.Gemini.Model
		}
		return ai.NewGeminiProvider(h.config.AI.Gemini.APIKey, model), nil

	case "ollama":
		model := modelName
		if model == "" {
			model = h.config.AI.Ollama.Model
		}
		return ai.NewOllamaProvider(h.config.AI.Ollama.BaseURL, model), nil

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", providerName)
	}
}

// GetInvoices returns the most recent records.
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	invoices, err := h.repo.GetInvoices(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to list invoices", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to list invoices")
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// GetInvoice returns one record.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	record, err := h.repo.GetInvoiceByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, db.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to load invoice")
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "invoice": record})
}

// GetInvoiceImage redirects to a presigned URL for the stored scan.
func (h *Handler) GetInvoiceImage(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	record, err := h.repo.GetInvoiceByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, db.ErrNotFound) || (err == nil && record.ImagenURL == "") {
		h.sendError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to load invoice")
		return
	}

	url, err := h.store.PresignedURL(r.Context(), record.ImagenURL)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to generate image URL")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// UpdateInvoice applies an operator correction.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.repo.UpdateInvoice(r.Context(), mux.Vars(r)["id"], updates)
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "invoice not found")
	case err != nil:
		h.sendError(w, http.StatusBadRequest, err.Error())
	default:
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}
}

// DeleteInvoice removes a record.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	err := h.repo.DeleteInvoice(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "invoice not found")
	case err != nil:
		h.sendError(w, http.StatusInternalServerError, "failed to delete invoice")
	default:
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}
}

// GetReviewQueue lists the records waiting for operator review.
func (h *Handler) GetReviewQueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	invoices, err := h.repo.ListNeedsReview(r.Context(), 100)
	if err != nil {
		h.log.Error("failed to list review queue", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to list review queue")
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// ApproveInvoice clears the review flag and marks the record exportable.
func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	err := h.repo.ApproveInvoice(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "invoice not found")
	case err != nil:
		h.sendError(w, http.StatusInternalServerError, "failed to approve invoice")
	default:
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "estado": db.EstadoAprobada})
	}
}

// GetStats returns monthly statistics.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.repo == nil {
		h.sendError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	stats, err := h.repo.GetMonthlyStats(r.Context())
	if err != nil {
		h.log.Error("failed to load stats", "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "stats": stats})
}

// sendError sends an error response.
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
