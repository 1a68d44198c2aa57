package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/cuit"
	"github.com/facturasur/invoice-export-service/internal/extract"
	"github.com/facturasur/invoice-export-service/internal/models"
	"github.com/facturasur/invoice-export-service/internal/ocr"
	"github.com/facturasur/invoice-export-service/internal/taxcode"
)

// AIExtractor is the vision/text extraction boundary the processor calls.
type AIExtractor interface {
	Extract(ctx context.Context, ocrText string, imageBase64 string) (*models.Invoice, float64, error)
}

// Preprocessor enhances an image before local OCR.
type Preprocessor interface {
	PreprocessImageFromBytes(imageData []byte) []byte
}

// ProcessResult is the outcome of one document.
type ProcessResult struct {
	Invoice     *models.Invoice
	Duplicate   bool
	Engine      string // "ai" or "ocr"
	OCRDuration float64
	AIDuration  float64
}

// Processor runs one document through the pipeline: AI extraction first,
// local OCR plus field extraction as the fallback, then scoring, tax-code
// normalization and duplicate detection. Documents are processed one at a
// time; there is no concurrency inside a batch.
type Processor struct {
	cfg            models.PipelineConfig
	aiExtractor    AIExtractor
	fieldExtractor *extract.Extractor
	preprocessor   Preprocessor
	recognizer     ocr.TextRecognizer
	detector       *DuplicateDetector
	log            *slog.Logger
}

// NewProcessor wires the pipeline. aiExtractor and detector may be nil when
// no provider or no database is configured.
func NewProcessor(
	cfg models.PipelineConfig,
	aiExtractor AIExtractor,
	fieldExtractor *extract.Extractor,
	preprocessor Preprocessor,
	recognizer ocr.TextRecognizer,
	detector *DuplicateDetector,
	log *slog.Logger,
) *Processor {
	if cfg.AutoApproveThreshold == 0 {
		cfg.AutoApproveThreshold = 0.80
	}
	return &Processor{
		cfg:            cfg,
		aiExtractor:    aiExtractor,
		fieldExtractor: fieldExtractor,
		preprocessor:   preprocessor,
		recognizer:     recognizer,
		detector:       detector,
		log:            log,
	}
}

// Process extracts, scores and deduplicates one scanned document.
func (p *Processor) Process(ctx context.Context, imageData []byte) (*ProcessResult, error) {
	result := &ProcessResult{}

	invoice, err := p.extractWithAI(ctx, imageData, result)
	if err != nil {
		p.log.Warn("AI extraction unavailable, falling back to local OCR", "error", err)
		invoice, err = p.extractWithOCR(ctx, imageData, result)
		if err != nil {
			return nil, err
		}
	}
	result.Invoice = invoice

	for _, desc := range taxcode.NormalizeLines(invoice.TaxLines) {
		invoice.Warnings = append(invoice.Warnings, fmt.Sprintf("impuesto sin clasificar: %s", desc))
	}
	if !cuit.Valid(invoice.CUITEmisor) {
		invoice.Warnings = append(invoice.Warnings, "CUIT del emisor ausente o invalido")
	}
	for _, campo := range negativeAmounts(invoice) {
		invoice.Warnings = append(invoice.Warnings, fmt.Sprintf("importe negativo en %s", campo))
	}

	if p.detector != nil {
		check, err := p.detector.Check(ctx, invoice.Key())
		if err != nil {
			return nil, err
		}
		if check.Warning != "" {
			invoice.Warnings = append(invoice.Warnings, check.Warning)
		}
		if check.Duplicate {
			result.Duplicate = true
			invoice.Warnings = append(invoice.Warnings, "comprobante ya cargado (clave duplicada)")
		}
	}

	invoice.NeedsReview = p.needsReview(invoice)
	return result, nil
}

// extractWithAI sends the original image to the vision provider. Gemini and
// GPT-4o read the color scan better than a grayscale preprocessed one.
func (p *Processor) extractWithAI(ctx context.Context, imageData []byte, result *ProcessResult) (*models.Invoice, error) {
	if p.aiExtractor == nil {
		return nil, fmt.Errorf("no AI provider configured")
	}

	imageBase64 := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)
	invoice, duration, err := p.aiExtractor.Extract(ctx, "", imageBase64)
	if err != nil {
		return nil, err
	}
	result.Engine = "ai"
	result.AIDuration = duration
	return invoice, nil
}

// extractWithOCR is the local fallback: preprocess, tesseract, then the
// per-field strategy tables.
func (p *Processor) extractWithOCR(ctx context.Context, imageData []byte, result *ProcessResult) (*models.Invoice, error) {
	start := time.Now()

	processed := p.preprocessor.PreprocessImageFromBytes(imageData)
	text, err := p.recognizer.ExtractText(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	invoice, err := p.fieldExtractor.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("field extraction failed: %w", err)
	}

	result.Engine = "ocr"
	result.OCRDuration = time.Since(start).Seconds()
	return invoice, nil
}

// negativeAmounts returns the field names of amounts below zero. All invoice
// amounts are unsigned; credit notes carry their own comprobante type instead
// of a sign.
func negativeAmounts(inv *models.Invoice) []string {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"neto gravado", inv.NetoGravado},
		{"neto no gravado", inv.NetoNoGravado},
		{"exento", inv.Exento},
		{"total IVA", inv.TotalIVA},
		{"otros tributos", inv.OtrosTributos},
		{"total", inv.Total},
	}

	var campos []string
	for _, f := range fields {
		if f.value.IsNegative() {
			campos = append(campos, f.name)
		}
	}
	for _, line := range inv.TaxLines {
		if line.Importe.IsNegative() || line.BaseImponible.IsNegative() {
			campos = append(campos, fmt.Sprintf("impuesto %s", line.Descripcion))
		}
	}
	return campos
}

// needsReview flags records an operator must look at before they can be
// approved for export.
func (p *Processor) needsReview(inv *models.Invoice) bool {
	if inv.Confidence < p.cfg.AutoApproveThreshold {
		return true
	}
	if !inv.Key().Complete() {
		return true
	}
	if inv.Total.IsZero() {
		return true
	}
	for _, line := range inv.TaxLines {
		if line.Codigo == taxcode.Unresolved {
			return true
		}
	}
	return len(inv.Warnings) > 0
}
