package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the canonical shape of a purchase invoice after extraction,
// regardless of whether the fields came from OCR text or from an AI response.
type Invoice struct {
	// Emisor (proveedor)
	CUITEmisor   string `json:"cuitEmisor,omitempty"`
	NombreEmisor string `json:"nombreEmisor,omitempty"`

	// Receptor (la empresa que carga la factura)
	CUITReceptor string `json:"cuitReceptor,omitempty"`

	// Comprobante
	TipoComprobante string `json:"tipoComprobante,omitempty"` // FA, FB, FC, NCA, NCB, NCC, NDA, NDB, NDC
	PuntoVenta      string `json:"puntoVenta,omitempty"`      // 4 digits, zero padded
	Numero          string `json:"numero,omitempty"`          // 8 digits, zero padded

	FechaEmision time.Time `json:"fechaEmision,omitempty"`

	// Montos
	NetoGravado   decimal.Decimal `json:"netoGravado,omitempty"`
	NetoNoGravado decimal.Decimal `json:"netoNoGravado,omitempty"`
	Exento        decimal.Decimal `json:"exento,omitempty"`
	TotalIVA      decimal.Decimal `json:"totalIva,omitempty"`
	OtrosTributos decimal.Decimal `json:"otrosTributos,omitempty"`
	Total         decimal.Decimal `json:"total"`

	// Impuestos discriminados
	TaxLines []TaxLine `json:"taxLines,omitempty"`

	// Autorizacion AFIP
	CAE            string    `json:"cae,omitempty"` // 14 digits
	CAEVencimiento time.Time `json:"caeVencimiento,omitempty"`

	// Raw data
	RawText string `json:"rawText,omitempty"` // Complete OCR text

	// Metadata
	Confidence  float64   `json:"confidence"` // Overall confidence score (0-1)
	NeedsReview bool      `json:"needsReview"`
	Warnings    []string  `json:"warnings,omitempty"` // Data-quality issues, accumulated, never fatal
	ProcessedAt time.Time `json:"processedAt"`
}

// TaxLine is one discriminated tax entry on the invoice.
type TaxLine struct {
	Codigo        string           `json:"codigo,omitempty"` // canonical tax code (IVA_21, PERC_IIBB, ...)
	Descripcion   string           `json:"descripcion,omitempty"`
	BaseImponible decimal.Decimal  `json:"baseImponible,omitempty"`
	Importe       decimal.Decimal  `json:"importe"`
	Alicuota      *decimal.Decimal `json:"alicuota,omitempty"` // nominal rate, nil when unknown
}

// Empty reports whether the line carries no amounts at all. Lines like this
// are extraction noise and get dropped.
func (l TaxLine) Empty() bool {
	return l.BaseImponible.IsZero() && l.Importe.IsZero()
}

// CompositeKey identifies a unique invoice for duplicate detection and
// accounting-export identity.
type CompositeKey struct {
	CUITEmisor      string `json:"cuitEmisor"`
	TipoComprobante string `json:"tipoComprobante"`
	PuntoVenta      string `json:"puntoVenta"`
	Numero          string `json:"numero"`
}

// Complete reports whether all four components are present.
func (k CompositeKey) Complete() bool {
	return k.CUITEmisor != "" && k.TipoComprobante != "" && k.PuntoVenta != "" && k.Numero != ""
}

// Key builds the composite key of the invoice.
func (inv *Invoice) Key() CompositeKey {
	return CompositeKey{
		CUITEmisor:      inv.CUITEmisor,
		TipoComprobante: inv.TipoComprobante,
		PuntoVenta:      inv.PuntoVenta,
		Numero:          inv.Numero,
	}
}

// ProcessResponse represents the output of invoice processing
type ProcessResponse struct {
	Success bool     `json:"success"`
	Invoice *Invoice `json:"invoice,omitempty"`
	Error   string   `json:"error,omitempty"`

	// Processing metadata
	OCRDuration   float64 `json:"ocrDuration,omitempty"` // OCR time in seconds
	AIDuration    float64 `json:"aiDuration,omitempty"`  // AI extraction time in seconds
	TotalDuration float64 `json:"totalDuration"`         // Total processing time
}

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// Logging
	Log LogConfig `yaml:"log"`

	// OCR config
	OCR OCRConfig `yaml:"ocr"`

	// AI config
	AI AIConfig `yaml:"ai"`

	// Pipeline config
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Export config
	Export ExportConfig `yaml:"export"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Environment string `yaml:"environment"` // local/dev use text handler, anything else JSON
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Engine   string `yaml:"engine"`   // "tesseract"
	Language string `yaml:"language"` // OCR language (default: "spa")
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`

	// Default provider
	DefaultProvider string `yaml:"default_provider"` // "openai", "gemini", "ollama"
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: "http://localhost:11434"
	Model   string `yaml:"model"`
}

// PipelineConfig holds the extraction pipeline knobs.
type PipelineConfig struct {
	// CUIT of the company receiving the invoices. Used to disambiguate
	// issuer vs receiver when a document carries both.
	ReceptorCUIT string `yaml:"receptor_cuit"`

	// Confidence at or above which a record skips manual review.
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold"`

	// Known supplier display names, keyed by a keyword that appears in the
	// OCR text (lowercase). Used as the second name-extraction strategy.
	KnownSuppliers map[string]string `yaml:"known_suppliers"`
}

// ExportConfig holds the fixed business defaults for the Tango export.
type ExportConfig struct {
	Sucursal string `yaml:"sucursal"` // branch code, default "1"
	Sector   string `yaml:"sector"`   // sector code, default "1"
	Moneda   string `yaml:"moneda"`   // currency literal, default "PES"
}
