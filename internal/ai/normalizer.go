package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/cuit"
	"github.com/facturasur/invoice-export-service/internal/extract"
	"github.com/facturasur/invoice-export-service/internal/models"
	"github.com/facturasur/invoice-export-service/internal/taxcode"
)

// rawInvoice mirrors the JSON contract of the prompt. Numeric fields come
// back as float64, string or null depending on the model, so everything
// loosely typed lands in interface{} first.
type rawInvoice struct {
	CUITEmisor      string       `json:"cuitEmisor"`
	NombreEmisor    string       `json:"nombreEmisor"`
	CUITReceptor    string       `json:"cuitReceptor"`
	TipoComprobante string       `json:"tipoComprobante"`
	PuntoVenta      interface{}  `json:"puntoVenta"`
	Numero          interface{}  `json:"numero"`
	FechaEmision    string       `json:"fechaEmision"`
	NetoGravado     interface{}  `json:"netoGravado"`
	NetoNoGravado   interface{}  `json:"netoNoGravado"`
	Exento          interface{}  `json:"exento"`
	TotalIVA        interface{}  `json:"totalIva"`
	OtrosTributos   interface{}  `json:"otrosTributos"`
	Total           interface{}  `json:"total"`
	Impuestos       []rawTaxLine `json:"impuestos"`
	CAE             string       `json:"cae"`
	CAEVencimiento  string       `json:"caeVencimiento"`
}

type rawTaxLine struct {
	Codigo        string      `json:"codigo"`
	Descripcion   string      `json:"descripcion"`
	BaseImponible interface{} `json:"baseImponible"`
	Importe       interface{} `json:"importe"`
	Alicuota      interface{} `json:"alicuota"`
}

// docTipos maps the comprobante labels a model tends to answer with to the
// canonical letter codes.
var docTipos = map[string]string{
	"FA": "FA", "FB": "FB", "FC": "FC",
	"NCA": "NCA", "NCB": "NCB", "NCC": "NCC",
	"NDA": "NDA", "NDB": "NDB", "NDC": "NDC",
	"FACTURA A": "FA", "FACTURA B": "FB", "FACTURA C": "FC",
	"FACTURA M":         "FA",
	"NOTA DE CREDITO A": "NCA", "NOTA DE CREDITO B": "NCB", "NOTA DE CREDITO C": "NCC",
	"NOTA DE DEBITO A": "NDA", "NOTA DE DEBITO B": "NDB", "NOTA DE DEBITO C": "NDC",
}

// Normalizer converts raw provider responses into canonical invoices.
type Normalizer struct {
	receptorCUIT string
}

// NewNormalizer creates a normalizer. receptorCUIT is the company's own
// CUIT, used to fill the receiver when the model omits it.
func NewNormalizer(receptorCUIT string) *Normalizer {
	return &Normalizer{receptorCUIT: cuit.Normalize(receptorCUIT)}
}

// ParseResponse parses the AI response into an Invoice and scores it.
func (n *Normalizer) ParseResponse(response string, rawText string) (*models.Invoice, error) {
	cleaned := stripMarkdownFences(response)

	var raw rawInvoice
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in AI response: %w", err)
	}

	inv := &models.Invoice{
		NombreEmisor:  strings.TrimSpace(raw.NombreEmisor),
		NetoGravado:   parseDecimal(raw.NetoGravado),
		NetoNoGravado: parseDecimal(raw.NetoNoGravado),
		Exento:        parseDecimal(raw.Exento),
		TotalIVA:      parseDecimal(raw.TotalIVA),
		OtrosTributos: parseDecimal(raw.OtrosTributos),
		Total:         parseDecimal(raw.Total),
		RawText:       rawText,
		ProcessedAt:   time.Now(),
	}

	// CUITs only survive normalization when the checksum holds. A bad
	// emisor CUIT costs confidence instead of poisoning the export.
	if c := cuit.Normalize(raw.CUITEmisor); cuit.Valid(c) {
		inv.CUITEmisor = c
	}
	if c := cuit.Normalize(raw.CUITReceptor); cuit.Valid(c) && c != inv.CUITEmisor {
		inv.CUITReceptor = c
	}
	if inv.CUITReceptor == "" && n.receptorCUIT != "" && n.receptorCUIT != inv.CUITEmisor {
		inv.CUITReceptor = n.receptorCUIT
	}

	if tipo, ok := docTipos[strings.ToUpper(strings.TrimSpace(taxcode.Fold(raw.TipoComprobante)))]; ok {
		inv.TipoComprobante = tipo
	}

	inv.PuntoVenta = padNumber(asString(raw.PuntoVenta), 4)
	inv.Numero = padNumber(asString(raw.Numero), 8)
	inv.FechaEmision = parseDate(raw.FechaEmision)

	if cae := digitsOnly(raw.CAE); len(cae) == 14 {
		inv.CAE = cae
		inv.CAEVencimiento = parseDate(raw.CAEVencimiento)
	}

	for _, rt := range raw.Impuestos {
		line := models.TaxLine{
			Codigo:        strings.TrimSpace(rt.Codigo),
			Descripcion:   strings.TrimSpace(rt.Descripcion),
			BaseImponible: parseDecimal(rt.BaseImponible),
			Importe:       parseDecimal(rt.Importe),
		}
		if a := parseDecimal(rt.Alicuota); !a.IsZero() {
			line.Alicuota = &a
		}
		if line.Empty() {
			continue
		}
		line.Codigo = taxcode.Normalize(line)
		inv.TaxLines = append(inv.TaxLines, line)
	}

	// Models often leave totalIva at 0 while still itemizing the IVA
	// lines. Recover it from the detail.
	if inv.TotalIVA.IsZero() {
		sum := decimal.Zero
		for _, line := range inv.TaxLines {
			if strings.HasPrefix(line.Codigo, "IVA_") {
				sum = sum.Add(line.Importe)
			}
		}
		inv.TotalIVA = sum
	}

	inv.Confidence = extract.Score(inv)
	return inv, nil
}

// stripMarkdownFences removes ```json ... ``` wrappers some models insist
// on adding despite the prompt.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	// Some models prepend prose. Cut to the outermost JSON object.
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 {
		s = s[:end+1]
	}
	return strings.TrimSpace(s)
}

// parseDecimal converts the interface{} numeric fields of the raw response.
// Null, missing or unparsable values become zero.
func parseDecimal(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case string:
		val = strings.TrimSpace(val)
		if val == "" || strings.EqualFold(val, "null") {
			return decimal.Zero
		}
		return extract.ParseImporte(val)
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02/01/06",
	"2006/01/02",
}

// parseDate tries the layouts a model answers with. Zero time when nothing
// matches.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// asString renders a field that may arrive as string or number, keeping
// leading zeros when the model quoted them.
func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func padNumber(s string, width int) string {
	s = digitsOnly(s)
	if s == "" || len(s) > width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
