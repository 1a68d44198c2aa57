// Package taxcode maps heterogeneous tax-line descriptions and provisional
// codes onto the small canonical set the accounting export understands.
package taxcode

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/models"
)

// Canonical tax codes.
const (
	IVA21    = "IVA_21"
	IVA105   = "IVA_105"
	IVA27    = "IVA_27"
	IVA5     = "IVA_5"
	IVA25    = "IVA_25"
	PercIIBB = "PERC_IIBB"
	PercIVA  = "PERC_IVA"

	// Unresolved marks a line no strategy could classify. The line is kept,
	// not dropped, and surfaced as a warning at export time.
	Unresolved = "SIN_CLASIFICAR"
)

var canonical = map[string]bool{
	IVA21:    true,
	IVA105:   true,
	IVA27:    true,
	IVA5:     true,
	IVA25:    true,
	PercIIBB: true,
	PercIVA:  true,
}

// keywordCodes maps description phrases (lowercase, accent-stripped) to a
// canonical code. Checked in order; first hit wins. A keyword match beats
// whatever numeric code OCR or the AI guessed for the line.
var keywordCodes = []struct {
	keyword string
	code    string
}{
	{"percepcion iibb", PercIIBB},
	{"percepcion i.i.b.b", PercIIBB},
	{"perc. iibb", PercIIBB},
	{"perc iibb", PercIIBB},
	{"ingresos brutos", PercIIBB},
	{"ing. brutos", PercIIBB},
	{"ing brutos", PercIIBB},
	{"iibb", PercIIBB},
	{"arba", PercIIBB},
	{"agip", PercIIBB},
	{"percepcion iva", PercIVA},
	{"perc. iva", PercIVA},
	{"perc iva", PercIVA},
	{"iva 21", IVA21},
	{"iva 10,5", IVA105},
	{"iva 10.5", IVA105},
	{"iva 27", IVA27},
	{"iva 5", IVA5},
	{"iva 2,5", IVA25},
	{"iva 2.5", IVA25},
}

// rateCodes maps a nominal VAT rate to its canonical code.
var rateCodes = []struct {
	rate decimal.Decimal
	code string
}{
	{decimal.NewFromFloat(21), IVA21},
	{decimal.NewFromFloat(10.5), IVA105},
	{decimal.NewFromFloat(27), IVA27},
	{decimal.NewFromFloat(5), IVA5},
	{decimal.NewFromFloat(2.5), IVA25},
}

// IsCanonical reports whether code belongs to the canonical set.
func IsCanonical(code string) bool {
	return canonical[code]
}

// Normalize resolves the canonical code for a tax line. Resolution order:
// explicit canonical code, description keyword match, nominal-rate
// inference. Lines nothing resolves keep the Unresolved sentinel.
func Normalize(line models.TaxLine) string {
	if canonical[strings.ToUpper(strings.TrimSpace(line.Codigo))] {
		return strings.ToUpper(strings.TrimSpace(line.Codigo))
	}

	desc := Fold(line.Descripcion)
	for _, kw := range keywordCodes {
		if strings.Contains(desc, kw.keyword) {
			return kw.code
		}
	}

	if line.Alicuota != nil {
		for _, rc := range rateCodes {
			if line.Alicuota.Equal(rc.rate) {
				return rc.code
			}
		}
	}

	return Unresolved
}

// NormalizeLines resolves every line in place and returns the descriptions
// of the ones that stayed unresolved, for warning reporting.
func NormalizeLines(lines []models.TaxLine) []string {
	var unresolved []string
	for i := range lines {
		lines[i].Codigo = Normalize(lines[i])
		if lines[i].Codigo == Unresolved {
			unresolved = append(unresolved, lines[i].Descripcion)
		}
	}
	return unresolved
}

// Fold lowercases and strips the accents that show up in OCR output and AI
// answers of Spanish fiscal wording.
func Fold(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
	)
	return replacer.Replace(s)
}
