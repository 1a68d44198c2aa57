// Package extract pulls canonical invoice fields out of raw OCR text using
// ordered lists of pattern strategies per field. It is the lower-accuracy
// fallback path when the AI providers are unavailable, and the source of the
// confidence score both paths share.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/cuit"
	"github.com/facturasur/invoice-export-service/internal/models"
)

// ErrEmptyText is returned for structurally unreadable input. Missing
// individual fields are never an error.
var ErrEmptyText = errors.New("extract: empty document text")

// Extractor runs the per-field strategy tables over recognized text.
type Extractor struct {
	receptorCUIT   string            // known receiver, injected from config
	knownSuppliers map[string]string // lowercase keyword -> display name
}

// New creates an extractor. receptorCUIT is the CUIT of the company that
// receives the invoices; it is excluded from issuer candidates.
func New(receptorCUIT string, knownSuppliers map[string]string) *Extractor {
	return &Extractor{
		receptorCUIT:   cuit.Normalize(receptorCUIT),
		knownSuppliers: knownSuppliers,
	}
}

// Extract runs every field strategy over text and returns a partial canonical
// invoice. Fields no strategy matched are left at their zero value.
func (e *Extractor) Extract(text string) (*models.Invoice, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	inv := &models.Invoice{
		RawText:     text,
		ProcessedAt: time.Now(),
	}

	e.extractCUITs(text, inv)
	inv.NombreEmisor = e.extractSupplierName(text)
	inv.TipoComprobante = extractDocType(text)
	inv.PuntoVenta, inv.Numero = extractSeriesNumber(text)
	inv.FechaEmision = extractIssueDate(text)
	extractAmounts(text, inv)
	inv.TaxLines = extractTaxLines(text)
	inv.CAE, inv.CAEVencimiento = extractCAE(text)

	// No labeled IVA total: derive it from the discriminated lines.
	if inv.TotalIVA.IsZero() {
		for _, l := range inv.TaxLines {
			if strings.HasPrefix(l.Codigo, "IVA_") {
				inv.TotalIVA = inv.TotalIVA.Add(l.Importe)
			}
		}
	}

	inv.Confidence = Score(inv)
	return inv, nil
}

// --- CUITs ---

var cuitShape = regexp.MustCompile(`\b\d{2}-?\d{8}-?\d\b`)

// extractCUITs scans for every CUIT-shaped substring, keeps the checksum
// valid ones in order of appearance without duplicates, and splits them into
// issuer and receiver. The configured receiver CUIT is never an issuer
// candidate; absent it, the second unique valid CUIT is taken as receiver.
func (e *Extractor) extractCUITs(text string, inv *models.Invoice) {
	seen := map[string]bool{}
	var valid []string
	for _, m := range cuitShape.FindAllString(text, -1) {
		id := cuit.Normalize(m)
		if seen[id] || !cuit.Valid(id) {
			continue
		}
		seen[id] = true
		valid = append(valid, id)
	}

	receptorPresent := seen[e.receptorCUIT]
	for _, id := range valid {
		if id == e.receptorCUIT {
			continue
		}
		inv.CUITEmisor = id
		break
	}

	switch {
	case receptorPresent:
		inv.CUITReceptor = e.receptorCUIT
	case len(valid) >= 2:
		inv.CUITReceptor = valid[1]
	}
}

// --- Supplier name ---

var nameLabels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Raz[oó]n\s+Social\s*[:.]?\s*(.+)`),
	regexp.MustCompile(`(?i)^Nombre\s*[:.]?\s*(.+)`),
	regexp.MustCompile(`(?i)Denominaci[oó]n\s*[:.]?\s*(.+)`),
}

// bannerLine matches document-type banners and copy markers that must not be
// mistaken for a supplier name in the first-lines fallback.
var bannerLine = regexp.MustCompile(`(?i)^\s*(FACTURA|NOTA\s+DE\s+(CR[EÉ]DITO|D[EÉ]BITO)|ORIGINAL|DUPLICADO|TRIPLICADO|COMPROBANTE|C[OÓ]D\.?\s*\d+|[ABCM])\s*$`)

func (e *Extractor) extractSupplierName(text string) string {
	// Strategy 1: labeled patterns.
	for _, re := range nameLabels {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := cleanNameCandidate(m[1]); name != "" {
				return name
			}
		}
	}

	// Strategy 2: known-name keyword table.
	lower := strings.ToLower(text)
	for keyword, name := range e.knownSuppliers {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return name
		}
	}

	// Strategy 3: the first non-empty, non-banner lines of the document.
	inspected := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		inspected++
		if inspected > 5 {
			break
		}
		if bannerLine.MatchString(line) || cuitShape.MatchString(line) {
			continue
		}
		if name := cleanNameCandidate(line); name != "" {
			return name
		}
	}
	return ""
}

func cleanNameCandidate(s string) string {
	s = strings.TrimSpace(s)
	// A name candidate that is mostly digits is a number the OCR misplaced.
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if s == "" || digits*2 > len(s) {
		return ""
	}
	return s
}

// --- Document type ---

// afipDocCodes maps AFIP comprobante codes to the canonical type.
var afipDocCodes = map[string]string{
	"1": "FA", "2": "NDA", "3": "NCA",
	"6": "FB", "7": "NDB", "8": "NCB",
	"11": "FC", "12": "NDC", "13": "NCC",
}

var (
	docBannerFactura = regexp.MustCompile(`(?i)FACTURA\s*["']?\s*([ABCM])\b`)
	docBannerNC      = regexp.MustCompile(`(?i)NOTA\s+DE\s+CR[EÉ]DITO\s*["']?\s*([ABC])\b`)
	docBannerND      = regexp.MustCompile(`(?i)NOTA\s+DE\s+D[EÉ]BITO\s*["']?\s*([ABC])\b`)
	docAfipCode      = regexp.MustCompile(`(?i)C[OÓ]D(?:IGO)?\.?\s*0?(\d{1,2})\b`)
	docLetterBox     = regexp.MustCompile(`(?m)^\s*([ABC])\s*$`)
)

func extractDocType(text string) string {
	// Strategy 1: banner with letter.
	if m := docBannerNC.FindStringSubmatch(text); m != nil {
		return "NC" + strings.ToUpper(m[1])
	}
	if m := docBannerND.FindStringSubmatch(text); m != nil {
		return "ND" + strings.ToUpper(m[1])
	}
	if m := docBannerFactura.FindStringSubmatch(text); m != nil {
		letter := strings.ToUpper(m[1])
		if letter == "M" {
			letter = "A" // factura M books like an A for purchase import
		}
		return "F" + letter
	}

	// Strategy 2: the AFIP numeric code printed next to the letter box.
	if m := docAfipCode.FindStringSubmatch(text); m != nil {
		if code, ok := afipDocCodes[strings.TrimLeft(m[1], "0")]; ok {
			return code
		}
	}

	// Strategy 3: a lone letter line plus a FACTURA mention anywhere.
	if strings.Contains(strings.ToUpper(text), "FACTURA") {
		if m := docLetterBox.FindStringSubmatch(text); m != nil {
			return "F" + strings.ToUpper(m[1])
		}
	}
	return ""
}

// --- Series / number ---

var seriesNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Comp(?:robante)?\.?\s*(?:Nro|N[°º])\.?\s*[:.]?\s*(\d{1,5})\s*-\s*(\d{1,8})`),
	regexp.MustCompile(`(?i)Punto\s+de\s+Venta\s*[:.]?\s*(\d{1,5})\s*(?:Comp\.?\s*Nro\.?\s*[:.]?\s*|N[°º]\s*)(\d{1,8})`),
	regexp.MustCompile(`(?i)N[°º]?\s*[:.]?\s*(\d{4,5})\s*-\s*(\d{8})`),
	regexp.MustCompile(`\b(\d{4,5})-(\d{8})\b`),
}

func extractSeriesNumber(text string) (string, string) {
	for _, re := range seriesNumberPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return padLeft(m[1], 4), padLeft(m[2], 8)
		}
	}
	return "", ""
}

func padLeft(s string, width int) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// --- Issue date ---

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Fecha\s+de\s+Emisi[oó]n\s*[:.]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`(?i)Fecha\s*[:.]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`),
}

var dateLayouts = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02/01/06", "02-01-06"}

func extractIssueDate(text string) time.Time {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if t := parseDayFirst(m[1]); !t.IsZero() {
				return t
			}
		}
	}
	return time.Time{}
}

func parseDayFirst(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- Amounts ---

const importeShape = `\$?\s*([\d.]+,\d{2}|\d{1,3}(?:\.\d{3})+|[\d,]+\.\d{2}|\d+)`

var amountPatterns = []struct {
	field func(*models.Invoice) *decimal.Decimal
	res   []*regexp.Regexp
}{
	{
		field: func(i *models.Invoice) *decimal.Decimal { return &i.NetoGravado },
		res: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Importe\s+Neto\s+Gravado\s*[:.]?\s*` + importeShape),
			regexp.MustCompile(`(?i)Neto\s+Gravado\s*[:.]?\s*` + importeShape),
			regexp.MustCompile(`(?i)Subtotal\s*[:.]?\s*` + importeShape),
		},
	},
	{
		field: func(i *models.Invoice) *decimal.Decimal { return &i.NetoNoGravado },
		res: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:Importe\s+)?(?:Neto\s+)?No\s+Gravado\s*[:.]?\s*` + importeShape),
		},
	},
	{
		field: func(i *models.Invoice) *decimal.Decimal { return &i.Exento },
		res: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:Importe\s+)?(?:Operaciones\s+)?Exent[oa]s?\s*[:.]?\s*` + importeShape),
		},
	},
	{
		field: func(i *models.Invoice) *decimal.Decimal { return &i.TotalIVA },
		res: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Importe\s+(?:Total\s+)?IVA\s*[:.]?\s*` + importeShape),
			regexp.MustCompile(`(?i)Total\s+IVA\s*[:.]?\s*` + importeShape),
		},
	},
	{
		field: func(i *models.Invoice) *decimal.Decimal { return &i.OtrosTributos },
		res: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:Importe\s+)?Otros\s+Tributos\s*[:.]?\s*` + importeShape),
		},
	},
	{
		field: func(i *models.Invoice) *decimal.Decimal { return &i.Total },
		res: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Importe\s+Total\s*[:.]?\s*` + importeShape),
			regexp.MustCompile(`(?i)\bTOTAL\s*[:.]?\s*` + importeShape),
		},
	},
}

func extractAmounts(text string, inv *models.Invoice) {
	for _, ap := range amountPatterns {
		for _, re := range ap.res {
			if m := re.FindStringSubmatch(text); m != nil {
				*ap.field(inv) = ParseImporte(m[1])
				break
			}
		}
	}
}

// dotThousands matches whole amounts whose dots can only be thousands
// separators, e.g. "1.210" or "1.500.000".
var dotThousands = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)

// ParseImporte parses an amount in es-AR display formats: thousands dots
// with decimal comma ("1.234,56"), dot-grouped whole amounts ("1.210"), plain
// decimal comma ("1234,56"), or en-US style ("1,234.56"). Unparseable input
// yields zero.
func ParseImporte(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		// decimal comma, dots (if any) are thousands separators
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma:
		// decimal dot, commas (if any) are thousands separators
		s = strings.ReplaceAll(s, ",", "")
		// unless the dots group thousands with no decimal part ("1.210",
		// "1.500.000"), the es-AR way of printing a whole amount
		if dotThousands.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// --- Tax lines ---

// taxLineTriplet captures rate, base and amount of a discriminated IVA line,
// e.g. "IVA 21%: 1.000,00 210,00".
var taxLineTriplet = regexp.MustCompile(`(?i)IVA\s*(\d{1,2}(?:[.,]5)?)\s*%?\s*(?:s/|sobre)?\s*[:.]?\s*` + importeShape + `\s+` + importeShape)

func extractTaxLines(text string) []models.TaxLine {
	var lines []models.TaxLine
	for _, m := range taxLineTriplet.FindAllStringSubmatch(text, -1) {
		rate := ParseImporte(strings.Replace(m[1], ",", ".", 1))
		line := models.TaxLine{
			Codigo:        fmt.Sprintf("IVA_%s", strings.ReplaceAll(strings.Replace(m[1], ",", ".", 1), ".", "")),
			Descripcion:   fmt.Sprintf("IVA %s%%", m[1]),
			BaseImponible: ParseImporte(m[2]),
			Importe:       ParseImporte(m[3]),
			Alicuota:      &rate,
		}
		if line.Empty() {
			continue // extraction noise
		}
		lines = append(lines, line)
	}
	return lines
}

// --- CAE ---

var caeLabeled = []*regexp.Regexp{
	regexp.MustCompile(`(?i)CAE\s*(?:N[°º]?)?\s*[:.]?\s*(\d{14})`),
	regexp.MustCompile(`(?i)C\.A\.E\.?\s*(?:N[°º]?)?\s*[:.]?\s*(\d{14})`),
	regexp.MustCompile(`(?i)Autorizaci[oó]n\s*(?:N[°º]?)?\s*[:.]?\s*(\d{14})`),
}

var (
	caeVto     = regexp.MustCompile(`(?i)(?:Fecha\s+de\s+)?Vto\.?\s*(?:de\s*)?CAE\s*[:.]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)
	digitRun14 = regexp.MustCompile(`\b\d{14}\b`)
	caeWord    = regexp.MustCompile(`(?i)C\.?A\.?E\.?`)
)

func extractCAE(text string) (string, time.Time) {
	var cae string
	for _, re := range caeLabeled {
		if m := re.FindStringSubmatch(text); m != nil {
			cae = m[1]
			break
		}
	}

	if cae == "" {
		// Fallback: among all 14-digit runs, prefer the one nearest a CAE
		// label word.
		label := caeWord.FindStringIndex(text)
		best := -1
		bestDist := len(text) + 1
		for _, loc := range digitRun14.FindAllStringIndex(text, -1) {
			dist := 0
			if label != nil {
				dist = loc[0] - label[0]
				if dist < 0 {
					dist = -dist
				}
			}
			if best == -1 || dist < bestDist {
				best = loc[0]
				bestDist = dist
			}
		}
		if best >= 0 {
			cae = text[best : best+14]
		}
	}

	var vto time.Time
	if m := caeVto.FindStringSubmatch(text); m != nil {
		vto = parseDayFirst(m[1])
	}
	return cae, vto
}
