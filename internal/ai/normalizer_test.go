package ai

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	emisorCUIT   = "30710410220"
	receptorCUIT = "30709076783"
)

const fullResponse = `{
  "cuitEmisor": "30-71041022-0",
  "nombreEmisor": "FERRETERIA EL TORNILLO S.R.L.",
  "cuitReceptor": "30-70907678-3",
  "tipoComprobante": "FA",
  "puntoVenta": "0003",
  "numero": "45871",
  "fechaEmision": "2024-03-15",
  "netoGravado": 1000,
  "netoNoGravado": 0,
  "exento": 0,
  "totalIva": 210,
  "otrosTributos": 0,
  "total": 1210,
  "impuestos": [
    {"codigo": "IVA_21", "descripcion": "IVA 21%", "baseImponible": 1000, "importe": 210, "alicuota": 21}
  ],
  "cae": "74123456789012",
  "caeVencimiento": "2024-03-25"
}`

func TestParseResponseFull(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	inv, err := n.ParseResponse(fullResponse, "texto ocr")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	if inv.CUITEmisor != emisorCUIT {
		t.Errorf("CUITEmisor = %q, want %q", inv.CUITEmisor, emisorCUIT)
	}
	if inv.CUITReceptor != receptorCUIT {
		t.Errorf("CUITReceptor = %q, want %q", inv.CUITReceptor, receptorCUIT)
	}
	if inv.NombreEmisor != "FERRETERIA EL TORNILLO S.R.L." {
		t.Errorf("NombreEmisor = %q", inv.NombreEmisor)
	}
	if inv.TipoComprobante != "FA" {
		t.Errorf("TipoComprobante = %q, want FA", inv.TipoComprobante)
	}
	if inv.PuntoVenta != "0003" {
		t.Errorf("PuntoVenta = %q, want 0003", inv.PuntoVenta)
	}
	if inv.Numero != "00045871" {
		t.Errorf("Numero = %q, want 00045871", inv.Numero)
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !inv.FechaEmision.Equal(want) {
		t.Errorf("FechaEmision = %v, want %v", inv.FechaEmision, want)
	}
	if !inv.Total.Equal(dec("1210")) {
		t.Errorf("Total = %s, want 1210", inv.Total)
	}
	if !inv.TotalIVA.Equal(dec("210")) {
		t.Errorf("TotalIVA = %s, want 210", inv.TotalIVA)
	}
	if inv.CAE != "74123456789012" {
		t.Errorf("CAE = %q", inv.CAE)
	}
	if len(inv.TaxLines) != 1 || inv.TaxLines[0].Codigo != "IVA_21" {
		t.Errorf("TaxLines = %+v", inv.TaxLines)
	}
	if inv.RawText != "texto ocr" {
		t.Errorf("RawText = %q", inv.RawText)
	}
	if inv.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", inv.Confidence)
	}
}

func TestParseResponseMarkdownFences(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	fenced := "```json\n" + fullResponse + "\n```"
	inv, err := n.ParseResponse(fenced, "")
	if err != nil {
		t.Fatalf("ParseResponse with fences: %v", err)
	}
	if inv.CUITEmisor != emisorCUIT {
		t.Errorf("CUITEmisor = %q, want %q", inv.CUITEmisor, emisorCUIT)
	}
}

func TestParseResponseProsePrefix(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	noisy := "Aqui esta el JSON solicitado:\n" + fullResponse + "\nEspero que ayude."
	inv, err := n.ParseResponse(noisy, "")
	if err != nil {
		t.Fatalf("ParseResponse with prose: %v", err)
	}
	if !inv.Total.Equal(dec("1210")) {
		t.Errorf("Total = %s, want 1210", inv.Total)
	}
}

func TestParseResponseInvalidJSON(t *testing.T) {
	n := NewNormalizer(receptorCUIT)
	if _, err := n.ParseResponse("no json here", ""); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestParseResponseInvalidCUITDropped(t *testing.T) {
	n := NewNormalizer("")

	resp := `{"cuitEmisor": "30710410221", "total": 100}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if inv.CUITEmisor != "" {
		t.Errorf("CUITEmisor = %q, want empty for bad check digit", inv.CUITEmisor)
	}
}

func TestParseResponseReceptorFallback(t *testing.T) {
	n := NewNormalizer("30-70907678-3")

	resp := `{"cuitEmisor": "30710410220", "total": 100}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if inv.CUITReceptor != receptorCUIT {
		t.Errorf("CUITReceptor = %q, want configured fallback %q", inv.CUITReceptor, receptorCUIT)
	}
}

func TestParseResponseSameCUITBothSides(t *testing.T) {
	n := NewNormalizer("")

	resp := `{"cuitEmisor": "30710410220", "cuitReceptor": "30710410220", "total": 100}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if inv.CUITReceptor != "" {
		t.Errorf("CUITReceptor = %q, want empty when equal to emisor", inv.CUITReceptor)
	}
}

func TestParseResponseTotalIVAFromLines(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	resp := `{
	  "total": 1331,
	  "totalIva": 0,
	  "impuestos": [
	    {"descripcion": "IVA 21%", "baseImponible": 1000, "importe": 210, "alicuota": 21},
	    {"descripcion": "IVA 10.5%", "baseImponible": 1000, "importe": 105, "alicuota": 10.5},
	    {"descripcion": "Percepcion IIBB ARBA", "importe": 16}
	  ]
	}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !inv.TotalIVA.Equal(dec("315")) {
		t.Errorf("TotalIVA = %s, want 315 (IVA lines only)", inv.TotalIVA)
	}
	if len(inv.TaxLines) != 3 {
		t.Fatalf("TaxLines = %d, want 3", len(inv.TaxLines))
	}
	if inv.TaxLines[1].Codigo != "IVA_105" {
		t.Errorf("line 1 Codigo = %q, want IVA_105", inv.TaxLines[1].Codigo)
	}
	if inv.TaxLines[2].Codigo != "PERC_IIBB" {
		t.Errorf("line 2 Codigo = %q, want PERC_IIBB", inv.TaxLines[2].Codigo)
	}
}

func TestParseResponseEmptyTaxLinesDropped(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	resp := `{
	  "total": 100,
	  "impuestos": [
	    {"codigo": "IVA_21", "descripcion": "IVA 21%", "baseImponible": 0, "importe": 0}
	  ]
	}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(inv.TaxLines) != 0 {
		t.Errorf("TaxLines = %+v, want empty", inv.TaxLines)
	}
}

func TestParseResponseDocTipoVariants(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FA", "FA"},
		{"factura a", "FA"},
		{"NOTA DE CREDITO B", "NCB"},
		{"NOTA DE CRÉDITO A", "NCA"},
		{"NOTA DE DÉBITO C", "NDC"},
		{"FACTURA M", "FA"},
		{"RECIBO", ""},
	}
	n := NewNormalizer(receptorCUIT)
	for _, tt := range tests {
		resp := `{"tipoComprobante": "` + tt.in + `", "total": 1}`
		inv, err := n.ParseResponse(resp, "")
		if err != nil {
			t.Fatalf("ParseResponse(%q): %v", tt.in, err)
		}
		if inv.TipoComprobante != tt.want {
			t.Errorf("tipo %q = %q, want %q", tt.in, inv.TipoComprobante, tt.want)
		}
	}
}

func TestParseResponseNumericPuntoVenta(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	// Models sometimes answer numbers where the prompt asked for strings.
	resp := `{"puntoVenta": 3, "numero": 45871, "total": 1}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if inv.PuntoVenta != "0003" {
		t.Errorf("PuntoVenta = %q, want 0003", inv.PuntoVenta)
	}
	if inv.Numero != "00045871" {
		t.Errorf("Numero = %q, want 00045871", inv.Numero)
	}
}

func TestParseResponseDateLayouts(t *testing.T) {
	tests := []string{"2024-03-15", "15/03/2024", "15-03-2024"}
	n := NewNormalizer(receptorCUIT)
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, in := range tests {
		resp := `{"fechaEmision": "` + in + `", "total": 1}`
		inv, err := n.ParseResponse(resp, "")
		if err != nil {
			t.Fatalf("ParseResponse(%q): %v", in, err)
		}
		if !inv.FechaEmision.Equal(want) {
			t.Errorf("fecha %q = %v, want %v", in, inv.FechaEmision, want)
		}
	}
}

func TestStripMarkdownFences(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	if got := stripMarkdownFences(in); got != `{"a": 1}` {
		t.Errorf("stripMarkdownFences = %q", got)
	}
	if got := stripMarkdownFences(`{"a": 1}`); got != `{"a": 1}` {
		t.Errorf("plain JSON altered: %q", got)
	}
}

func TestParseDecimalStringAmount(t *testing.T) {
	n := NewNormalizer(receptorCUIT)

	resp := `{"total": "1.234,56"}`
	inv, err := n.ParseResponse(resp, "")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !inv.Total.Equal(dec("1234.56")) {
		t.Errorf("Total = %s, want 1234.56", inv.Total)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
