package taxcode

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/models"
)

func rate(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		line models.TaxLine
		want string
	}{
		{
			name: "explicit canonical code wins",
			line: models.TaxLine{Codigo: "IVA_21", Descripcion: "whatever"},
			want: IVA21,
		},
		{
			name: "explicit code is case insensitive",
			line: models.TaxLine{Codigo: "perc_iibb"},
			want: PercIIBB,
		},
		{
			name: "percepcion IIBB keyword beats bogus numeric code",
			line: models.TaxLine{Codigo: "99", Descripcion: "Percepción IIBB"},
			want: PercIIBB,
		},
		{
			name: "ingresos brutos wording",
			line: models.TaxLine{Descripcion: "Perc. Ingresos Brutos CABA"},
			want: PercIIBB,
		},
		{
			name: "arba synonym",
			line: models.TaxLine{Descripcion: "Percep. ARBA disp 74/11"},
			want: PercIIBB,
		},
		{
			name: "percepcion iva keyword",
			line: models.TaxLine{Descripcion: "PERCEPCION IVA RG 3337"},
			want: PercIVA,
		},
		{
			name: "rate inference 21",
			line: models.TaxLine{Descripcion: "Alicuota general", Alicuota: rate(21)},
			want: IVA21,
		},
		{
			name: "rate inference 10.5",
			line: models.TaxLine{Descripcion: "Alicuota reducida", Alicuota: rate(10.5)},
			want: IVA105,
		},
		{
			name: "rate inference 27",
			line: models.TaxLine{Alicuota: rate(27)},
			want: IVA27,
		},
		{
			name: "keyword beats rate",
			line: models.TaxLine{Descripcion: "Percepcion IIBB", Alicuota: rate(21)},
			want: PercIIBB,
		},
		{
			name: "nothing resolves keeps sentinel",
			line: models.TaxLine{Codigo: "42", Descripcion: "Tasa municipal"},
			want: Unresolved,
		},
		{
			name: "unknown rate keeps sentinel",
			line: models.TaxLine{Alicuota: rate(13)},
			want: Unresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.line); got != tt.want {
				t.Errorf("Normalize(%+v) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestNormalizeLines(t *testing.T) {
	lines := []models.TaxLine{
		{Descripcion: "IVA 21%", Alicuota: rate(21)},
		{Descripcion: "Tasa vial"},
	}

	unresolved := NormalizeLines(lines)

	if lines[0].Codigo != IVA21 {
		t.Errorf("first line code = %q, want %q", lines[0].Codigo, IVA21)
	}
	if lines[1].Codigo != Unresolved {
		t.Errorf("second line code = %q, want %q", lines[1].Codigo, Unresolved)
	}
	if len(unresolved) != 1 || unresolved[0] != "Tasa vial" {
		t.Errorf("unresolved = %v, want [Tasa vial]", unresolved)
	}
}
