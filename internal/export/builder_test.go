package export

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseRecord() Record {
	alicuota := dec("21")
	return Record{
		ID: "inv-001",
		Invoice: models.Invoice{
			CUITEmisor:      "30710410220",
			NombreEmisor:    "FERRETERIA EL TORNILLO S.R.L.",
			CUITReceptor:    "30709076783",
			TipoComprobante: "FA",
			PuntoVenta:      "0003",
			Numero:          "00045871",
			FechaEmision:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			NetoGravado:     dec("1000"),
			TotalIVA:        dec("210"),
			Total:           dec("1210"),
			TaxLines: []models.TaxLine{
				{Codigo: "IVA_21", Descripcion: "IVA 21%", BaseImponible: dec("1000"), Importe: dec("210"), Alicuota: &alicuota},
			},
			CAE:            "74123456789012",
			CAEVencimiento: time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC),
		},
	}
}

func knownMasters() Masters {
	return Masters{
		Suppliers: map[string]Supplier{
			"30710410220": {Codigo: "P0042", RazonSocial: "FERRETERIA EL TORNILLO SRL"},
		},
	}
}

func TestBuildKnownSupplier(t *testing.T) {
	b := NewBuilder(models.ExportConfig{})

	row := b.Build(baseRecord(), knownMasters())

	if row.CodProveedor != "P0042" {
		t.Errorf("CodProveedor = %q, want P0042", row.CodProveedor)
	}
	if row.RazonSocial != "FERRETERIA EL TORNILLO SRL" {
		t.Errorf("RazonSocial = %q, want master name", row.RazonSocial)
	}
	if row.TipoComprobante != VoucherFactura {
		t.Errorf("TipoComprobante = %q, want %q", row.TipoComprobante, VoucherFactura)
	}
	if row.Letra != "A" {
		t.Errorf("Letra = %q, want A", row.Letra)
	}
	if row.FechaEmision != "15/03/2024" {
		t.Errorf("FechaEmision = %q, want 15/03/2024", row.FechaEmision)
	}
	if row.FechaContable != row.FechaEmision {
		t.Errorf("FechaContable = %q, want default to emision %q", row.FechaContable, row.FechaEmision)
	}
	if row.TipoOperacion != "C" || row.Clasificador != "G" {
		t.Errorf("literals = %q/%q, want C/G", row.TipoOperacion, row.Clasificador)
	}
	if row.CondCompra != CondicionCuentaCorriente {
		t.Errorf("CondCompra = %q, want default cuenta corriente", row.CondCompra)
	}
	if row.Sucursal != "1" || row.Sector != "1" || row.Moneda != "PES" {
		t.Errorf("defaults = %q/%q/%q, want 1/1/PES", row.Sucursal, row.Sector, row.Moneda)
	}
	if !row.ImporteConcepto.Equal(dec("1000")) {
		t.Errorf("ImporteConcepto = %s, want total minus IVA = 1000", row.ImporteConcepto)
	}
	if row.Concepto != DefaultConcepto {
		t.Errorf("Concepto = %q, want default %q", row.Concepto, DefaultConcepto)
	}
	if row.CAEVencimiento != "25/03/2024" {
		t.Errorf("CAEVencimiento = %q", row.CAEVencimiento)
	}
}

func TestBuildUnknownSupplierFallsBackToCUIT(t *testing.T) {
	b := NewBuilder(models.ExportConfig{})

	row := b.Build(baseRecord(), Masters{})

	if row.CodProveedor != "30710410220" {
		t.Errorf("CodProveedor = %q, want raw CUIT fallback", row.CodProveedor)
	}
	if row.RazonSocial != "FERRETERIA EL TORNILLO S.R.L." {
		t.Errorf("RazonSocial = %q, want invoice name", row.RazonSocial)
	}
}

func TestBuildVoucherCodes(t *testing.T) {
	tests := []struct {
		tipo        string
		wantVoucher string
		wantLetra   string
	}{
		{"FA", "21", "A"},
		{"FB", "21", "B"},
		{"FC", "21", "C"},
		{"NDA", "22", "A"},
		{"NDB", "22", "B"},
		{"NCA", "23", "A"},
		{"NCC", "23", "C"},
		{"", "", ""},
	}
	b := NewBuilder(models.ExportConfig{})
	for _, tt := range tests {
		rec := baseRecord()
		rec.Invoice.TipoComprobante = tt.tipo
		row := b.Build(rec, Masters{})
		if row.TipoComprobante != tt.wantVoucher {
			t.Errorf("tipo %q: voucher = %q, want %q", tt.tipo, row.TipoComprobante, tt.wantVoucher)
		}
		if row.Letra != tt.wantLetra {
			t.Errorf("tipo %q: letra = %q, want %q", tt.tipo, row.Letra, tt.wantLetra)
		}
	}
}

func TestBuildCondicionCompra(t *testing.T) {
	b := NewBuilder(models.ExportConfig{})

	rec := baseRecord()
	rec.Invoice.RawText = "FACTURA A\nCondicion de venta: CONTADO\nTotal 1210"
	if row := b.Build(rec, Masters{}); row.CondCompra != CondicionContado {
		t.Errorf("keyword scan: CondCompra = %q, want contado", row.CondCompra)
	}

	rec = baseRecord()
	rec.CondicionCompra = CondicionContado
	rec.Invoice.RawText = "sin keywords"
	if row := b.Build(rec, Masters{}); row.CondCompra != CondicionContado {
		t.Errorf("operator override: CondCompra = %q, want contado", row.CondCompra)
	}

	rec = baseRecord()
	masters := Masters{Suppliers: map[string]Supplier{
		"30710410220": {Codigo: "P0042", CondicionCompra: CondicionContado},
	}}
	if row := b.Build(rec, masters); row.CondCompra != CondicionContado {
		t.Errorf("supplier master: CondCompra = %q, want contado", row.CondCompra)
	}
}

func TestBuildOperatorOverrides(t *testing.T) {
	b := NewBuilder(models.ExportConfig{Sucursal: "3", Sector: "7", Moneda: "USD"})

	rec := baseRecord()
	rec.FechaContable = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rec.Concepto = "4"
	rec.ImporteConcepto = dec("500")

	row := b.Build(rec, knownMasters())

	if row.FechaContable != "01/04/2024" {
		t.Errorf("FechaContable = %q, want override 01/04/2024", row.FechaContable)
	}
	if row.Concepto != "4" || !row.ImporteConcepto.Equal(dec("500")) {
		t.Errorf("concept = %q/%s, want 4/500", row.Concepto, row.ImporteConcepto)
	}
	if row.Sucursal != "3" || row.Sector != "7" || row.Moneda != "USD" {
		t.Errorf("config = %q/%q/%q", row.Sucursal, row.Sector, row.Moneda)
	}
}

func TestBuildRoundTrip(t *testing.T) {
	b := NewBuilder(models.ExportConfig{})
	rec := baseRecord()

	row := b.Build(rec, knownMasters())

	// Mapping the row back through the column semantics reproduces the
	// inputs: same document type, voucher and amounts.
	if got := row.TipoComprobante + row.Letra; got != "21A" {
		t.Errorf("voucher+letra = %q, want 21A for FA", got)
	}
	if !row.NetoGravado.Equal(rec.Invoice.NetoGravado) ||
		!row.IVA.Equal(rec.Invoice.TotalIVA) ||
		!row.Total.Equal(rec.Invoice.Total) {
		t.Errorf("amounts mutated: neto=%s iva=%s total=%s", row.NetoGravado, row.IVA, row.Total)
	}
	if !row.ImporteConcepto.Equal(rec.Invoice.Total.Sub(rec.Invoice.TotalIVA)) {
		t.Errorf("ImporteConcepto = %s, want total minus IVA", row.ImporteConcepto)
	}
}

func TestBuildBatch(t *testing.T) {
	b := NewBuilder(models.ExportConfig{})

	rec1 := baseRecord()
	rec2 := baseRecord()
	rec2.ID = "inv-002"
	rec2.Invoice.TaxLines = nil

	batch := b.BuildBatch([]Record{rec1, rec2}, knownMasters())

	if len(batch.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(batch.Rows))
	}
	if len(batch.TaxRows) != 1 {
		t.Fatalf("TaxRows = %d, want 1", len(batch.TaxRows))
	}
	if batch.TaxRows[0].IDExterno != "inv-001" || batch.TaxRows[0].Codigo != "IVA_21" {
		t.Errorf("TaxRows[0] = %+v", batch.TaxRows[0])
	}
	if len(batch.Concepts) != 2 {
		t.Fatalf("Concepts = %d, want 2", len(batch.Concepts))
	}
	if batch.Concepts[1].IDExterno != "inv-002" {
		t.Errorf("Concepts[1].IDExterno = %q", batch.Concepts[1].IDExterno)
	}
}

func TestRowValuesMatchColumns(t *testing.T) {
	b := NewBuilder(models.ExportConfig{})
	row := b.Build(baseRecord(), knownMasters())

	values := row.Values()
	if len(values) != len(ColumnNames) {
		t.Fatalf("Values() = %d fields, columns = %d", len(values), len(ColumnNames))
	}
	if len(ColumnNames) != 27 {
		t.Fatalf("ColumnNames = %d, want 27", len(ColumnNames))
	}
}
