package export

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/models"
)

// Record is one exportable invoice: the canonical fields plus the operator
// overrides the review flow may have set.
type Record struct {
	ID      string
	Invoice models.Invoice

	// Operator overrides. Zero values mean "derive the default".
	FechaContable   time.Time
	CondicionCompra string
	Concepto        string
	ImporteConcepto decimal.Decimal
}

// Supplier is the master-data entry for a known provider.
type Supplier struct {
	Codigo          string
	RazonSocial     string
	CondicionCompra string
}

// Masters is the read-only master-data snapshot an export batch runs over.
type Masters struct {
	Suppliers map[string]Supplier // keyed by CUIT
	Concepts  map[string]string   // code -> description
}

// voucherCodes is the closed document-type to Tango voucher mapping.
var voucherCodes = map[string]string{
	"FA": VoucherFactura, "FB": VoucherFactura, "FC": VoucherFactura,
	"NDA": VoucherNotaDebito, "NDB": VoucherNotaDebito, "NDC": VoucherNotaDebito,
	"NCA": VoucherNotaCredito, "NCB": VoucherNotaCredito, "NCC": VoucherNotaCredito,
}

// DefaultConcepto is the concept code used when the operator assigned none.
const DefaultConcepto = "1"

// Builder derives Tango rows from invoice records.
type Builder struct {
	cfg models.ExportConfig
}

// NewBuilder creates a builder with the configured branch defaults.
func NewBuilder(cfg models.ExportConfig) *Builder {
	if cfg.Sucursal == "" {
		cfg.Sucursal = "1"
	}
	if cfg.Sector == "" {
		cfg.Sector = "1"
	}
	if cfg.Moneda == "" {
		cfg.Moneda = "PES"
	}
	return &Builder{cfg: cfg}
}

// Build derives the export row for one record against the master snapshot.
// Derivation never fails; missing inputs surface later as diagnostics.
func (b *Builder) Build(rec Record, masters Masters) ExportRow {
	inv := rec.Invoice

	row := ExportRow{
		IDExterno:       rec.ID,
		CUIT:            inv.CUITEmisor,
		TipoComprobante: voucherCodes[inv.TipoComprobante],
		Letra:           letterOf(inv.TipoComprobante),
		Sucursal:        b.cfg.Sucursal,
		PuntoVenta:      inv.PuntoVenta,
		Numero:          inv.Numero,
		FechaEmision:    formatDate(inv.FechaEmision),
		TipoOperacion:   TipoOperacionCompra,
		Clasificador:    ClasificadorGeneral,
		Sector:          b.cfg.Sector,
		Moneda:          b.cfg.Moneda,
		Cotizacion:      "1",
		NetoGravado:     inv.NetoGravado,
		NetoNoGravado:   inv.NetoNoGravado,
		Exento:          inv.Exento,
		IVA:             inv.TotalIVA,
		OtrosTributos:   inv.OtrosTributos,
		Total:           inv.Total,
		CAE:             inv.CAE,
		CAEVencimiento:  formatDate(inv.CAEVencimiento),
	}

	supplier, known := masters.Suppliers[inv.CUITEmisor]
	if known {
		row.CodProveedor = supplier.Codigo
		row.RazonSocial = supplier.RazonSocial
	} else {
		// Raw CUIT fallback. Importable, but flagged as a warning.
		row.CodProveedor = inv.CUITEmisor
		row.RazonSocial = inv.NombreEmisor
	}

	if rec.FechaContable.IsZero() {
		row.FechaContable = row.FechaEmision
	} else {
		row.FechaContable = formatDate(rec.FechaContable)
	}

	row.CondCompra = b.condicionCompra(rec, supplier)

	row.Concepto = rec.Concepto
	if row.Concepto == "" {
		row.Concepto = DefaultConcepto
	}
	if !rec.ImporteConcepto.IsZero() {
		row.ImporteConcepto = rec.ImporteConcepto
	} else {
		// Net of VAT. Fixed business rule of the receiving system.
		row.ImporteConcepto = inv.Total.Sub(inv.TotalIVA)
	}

	return row
}

// BuildBatch derives the full batch: main rows plus tax and concept rows.
func (b *Builder) BuildBatch(records []Record, masters Masters) Batch {
	var batch Batch
	for _, rec := range records {
		row := b.Build(rec, masters)
		batch.Rows = append(batch.Rows, row)
		for _, line := range rec.Invoice.TaxLines {
			batch.TaxRows = append(batch.TaxRows, TaxRow{
				IDExterno: rec.ID,
				Codigo:    line.Codigo,
				Importe:   line.Importe,
			})
		}
		batch.Concepts = append(batch.Concepts, ConceptRow{
			IDExterno: rec.ID,
			Concepto:  row.Concepto,
			Importe:   row.ImporteConcepto,
		})
	}
	return batch
}

// condicionCompra resolves the purchase condition: operator override, then
// supplier master, then a cash keyword in the document, else cuenta
// corriente.
func (b *Builder) condicionCompra(rec Record, supplier Supplier) string {
	if rec.CondicionCompra == CondicionContado || rec.CondicionCompra == CondicionCuentaCorriente {
		return rec.CondicionCompra
	}
	if supplier.CondicionCompra == CondicionContado || supplier.CondicionCompra == CondicionCuentaCorriente {
		return supplier.CondicionCompra
	}
	if strings.Contains(strings.ToLower(rec.Invoice.RawText), "contado") {
		return CondicionContado
	}
	return CondicionCuentaCorriente
}

// letterOf extracts the invoice letter from the canonical document type.
func letterOf(tipo string) string {
	if tipo == "" {
		return ""
	}
	return tipo[len(tipo)-1:]
}
