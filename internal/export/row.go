// Package export builds and validates Tango purchase-import rows from
// canonical invoice records. The column order and the literal values are a
// compatibility contract with Tango: changing any of them breaks the import.
package export

import (
	"time"

	"github.com/shopspring/decimal"
)

// Literal values Tango's purchase import enforces.
const (
	TipoOperacionCompra = "C"
	ClasificadorGeneral = "G"

	CondicionContado         = "1"
	CondicionCuentaCorriente = "2"

	VoucherFactura     = "21"
	VoucherNotaDebito  = "22"
	VoucherNotaCredito = "23"
)

// dateFormat is the only date shape Tango accepts.
const dateFormat = "02/01/2006"

// ExportRow is one invoice in Tango's 27-column purchase-import shape.
// Dates are already rendered DD/MM/YYYY; amounts stay decimal until the
// encoder serializes them.
type ExportRow struct {
	IDExterno       string
	CodProveedor    string
	CUIT            string
	RazonSocial     string
	TipoComprobante string // voucher code, numeric text
	Letra           string
	Sucursal        string
	PuntoVenta      string
	Numero          string
	FechaEmision    string
	FechaContable   string
	TipoOperacion   string
	Clasificador    string
	CondCompra      string
	Sector          string
	Moneda          string
	Cotizacion      string
	NetoGravado     decimal.Decimal
	NetoNoGravado   decimal.Decimal
	Exento          decimal.Decimal
	IVA             decimal.Decimal
	OtrosTributos   decimal.Decimal
	Total           decimal.Decimal
	CAE             string
	CAEVencimiento  string
	Concepto        string
	ImporteConcepto decimal.Decimal
}

// ColumnNames is the header row, in the exact order Tango expects.
var ColumnNames = []string{
	"ID_EXTERNO",
	"COD_PROVEEDOR",
	"CUIT",
	"RAZON_SOCIAL",
	"TIPO_COMPROBANTE",
	"LETRA",
	"SUCURSAL",
	"PUNTO_VENTA",
	"NUMERO",
	"FECHA_EMISION",
	"FECHA_CONTABLE",
	"TIPO_OPERACION",
	"CLASIFICADOR",
	"COND_COMPRA",
	"SECTOR",
	"MONEDA",
	"COTIZACION",
	"NETO_GRAVADO",
	"NETO_NO_GRAVADO",
	"EXENTO",
	"IVA",
	"OTROS_TRIBUTOS",
	"TOTAL",
	"CAE",
	"CAE_VENCIMIENTO",
	"CONCEPTO",
	"IMPORTE_CONCEPTO",
}

// Values renders the row in column order, amounts with two decimals.
func (r ExportRow) Values() []string {
	return []string{
		r.IDExterno,
		r.CodProveedor,
		r.CUIT,
		r.RazonSocial,
		r.TipoComprobante,
		r.Letra,
		r.Sucursal,
		r.PuntoVenta,
		r.Numero,
		r.FechaEmision,
		r.FechaContable,
		r.TipoOperacion,
		r.Clasificador,
		r.CondCompra,
		r.Sector,
		r.Moneda,
		r.Cotizacion,
		r.NetoGravado.StringFixed(2),
		r.NetoNoGravado.StringFixed(2),
		r.Exento.StringFixed(2),
		r.IVA.StringFixed(2),
		r.OtrosTributos.StringFixed(2),
		r.Total.StringFixed(2),
		r.CAE,
		r.CAEVencimiento,
		r.Concepto,
		r.ImporteConcepto.StringFixed(2),
	}
}

// TaxRow is the auxiliary per-tax-line row of the import.
type TaxRow struct {
	IDExterno string
	Codigo    string
	Importe   decimal.Decimal
}

// ConceptRow is the auxiliary per-concept row of the import.
type ConceptRow struct {
	IDExterno string
	Concepto  string
	Importe   decimal.Decimal
}

// Batch is the full output of one export build: main rows plus the two
// auxiliary schemas, aligned by IDExterno.
type Batch struct {
	Rows     []ExportRow
	TaxRows  []TaxRow
	Concepts []ConceptRow
}

// RowEncoder serializes a validated batch. The spreadsheet writer lives
// outside this service.
type RowEncoder interface {
	Encode(batch Batch) error
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateFormat)
}
