package export

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Diagnostic severities.
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
)

// DiagnosticError describes one problem found in an export row. Diagnostics
// are recomputed on every export attempt and never persisted.
type DiagnosticError struct {
	Row      int    `json:"row"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Result is the outcome of validating a batch. Valid is true iff no
// CRITICAL diagnostic exists; warnings alone do not block the export.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []DiagnosticError `json:"errors,omitempty"`
}

var (
	numericShape = regexp.MustCompile(`^\d+$`)
	dateShape    = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	cuitShape    = regexp.MustCompile(`^\d{11}$`)
)

// Validator checks export rows against Tango's import rules.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs every rule over every row. Row indexes in the diagnostics
// are zero-based positions in the input slice.
func (v *Validator) Validate(rows []ExportRow) Result {
	var errs []DiagnosticError
	for i, row := range rows {
		errs = append(errs, v.validateRow(i, row)...)
	}

	valid := true
	for _, e := range errs {
		if e.Severity == SeverityCritical {
			valid = false
			break
		}
	}
	return Result{Valid: valid, Errors: errs}
}

func (v *Validator) validateRow(idx int, row ExportRow) []DiagnosticError {
	var errs []DiagnosticError

	critical := func(column, value, message string) {
		errs = append(errs, DiagnosticError{Row: idx, Column: column, Value: value, Message: message, Severity: SeverityCritical})
	}
	warning := func(column, value, message string) {
		errs = append(errs, DiagnosticError{Row: idx, Column: column, Value: value, Message: message, Severity: SeverityWarning})
	}

	if row.CodProveedor == "" {
		critical("COD_PROVEEDOR", "", "codigo de proveedor faltante")
	} else if cuitShape.MatchString(row.CodProveedor) {
		warning("COD_PROVEEDOR", row.CodProveedor, "proveedor sin codigo Tango, se exporta el CUIT")
	}

	if !numericShape.MatchString(row.Sector) {
		critical("SECTOR", row.Sector, "sector debe ser numerico")
	}
	if row.CondCompra != CondicionContado && row.CondCompra != CondicionCuentaCorriente {
		critical("COND_COMPRA", row.CondCompra, "condicion de compra debe ser 1 o 2")
	}
	if row.TipoOperacion != TipoOperacionCompra {
		critical("TIPO_OPERACION", row.TipoOperacion, fmt.Sprintf("tipo de operacion debe ser %q", TipoOperacionCompra))
	}
	if row.Clasificador != ClasificadorGeneral {
		critical("CLASIFICADOR", row.Clasificador, fmt.Sprintf("clasificador debe ser %q", ClasificadorGeneral))
	}
	if !numericShape.MatchString(row.TipoComprobante) {
		critical("TIPO_COMPROBANTE", row.TipoComprobante, "codigo de comprobante debe ser numerico")
	}
	if !dateShape.MatchString(row.FechaEmision) {
		critical("FECHA_EMISION", row.FechaEmision, "fecha de emision debe tener forma DD/MM/YYYY")
	}

	for _, amt := range []struct {
		column string
		value  decimal.Decimal
	}{
		{"NETO_GRAVADO", row.NetoGravado},
		{"NETO_NO_GRAVADO", row.NetoNoGravado},
		{"EXENTO", row.Exento},
		{"IVA", row.IVA},
		{"OTROS_TRIBUTOS", row.OtrosTributos},
		{"TOTAL", row.Total},
	} {
		if amt.value.IsNegative() {
			warning(amt.column, amt.value.StringFixed(2), "importe negativo")
		}
	}

	if diff, ok := reconciliationGap(row); ok {
		warning("TOTAL", row.Total.StringFixed(2),
			fmt.Sprintf("los importes no concilian con el total, diferencia %s", diff.StringFixed(2)))
	}
	if row.FechaContable != row.FechaEmision {
		warning("FECHA_CONTABLE", row.FechaContable, "fecha contable distinta de la fecha de emision")
	}

	return errs
}

// reconciliationGap reports the distance between the component amounts and
// the total when it exceeds the tolerance: the greater of one cent and 0.5%
// of the total, absorbing OCR rounding noise on large invoices.
func reconciliationGap(row ExportRow) (decimal.Decimal, bool) {
	sum := row.NetoGravado.Add(row.NetoNoGravado).Add(row.Exento).Add(row.IVA).Add(row.OtrosTributos)
	diff := sum.Sub(row.Total).Abs()

	tolerance := decimal.NewFromFloat(0.01)
	if rel := row.Total.Abs().Mul(decimal.NewFromFloat(0.005)); rel.GreaterThan(tolerance) {
		tolerance = rel
	}
	if diff.GreaterThan(tolerance) {
		return diff, true
	}
	return decimal.Decimal{}, false
}
