package export

import (
	"testing"

	"github.com/facturasur/invoice-export-service/internal/models"
)

func validRow() ExportRow {
	b := NewBuilder(models.ExportConfig{})
	return b.Build(baseRecord(), knownMasters())
}

func criticals(errs []DiagnosticError) []DiagnosticError {
	var out []DiagnosticError
	for _, e := range errs {
		if e.Severity == SeverityCritical {
			out = append(out, e)
		}
	}
	return out
}

func TestValidateCleanRow(t *testing.T) {
	v := NewValidator()

	res := v.Validate([]ExportRow{validRow()})
	if !res.Valid {
		t.Errorf("Valid = false, errors: %+v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %+v, want none", res.Errors)
	}
}

func TestValidateOperationTypeLiteral(t *testing.T) {
	v := NewValidator()

	row := validRow()
	row.TipoOperacion = "X"

	res := v.Validate([]ExportRow{row})
	if res.Valid {
		t.Error("Valid = true, want false")
	}
	crit := criticals(res.Errors)
	if len(crit) != 1 {
		t.Fatalf("criticals = %+v, want exactly one", crit)
	}
	if crit[0].Column != "TIPO_OPERACION" {
		t.Errorf("Column = %q, want TIPO_OPERACION", crit[0].Column)
	}
	if crit[0].Value != "X" {
		t.Errorf("Value = %q, want X", crit[0].Value)
	}
}

func TestValidateCriticalRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExportRow)
		column string
	}{
		{"missing supplier code", func(r *ExportRow) { r.CodProveedor = "" }, "COD_PROVEEDOR"},
		{"non numeric sector", func(r *ExportRow) { r.Sector = "A" }, "SECTOR"},
		{"bad condicion", func(r *ExportRow) { r.CondCompra = "3" }, "COND_COMPRA"},
		{"bad clasificador", func(r *ExportRow) { r.Clasificador = "Z" }, "CLASIFICADOR"},
		{"non numeric voucher", func(r *ExportRow) { r.TipoComprobante = "F21" }, "TIPO_COMPROBANTE"},
		{"empty voucher", func(r *ExportRow) { r.TipoComprobante = "" }, "TIPO_COMPROBANTE"},
		{"bad date shape", func(r *ExportRow) { r.FechaEmision = "2024-03-15" }, "FECHA_EMISION"},
		{"empty date", func(r *ExportRow) { r.FechaEmision = "" }, "FECHA_EMISION"},
	}
	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			tt.mutate(&row)

			res := v.Validate([]ExportRow{row})
			if res.Valid {
				t.Fatal("Valid = true, want false")
			}
			found := false
			for _, e := range criticals(res.Errors) {
				if e.Column == tt.column {
					found = true
				}
			}
			if !found {
				t.Errorf("no CRITICAL for column %s, errors: %+v", tt.column, res.Errors)
			}
		})
	}
}

func TestValidateReconciliation(t *testing.T) {
	v := NewValidator()

	row := validRow()
	row.NetoGravado = dec("100")
	row.IVA = dec("21")
	row.NetoNoGravado = dec("0")
	row.Exento = dec("0")
	row.OtrosTributos = dec("0")
	row.Total = dec("121")

	res := v.Validate([]ExportRow{row})
	for _, e := range res.Errors {
		if e.Column == "TOTAL" {
			t.Errorf("reconciling amounts produced warning: %+v", e)
		}
	}

	row.Total = dec("200")
	res = v.Validate([]ExportRow{row})
	if !res.Valid {
		t.Error("Valid = false, reconciliation gap is WARNING only")
	}
	found := false
	for _, e := range res.Errors {
		if e.Column == "TOTAL" && e.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("no TOTAL warning for gap, errors: %+v", res.Errors)
	}
}

func TestValidateReconciliationTolerance(t *testing.T) {
	v := NewValidator()

	// 0.5% of 100000 = 500; a 300 gap stays inside the relative tolerance.
	row := validRow()
	row.NetoGravado = dec("82644.63")
	row.IVA = dec("17355.37")
	row.NetoNoGravado = dec("0")
	row.Exento = dec("0")
	row.OtrosTributos = dec("0")
	row.Total = dec("100300")

	res := v.Validate([]ExportRow{row})
	for _, e := range res.Errors {
		if e.Column == "TOTAL" {
			t.Errorf("gap within relative tolerance produced warning: %+v", e)
		}
	}
}

func TestValidateNegativeAmounts(t *testing.T) {
	v := NewValidator()

	row := validRow()
	row.NetoGravado = dec("-1000")
	row.IVA = dec("-210")
	row.NetoNoGravado = dec("0")
	row.Exento = dec("0")
	row.OtrosTributos = dec("0")
	row.Total = dec("-1210")

	res := v.Validate([]ExportRow{row})
	want := map[string]bool{"NETO_GRAVADO": false, "IVA": false, "TOTAL": false}
	for _, e := range res.Errors {
		if _, ok := want[e.Column]; ok && e.Severity == SeverityWarning {
			want[e.Column] = true
		}
	}
	for column, found := range want {
		if !found {
			t.Errorf("no WARNING for negative %s, errors: %+v", column, res.Errors)
		}
	}
	if len(res.Errors) != 3 {
		t.Errorf("Errors = %+v, want the three negative-amount warnings", res.Errors)
	}
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	v := NewValidator()

	row := validRow()
	row.FechaContable = "01/04/2024"
	row.CodProveedor = "30710410220"

	res := v.Validate([]ExportRow{row})
	if !res.Valid {
		t.Errorf("Valid = false with warnings only: %+v", res.Errors)
	}
	if len(res.Errors) != 2 {
		t.Errorf("Errors = %+v, want fecha contable + raw CUIT warnings", res.Errors)
	}
	for _, e := range res.Errors {
		if e.Severity != SeverityWarning {
			t.Errorf("unexpected severity %q: %+v", e.Severity, e)
		}
	}
}

func TestValidateRowIndexes(t *testing.T) {
	v := NewValidator()

	good := validRow()
	bad := validRow()
	bad.Clasificador = "Z"

	res := v.Validate([]ExportRow{good, bad})
	crit := criticals(res.Errors)
	if len(crit) != 1 || crit[0].Row != 1 {
		t.Errorf("criticals = %+v, want one at row 1", crit)
	}
}
