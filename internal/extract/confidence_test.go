package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/models"
)

func TestScoreBounds(t *testing.T) {
	empty := &models.Invoice{}
	if got := Score(empty); got != 0 {
		t.Errorf("empty invoice score = %v, want 0", got)
	}

	full := &models.Invoice{
		CUITEmisor:      "30710410220",
		TipoComprobante: "FA",
		PuntoVenta:      "0001",
		Numero:          "00001234",
		FechaEmision:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Total:           decimal.NewFromInt(121),
	}
	if got := Score(full); got != 1.0 {
		t.Errorf("complete invoice score = %v, want 1.0", got)
	}
}

func TestScoreInvalidCUITGetsNoWeight(t *testing.T) {
	inv := &models.Invoice{CUITEmisor: "30710410221"} // bad check digit
	if got := Score(inv); got != 0 {
		t.Errorf("invalid CUIT score = %v, want 0", got)
	}
}

// TestScoreMonotonic satisfies the checks one at a time and asserts the
// score never decreases and stays within [0,1].
func TestScoreMonotonic(t *testing.T) {
	steps := []func(*models.Invoice){
		func(i *models.Invoice) { i.CUITEmisor = "30710410220" },
		func(i *models.Invoice) { i.TipoComprobante = "FA" },
		func(i *models.Invoice) { i.PuntoVenta = "0001" },
		func(i *models.Invoice) { i.Numero = "00001234" },
		func(i *models.Invoice) { i.FechaEmision = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
		func(i *models.Invoice) { i.Total = decimal.NewFromInt(100) },
	}

	inv := &models.Invoice{}
	prev := Score(inv)
	for n, step := range steps {
		step(inv)
		got := Score(inv)
		if got < prev {
			t.Errorf("score decreased at step %d: %v -> %v", n, prev, got)
		}
		if got < 0 || got > 1 {
			t.Errorf("score out of range at step %d: %v", n, got)
		}
		prev = got
	}
	if prev != 1.0 {
		t.Errorf("final score = %v, want 1.0", prev)
	}
}
