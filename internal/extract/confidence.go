package extract

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/cuit"
	"github.com/facturasur/invoice-export-service/internal/models"
)

// Weight table for the confidence score. Weights sum to 1.0; the issuer CUIT
// carries the most weight because every downstream step keys off it.
const (
	weightCUITEmisor = 0.30 // present AND checksum valid
	weightTipo       = 0.15
	weightPuntoVenta = 0.10
	weightNumero     = 0.15
	weightFecha      = 0.15
	weightTotal      = 0.15 // grand total > 0
)

// Score computes the completeness/validity score of a canonical invoice,
// rounded to two decimals, always in [0,1]. It is monotonic: satisfying an
// additional check never lowers the score.
func Score(inv *models.Invoice) float64 {
	var score float64

	if inv.CUITEmisor != "" && cuit.Valid(inv.CUITEmisor) {
		score += weightCUITEmisor
	}
	if inv.TipoComprobante != "" {
		score += weightTipo
	}
	if inv.PuntoVenta != "" {
		score += weightPuntoVenta
	}
	if inv.Numero != "" {
		score += weightNumero
	}
	if !inv.FechaEmision.IsZero() {
		score += weightFecha
	}
	if inv.Total.GreaterThan(decimal.Zero) {
		score += weightTotal
	}

	score = math.Round(score*100) / 100
	if score > 1.0 {
		score = 1.0
	}
	return score
}
