package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/facturasur/invoice-export-service/internal/models"
)

// Invoice states.
const (
	EstadoPendiente = "pendiente"
	EstadoRevision  = "revision"
	EstadoAprobada  = "aprobada"
	EstadoExportada = "exportada"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// InvoiceRecord is a persisted canonical invoice.
type InvoiceRecord struct {
	ID uuid.UUID `json:"id"`
	models.Invoice

	Estado        string     `json:"estado"`
	ImagenURL     string     `json:"imagenUrl,omitempty"`
	ExportBatchID *uuid.UUID `json:"exportBatchId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Repository persists invoice records in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `
	id, COALESCE(cuit_emisor, ''), COALESCE(nombre_emisor, ''), COALESCE(cuit_receptor, ''),
	COALESCE(tipo_comprobante, ''), COALESCE(punto_venta, ''), COALESCE(numero, ''),
	fecha_emision,
	COALESCE(neto_gravado, 0)::text, COALESCE(neto_no_gravado, 0)::text, COALESCE(exento, 0)::text,
	COALESCE(total_iva, 0)::text, COALESCE(otros_tributos, 0)::text, COALESCE(total, 0)::text,
	COALESCE(tax_lines, '[]'::jsonb), COALESCE(cae, ''), cae_vencimiento,
	COALESCE(raw_text, ''), confidence, needs_review, COALESCE(warnings, '{}'),
	estado, COALESCE(imagen_url, ''), export_batch_id, created_at, updated_at`

// SaveInvoice inserts a record and fills in its id and creation time.
func (r *Repository) SaveInvoice(ctx context.Context, rec *InvoiceRecord) error {
	taxLines, err := json.Marshal(rec.TaxLines)
	if err != nil {
		return fmt.Errorf("failed to encode tax lines: %w", err)
	}
	if rec.Estado == "" {
		rec.Estado = EstadoPendiente
	}

	query := `
		INSERT INTO facturas (
			cuit_emisor, nombre_emisor, cuit_receptor,
			tipo_comprobante, punto_venta, numero, fecha_emision,
			neto_gravado, neto_no_gravado, exento, total_iva, otros_tributos, total,
			tax_lines, cae, cae_vencimiento, raw_text,
			confidence, needs_review, warnings, estado, imagen_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		rec.CUITEmisor, rec.NombreEmisor, rec.CUITReceptor,
		rec.TipoComprobante, rec.PuntoVenta, rec.Numero, nullableTime(rec.FechaEmision),
		rec.NetoGravado.String(), rec.NetoNoGravado.String(), rec.Exento.String(),
		rec.TotalIVA.String(), rec.OtrosTributos.String(), rec.Total.String(),
		taxLines, rec.CAE, nullableTime(rec.CAEVencimiento), rec.RawText,
		rec.Confidence, rec.NeedsReview, rec.Warnings, rec.Estado, rec.ImagenURL,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// GetInvoiceByID fetches one record.
func (r *Repository) GetInvoiceByID(ctx context.Context, id string) (*InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM facturas WHERE id = $1`
	rec, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// GetInvoices lists the most recent records.
func (r *Repository) GetInvoices(ctx context.Context, limit int) ([]InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM facturas ORDER BY created_at DESC LIMIT $1`
	return r.queryInvoices(ctx, query, limit)
}

// ExistsByCompositeKey reports whether an invoice with the same composite
// key was already loaded.
func (r *Repository) ExistsByCompositeKey(ctx context.Context, key models.CompositeKey) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM facturas
			WHERE cuit_emisor = $1 AND tipo_comprobante = $2
			  AND punto_venta = $3 AND numero = $4
		)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, key.CUITEmisor, key.TipoComprobante, key.PuntoVenta, key.Numero).Scan(&exists)
	return exists, err
}

// FindByCompositeKey fetches the record with the given composite key, or
// ErrNotFound.
func (r *Repository) FindByCompositeKey(ctx context.Context, key models.CompositeKey) (*InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM facturas
		WHERE cuit_emisor = $1 AND tipo_comprobante = $2 AND punto_venta = $3 AND numero = $4`
	rec, err := scanInvoice(r.pool.QueryRow(ctx, query, key.CUITEmisor, key.TipoComprobante, key.PuntoVenta, key.Numero))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListExportable returns the approved records not yet assigned to an
// export batch.
func (r *Repository) ListExportable(ctx context.Context) ([]InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM facturas
		WHERE estado = $1 AND export_batch_id IS NULL
		ORDER BY fecha_emision, created_at`
	return r.queryInvoices(ctx, query, EstadoAprobada)
}

// ListNeedsReview returns the records waiting for operator review.
func (r *Repository) ListNeedsReview(ctx context.Context, limit int) ([]InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM facturas
		WHERE needs_review AND estado IN ($1, $2)
		ORDER BY created_at
		LIMIT $3`
	return r.queryInvoices(ctx, query, EstadoPendiente, EstadoRevision, limit)
}

// MarkExported stamps the batch id on the given records and moves them to
// the exported state.
func (r *Repository) MarkExported(ctx context.Context, ids []uuid.UUID, batchID uuid.UUID) error {
	query := `
		UPDATE facturas
		SET estado = $1, export_batch_id = $2, updated_at = NOW()
		WHERE id = ANY($3)`
	_, err := r.pool.Exec(ctx, query, EstadoExportada, batchID, ids)
	return err
}

// ApproveInvoice clears the review flag and moves the record to aprobada.
func (r *Repository) ApproveInvoice(ctx context.Context, id string) error {
	query := `
		UPDATE facturas
		SET estado = $1, needs_review = false, updated_at = NOW()
		WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, EstadoAprobada, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// updatableColumns is the whitelist of fields the operator correction flow
// may change.
var updatableColumns = map[string]bool{
	"cuit_emisor":      true,
	"nombre_emisor":    true,
	"cuit_receptor":    true,
	"tipo_comprobante": true,
	"punto_venta":      true,
	"numero":           true,
	"fecha_emision":    true,
	"neto_gravado":     true,
	"neto_no_gravado":  true,
	"exento":           true,
	"total_iva":        true,
	"otros_tributos":   true,
	"total":            true,
	"cae":              true,
	"cae_vencimiento":  true,
	"estado":           true,
	"needs_review":     true,
}

// UpdateInvoice applies a partial update. Columns outside the whitelist
// are rejected.
func (r *Repository) UpdateInvoice(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return fmt.Errorf("no fields to update")
	}

	sets := []string{}
	args := []interface{}{}
	i := 1
	for key, value := range updates {
		if !updatableColumns[key] {
			return fmt.Errorf("field %q is not updatable", key)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", key, i))
		args = append(args, value)
		i++
	}

	sets = append(sets, fmt.Sprintf("updated_at = $%d", i))
	args = append(args, time.Now())
	i++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE facturas SET %s WHERE id = $%d", strings.Join(sets, ", "), i)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInvoice removes a record.
func (r *Repository) DeleteInvoice(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM facturas WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MonthlyStats aggregates the current month's loads.
type MonthlyStats struct {
	Month          string  `json:"month"`
	TotalFacturas  int     `json:"total_facturas"`
	TotalNeto      float64 `json:"total_neto"`
	TotalIVA       float64 `json:"total_iva"`
	TotalMonto     float64 `json:"total_monto"`
	PendingReview  int     `json:"pending_review"`
	TotalExportada int     `json:"total_exportadas"`
}

// GetMonthlyStats returns statistics for the current month.
func (r *Repository) GetMonthlyStats(ctx context.Context) (*MonthlyStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(neto_gravado), 0),
			COALESCE(SUM(total_iva), 0),
			COALESCE(SUM(total), 0),
			COUNT(*) FILTER (WHERE needs_review),
			COUNT(*) FILTER (WHERE estado = 'exportada')
		FROM facturas
		WHERE DATE_TRUNC('month', created_at) = DATE_TRUNC('month', CURRENT_DATE)`

	stats := &MonthlyStats{Month: time.Now().Format("2006-01")}
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalFacturas, &stats.TotalNeto, &stats.TotalIVA,
		&stats.TotalMonto, &stats.PendingReview, &stats.TotalExportada,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *Repository) queryInvoices(ctx context.Context, query string, args ...interface{}) ([]InvoiceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanInvoice(row pgx.Row) (*InvoiceRecord, error) {
	var (
		rec                          InvoiceRecord
		fechaEmision, caeVencimiento *time.Time
		netoGravado, netoNoGravado   string
		exento, totalIVA             string
		otrosTributos, total         string
		taxLines                     []byte
	)
	err := row.Scan(
		&rec.ID, &rec.CUITEmisor, &rec.NombreEmisor, &rec.CUITReceptor,
		&rec.TipoComprobante, &rec.PuntoVenta, &rec.Numero,
		&fechaEmision,
		&netoGravado, &netoNoGravado, &exento, &totalIVA, &otrosTributos, &total,
		&taxLines, &rec.CAE, &caeVencimiento,
		&rec.RawText, &rec.Confidence, &rec.NeedsReview, &rec.Warnings,
		&rec.Estado, &rec.ImagenURL, &rec.ExportBatchID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if fechaEmision != nil {
		rec.FechaEmision = *fechaEmision
	}
	if caeVencimiento != nil {
		rec.CAEVencimiento = *caeVencimiento
	}
	for dst, src := range map[*decimal.Decimal]string{
		&rec.NetoGravado:   netoGravado,
		&rec.NetoNoGravado: netoNoGravado,
		&rec.Exento:        exento,
		&rec.TotalIVA:      totalIVA,
		&rec.OtrosTributos: otrosTributos,
		&rec.Total:         total,
	} {
		d, err := decimal.NewFromString(src)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q in row: %w", src, err)
		}
		*dst = d
	}
	if err := json.Unmarshal(taxLines, &rec.TaxLines); err != nil {
		return nil, fmt.Errorf("invalid tax lines in row: %w", err)
	}
	return &rec, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
