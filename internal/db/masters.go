package db

import (
	"context"
	"fmt"

	"github.com/facturasur/invoice-export-service/internal/export"
)

// LoadMasters fetches the read-only master-data snapshot an export batch
// runs over. The snapshot is taken once per batch; rows loaded mid-batch
// are not visible.
func (r *Repository) LoadMasters(ctx context.Context) (export.Masters, error) {
	masters := export.Masters{
		Suppliers: map[string]export.Supplier{},
		Concepts:  map[string]string{},
	}

	rows, err := r.pool.Query(ctx, `
		SELECT cuit, COALESCE(codigo_tango, ''), COALESCE(razon_social, ''), COALESCE(condicion_compra, '')
		FROM proveedores`)
	if err != nil {
		return masters, fmt.Errorf("failed to load suppliers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cuit string
		var s export.Supplier
		if err := rows.Scan(&cuit, &s.Codigo, &s.RazonSocial, &s.CondicionCompra); err != nil {
			return masters, err
		}
		masters.Suppliers[cuit] = s
	}
	if err := rows.Err(); err != nil {
		return masters, err
	}

	rows, err = r.pool.Query(ctx, `SELECT codigo, COALESCE(descripcion, '') FROM conceptos`)
	if err != nil {
		return masters, fmt.Errorf("failed to load concepts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var codigo, descripcion string
		if err := rows.Scan(&codigo, &descripcion); err != nil {
			return masters, err
		}
		masters.Concepts[codigo] = descripcion
	}
	return masters, rows.Err()
}
