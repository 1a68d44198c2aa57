// Package services holds the pipeline steps that sit between extraction and
// persistence.
package services

import (
	"context"
	"fmt"

	"github.com/facturasur/invoice-export-service/internal/models"
)

// KeyRepository is the lookup the detector delegates to. The Postgres
// repository satisfies it.
type KeyRepository interface {
	ExistsByCompositeKey(ctx context.Context, key models.CompositeKey) (bool, error)
}

// DuplicateCheck is the outcome of one detection. Skipped means the key was
// incomplete and the lookup never ran: callers must not read that as
// "not a duplicate".
type DuplicateCheck struct {
	Duplicate bool
	Skipped   bool
	Warning   string
}

// DuplicateDetector decides whether an invoice was already loaded, by its
// composite key (emisor CUIT, document type, punto de venta, número).
type DuplicateDetector struct {
	repo KeyRepository
}

// NewDuplicateDetector creates a detector over the given repository.
func NewDuplicateDetector(repo KeyRepository) *DuplicateDetector {
	return &DuplicateDetector{repo: repo}
}

// Check looks the key up. Incomplete keys skip the lookup and carry a
// warning instead.
func (d *DuplicateDetector) Check(ctx context.Context, key models.CompositeKey) (DuplicateCheck, error) {
	if !key.Complete() {
		return DuplicateCheck{
			Skipped: true,
			Warning: "no se pudo verificar duplicado, faltan campos de la clave",
		}, nil
	}

	exists, err := d.repo.ExistsByCompositeKey(ctx, key)
	if err != nil {
		return DuplicateCheck{}, fmt.Errorf("duplicate lookup failed: %w", err)
	}
	return DuplicateCheck{Duplicate: exists}, nil
}
