// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// ImportReader defines the interface for reading CSV import records.
type ImportReader interface {
	// GetImport retrieves an import record by UID and returns the revision
	GetImport(ctx context.Context, uid string) (*model.CSVImportRecord, uint64, error)

	// GetImportByTrackingCode retrieves an import record by its tracking code
	GetImportByTrackingCode(ctx context.Context, trackingCode string) (*model.CSVImportRecord, uint64, error)

	// ListImports lists import records for a repository
	ListImports(ctx context.Context, repositoryUID string) ([]*model.CSVImportRecord, error)
}

// ImportWriter defines the interface for CSV import record persistence.
type ImportWriter interface {
	// CreateImport stores a new import record and returns it with revision
	CreateImport(ctx context.Context, record *model.CSVImportRecord) (*model.CSVImportRecord, uint64, error)

	// UpdateImport updates an import record with optimistic concurrency control
	UpdateImport(ctx context.Context, uid string, record *model.CSVImportRecord, expectedRevision uint64) (*model.CSVImportRecord, uint64, error)
}
