// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// GrowthCycleRepository defines the interface for growth-cycle counter
// persistence. Admission-count increments within a cycle are serialized
// with revision CAS so concurrent admissions cannot overshoot the cap.
type GrowthCycleRepository interface {
	// GetGrowthCycle retrieves the cycle counter for a repository and
	// aligned cycle start, with its revision
	GetGrowthCycle(ctx context.Context, repositoryUID string, startedAt time.Time) (*model.GrowthCycle, uint64, error)

	// CreateGrowthCycle stores a fresh cycle counter, failing with
	// Conflict when another worker created it first
	CreateGrowthCycle(ctx context.Context, cycle *model.GrowthCycle) (uint64, error)

	// UpdateGrowthCycle updates a cycle counter with optimistic concurrency control
	UpdateGrowthCycle(ctx context.Context, cycle *model.GrowthCycle, expectedRevision uint64) (uint64, error)
}
