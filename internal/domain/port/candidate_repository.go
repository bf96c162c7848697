// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// CandidateRepository defines the interface for forward-candidate
// aggregate persistence. The revision returned with every read feeds the
// compare-and-swap update that keeps per-candidate forward counting
// linearizable under concurrent forward events.
type CandidateRepository interface {
	// GetCandidate retrieves a candidate aggregate and its revision
	GetCandidate(ctx context.Context, repositoryUID, email string) (*model.ForwardCandidate, uint64, error)

	// CreateCandidate stores a new aggregate, failing with Conflict when
	// one already exists for the (repository, email) pair
	CreateCandidate(ctx context.Context, candidate *model.ForwardCandidate) (uint64, error)

	// UpdateCandidate updates an aggregate with optimistic concurrency control
	UpdateCandidate(ctx context.Context, candidate *model.ForwardCandidate, expectedRevision uint64) (uint64, error)

	// DeleteCandidate removes an aggregate, used on admission and expiry.
	// Deleting a missing candidate is not an error: sweeps are idempotent.
	DeleteCandidate(ctx context.Context, repositoryUID, email string) error

	// ListCandidates lists all pending aggregates for a repository
	ListCandidates(ctx context.Context, repositoryUID string) ([]*model.ForwardCandidate, error)

	// ListAllCandidates lists every pending aggregate, for the retention sweeper
	ListAllCandidates(ctx context.Context) ([]*model.ForwardCandidate, error)
}
