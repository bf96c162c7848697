// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package port defines the interfaces between the snowball engine's
// service layer and its infrastructure adapters.
package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// RepositoryReader defines the interface for reading email repositories.
type RepositoryReader interface {
	// GetRepository retrieves a single repository by UID and returns the revision
	GetRepository(ctx context.Context, uid string) (*model.Repository, uint64, error)

	// GetRepositoryRevision retrieves only the revision for a given UID
	GetRepositoryRevision(ctx context.Context, uid string) (uint64, error)
}

// RepositoryWriter defines the interface for repository data persistence.
// This interface represents pure storage operations without orchestration
// logic. Implementations handle persistence, constraints, and indexing but
// not business rules like settings validation or message publishing.
//
// This interface follows the Repository pattern and should be implemented by:
//   - NATS storage layer (production)
//   - Mock storage layer (testing)
type RepositoryWriter interface {
	// CreateRepository stores a new repository and returns it with revision
	CreateRepository(ctx context.Context, repository *model.Repository) (*model.Repository, uint64, error)

	// UpdateRepository updates an existing repository with optimistic concurrency control
	UpdateRepository(ctx context.Context, uid string, repository *model.Repository, expectedRevision uint64) (*model.Repository, uint64, error)

	// UniqueRepositoryName reserves the repository name per owner.
	// Returns the constraint key for rollback and an error when the name is taken.
	UniqueRepositoryName(ctx context.Context, repository *model.Repository) (string, error)
}
