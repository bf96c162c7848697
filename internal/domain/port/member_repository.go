// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

// MemberReader defines the interface for reading membership records.
type MemberReader interface {
	// GetMember retrieves a member by UID within a repository and returns the revision
	GetMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, uint64, error)

	// GetMemberByEmail retrieves a member by normalized email within a repository
	GetMemberByEmail(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, uint64, error)

	// ListMembers lists all membership records for a repository
	ListMembers(ctx context.Context, repositoryUID string) ([]*model.MembershipRecord, error)

	// CountMembersByContributor counts records added by one contributor
	// within a repository, for the contributor email cap.
	CountMembersByContributor(ctx context.Context, repositoryUID, addedBy string) (int, error)
}

// MemberWriter defines the interface for membership record persistence.
// CreateMember must reserve the (repository, normalized email) uniqueness
// constraint atomically with creation: the constraint reservation is the
// arbiter under concurrent admissions for the same candidate.
type MemberWriter interface {
	// CreateMember stores a new member and returns it with revision.
	// Fails with a Conflict error when the (repository, email) pair
	// already has a record.
	CreateMember(ctx context.Context, member *model.MembershipRecord) (*model.MembershipRecord, uint64, error)

	// UpdateMember updates an existing member with optimistic concurrency control
	UpdateMember(ctx context.Context, member *model.MembershipRecord, expectedRevision uint64) (*model.MembershipRecord, uint64, error)
}
