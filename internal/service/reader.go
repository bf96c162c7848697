// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package service implements the use-case orchestrators for the snowball
// distribution engine.
package service

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
)

// SnowballReader defines the composite interface for read operations
type SnowballReader interface {
	RepositoryServiceReader
	MemberServiceReader
	ImportServiceReader
}

// RepositoryServiceReader defines the interface for repository read operations
type RepositoryServiceReader interface {
	// GetRepository retrieves a single repository by UID and returns the revision
	GetRepository(ctx context.Context, uid string) (*model.Repository, uint64, error)
	// GetRepositoryRevision retrieves only the revision for a given UID
	GetRepositoryRevision(ctx context.Context, uid string) (uint64, error)
}

// MemberServiceReader defines the interface for member read operations
type MemberServiceReader interface {
	// GetMember retrieves a single member by UID within a repository
	GetMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, uint64, error)
	// GetMemberByEmail retrieves a member by normalized email within a repository
	GetMemberByEmail(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, uint64, error)
	// ListMembers lists membership records for a repository, optionally filtered by status
	ListMembers(ctx context.Context, repositoryUID string, status model.MemberStatus) ([]*model.MembershipRecord, error)
	// ListDigestRecipients lists the members eligible for digest delivery
	ListDigestRecipients(ctx context.Context, repositoryUID string) ([]*model.MembershipRecord, error)
}

// ImportServiceReader defines the interface for CSV import read operations
type ImportServiceReader interface {
	// GetImport retrieves an import record by UID
	GetImport(ctx context.Context, uid string) (*model.CSVImportRecord, uint64, error)
	// GetImportByTrackingCode retrieves an import record by its tracking code
	GetImportByTrackingCode(ctx context.Context, trackingCode string) (*model.CSVImportRecord, uint64, error)
	// ListImports lists import records for a repository
	ListImports(ctx context.Context, repositoryUID string) ([]*model.CSVImportRecord, error)
}

// readerOrchestratorOption defines a function type for setting options on the reader orchestrator
type readerOrchestratorOption func(*readerOrchestrator)

// WithRepositoryReader sets the repository reader port
func WithRepositoryReader(reader port.RepositoryReader) readerOrchestratorOption {
	return func(r *readerOrchestrator) {
		r.repositoryReader = reader
	}
}

// WithMemberReader sets the member reader port
func WithMemberReader(reader port.MemberReader) readerOrchestratorOption {
	return func(r *readerOrchestrator) {
		r.memberReader = reader
	}
}

// WithImportReader sets the import reader port
func WithImportReader(reader port.ImportReader) readerOrchestratorOption {
	return func(r *readerOrchestrator) {
		r.importReader = reader
	}
}

// readerOrchestrator is the orchestrator for all read use cases
type readerOrchestrator struct {
	repositoryReader port.RepositoryReader
	memberReader     port.MemberReader
	importReader     port.ImportReader
}

// NewReaderOrchestrator creates a new reader orchestrator using the option pattern
func NewReaderOrchestrator(opts ...readerOrchestratorOption) SnowballReader {
	rc := &readerOrchestrator{}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// GetRepository retrieves a single repository by UID and returns the revision
func (o *readerOrchestrator) GetRepository(ctx context.Context, uid string) (*model.Repository, uint64, error) {
	slog.DebugContext(ctx, "executing get repository use case", "repository_uid", uid)
	return o.repositoryReader.GetRepository(ctx, uid)
}

// GetRepositoryRevision retrieves only the revision for a given UID
func (o *readerOrchestrator) GetRepositoryRevision(ctx context.Context, uid string) (uint64, error) {
	return o.repositoryReader.GetRepositoryRevision(ctx, uid)
}

// GetMember retrieves a single member by UID within a repository
func (o *readerOrchestrator) GetMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, uint64, error) {
	slog.DebugContext(ctx, "executing get member use case",
		"repository_uid", repositoryUID,
		"member_uid", uid,
	)
	return o.memberReader.GetMember(ctx, repositoryUID, uid)
}

// GetMemberByEmail retrieves a member by normalized email within a repository
func (o *readerOrchestrator) GetMemberByEmail(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, uint64, error) {
	return o.memberReader.GetMemberByEmail(ctx, repositoryUID, email)
}

// ListMembers lists membership records for a repository. An empty status
// returns every record including removed ones.
func (o *readerOrchestrator) ListMembers(ctx context.Context, repositoryUID string, status model.MemberStatus) ([]*model.MembershipRecord, error) {
	members, err := o.memberReader.ListMembers(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return members, nil
	}

	filtered := make([]*model.MembershipRecord, 0, len(members))
	for _, member := range members {
		if member.Status == status {
			filtered = append(filtered, member)
		}
	}
	return filtered, nil
}

// ListDigestRecipients lists members eligible for digest delivery: active
// or verified status with the receive_digest permission still set.
func (o *readerOrchestrator) ListDigestRecipients(ctx context.Context, repositoryUID string) ([]*model.MembershipRecord, error) {
	members, err := o.memberReader.ListMembers(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}

	recipients := make([]*model.MembershipRecord, 0, len(members))
	for _, member := range members {
		if member.CanReceiveDigest() {
			recipients = append(recipients, member)
		}
	}

	slog.DebugContext(ctx, "digest recipient set built",
		"repository_uid", repositoryUID,
		"total_members", len(members),
		"recipients", len(recipients),
	)
	return recipients, nil
}

// GetImport retrieves an import record by UID
func (o *readerOrchestrator) GetImport(ctx context.Context, uid string) (*model.CSVImportRecord, uint64, error) {
	return o.importReader.GetImport(ctx, uid)
}

// GetImportByTrackingCode retrieves an import record by its tracking code
func (o *readerOrchestrator) GetImportByTrackingCode(ctx context.Context, trackingCode string) (*model.CSVImportRecord, uint64, error) {
	return o.importReader.GetImportByTrackingCode(ctx, trackingCode)
}

// ListImports lists import records for a repository
func (o *readerOrchestrator) ListImports(ctx context.Context, repositoryUID string) ([]*model.CSVImportRecord, error) {
	return o.importReader.ListImports(ctx, repositoryUID)
}
