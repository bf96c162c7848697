// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/classifier"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
)

// casRetry is the retry policy for optimistic-concurrency conflicts on KV
// updates. Conflicts under normal load resolve within a few attempts.
var casRetry = utils.NewRetryConfig(5, 50*time.Millisecond, 500*time.Millisecond)

// SnowballWriter defines the composite interface for write operations
type SnowballWriter interface {
	RepositoryServiceWriter
	MemberServiceWriter
}

// RepositoryServiceWriter defines the interface for repository write operations
type RepositoryServiceWriter interface {
	// CreateRepository creates a new repository with defaults applied
	CreateRepository(ctx context.Context, repository *model.Repository) (*model.Repository, uint64, error)
	// UpdateRepositorySettings replaces the tunable settings of a repository
	UpdateRepositorySettings(ctx context.Context, uid string, settings model.RepositorySettings, snowball model.SnowballSettings, expectedRevision uint64) (*model.Repository, uint64, error)
	// ArchiveRepository soft-archives a repository
	ArchiveRepository(ctx context.Context, uid string, expectedRevision uint64) (*model.Repository, uint64, error)
}

// MemberServiceWriter defines the interface for membership write operations
type MemberServiceWriter interface {
	// AddMember admits one address through the direct-add path
	AddMember(ctx context.Context, member *model.MembershipRecord) (*model.MembershipRecord, uint64, error)
	// VerifyMember marks an active member's address ownership as confirmed
	VerifyMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, error)
	// OptOutMember unsubscribes a member by email
	OptOutMember(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, error)
	// RemoveMember administratively removes a member
	RemoveMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, error)
	// ReinstateMember returns a removed member to active, owner override
	ReinstateMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, error)
	// RecordEngagement increments one engagement counter for a member
	RecordEngagement(ctx context.Context, repositoryUID, uid string, kind EngagementKind) (*model.MembershipRecord, error)
	// RecordBounce folds one delivery bounce into a member record
	RecordBounce(ctx context.Context, repositoryUID, email string, hard bool) (*model.MembershipRecord, error)
	// RecordComplaint folds one spam complaint into a member record
	RecordComplaint(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, error)
}

// writerOrchestratorOption defines a function type for setting options on the writer orchestrator
type writerOrchestratorOption func(*writerOrchestrator)

// WithRepositoryReaderForWriter sets the repository reader port
func WithRepositoryReaderForWriter(reader port.RepositoryReader) writerOrchestratorOption {
	return func(w *writerOrchestrator) {
		w.repositoryReader = reader
	}
}

// WithRepositoryWriter sets the repository writer port
func WithRepositoryWriter(writer port.RepositoryWriter) writerOrchestratorOption {
	return func(w *writerOrchestrator) {
		w.repositoryWriter = writer
	}
}

// WithMemberReaderForWriter sets the member reader port
func WithMemberReaderForWriter(reader port.MemberReader) writerOrchestratorOption {
	return func(w *writerOrchestrator) {
		w.memberReader = reader
	}
}

// WithMemberWriter sets the member writer port
func WithMemberWriter(writer port.MemberWriter) writerOrchestratorOption {
	return func(w *writerOrchestrator) {
		w.memberWriter = writer
	}
}

// WithPublisher sets the message publisher
func WithPublisher(publisher port.MessagePublisher) writerOrchestratorOption {
	return func(w *writerOrchestrator) {
		w.publisher = publisher
	}
}

// WithClassifier sets the email classifier
func WithClassifier(c *classifier.Classifier) writerOrchestratorOption {
	return func(w *writerOrchestrator) {
		w.classifier = c
	}
}

// writerOrchestrator is the orchestrator for all write use cases
type writerOrchestrator struct {
	repositoryReader port.RepositoryReader
	repositoryWriter port.RepositoryWriter
	memberReader     port.MemberReader
	memberWriter     port.MemberWriter
	publisher        port.MessagePublisher
	classifier       *classifier.Classifier
}

// NewWriterOrchestrator creates a new writer orchestrator using the option pattern
func NewWriterOrchestrator(opts ...writerOrchestratorOption) SnowballWriter {
	wc := &writerOrchestrator{}
	for _, opt := range opts {
		opt(wc)
	}
	if wc.classifier == nil {
		wc.classifier = classifier.NewClassifier(classifier.Config{})
	}
	return wc
}

// CreateRepository creates a new repository with defaults applied and the
// name uniqueness constraint reserved per owner.
func (o *writerOrchestrator) CreateRepository(ctx context.Context, repository *model.Repository) (*model.Repository, uint64, error) {
	slog.DebugContext(ctx, "executing create repository use case",
		"name", repository.Name,
		"owner_uid", repository.OwnerUID,
	)

	now := time.Now()
	if repository.UID == "" {
		repository.UID = uuid.New().String()
	}
	repository.CreatedAt = now
	repository.UpdatedAt = now
	repository.ApplyDefaults()

	if err := repository.ValidateBasicFields(); err != nil {
		return nil, 0, err
	}
	if err := repository.ValidateSettings(); err != nil {
		return nil, 0, err
	}

	// Reserve the per-owner name before creating the record.
	if _, err := o.repositoryWriter.UniqueRepositoryName(ctx, repository); err != nil {
		return nil, 0, err
	}

	created, revision, err := o.repositoryWriter.CreateRepository(ctx, repository)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create repository",
			"error", err,
			"name", repository.Name,
		)
		return nil, 0, err
	}

	slog.DebugContext(ctx, "repository created successfully",
		"repository_uid", created.UID,
		"revision", revision,
	)

	o.publishRepositoryIndexer(ctx, model.ActionCreated, created)

	return created, revision, nil
}

// UpdateRepositorySettings replaces the tunable settings of a repository
// with revision checking.
func (o *writerOrchestrator) UpdateRepositorySettings(ctx context.Context, uid string, settings model.RepositorySettings, snowball model.SnowballSettings, expectedRevision uint64) (*model.Repository, uint64, error) {
	slog.DebugContext(ctx, "executing update repository settings use case",
		"repository_uid", uid,
		"expected_revision", expectedRevision,
	)

	repository, _, err := o.repositoryReader.GetRepository(ctx, uid)
	if err != nil {
		return nil, 0, err
	}
	if repository.IsArchived() {
		return nil, 0, errs.NewValidation("archived repository cannot be modified")
	}

	repository.Settings = settings
	repository.Snowball = snowball
	repository.ApplyDefaults()
	repository.UpdatedAt = time.Now()

	if err := repository.ValidateSettings(); err != nil {
		return nil, 0, err
	}

	updated, revision, err := o.repositoryWriter.UpdateRepository(ctx, uid, repository, expectedRevision)
	if err != nil {
		return nil, 0, err
	}

	o.publishRepositoryIndexer(ctx, model.ActionUpdated, updated)

	return updated, revision, nil
}

// ArchiveRepository soft-archives a repository. Members and history are
// retained; only ingestion and snowball stop.
func (o *writerOrchestrator) ArchiveRepository(ctx context.Context, uid string, expectedRevision uint64) (*model.Repository, uint64, error) {
	repository, _, err := o.repositoryReader.GetRepository(ctx, uid)
	if err != nil {
		return nil, 0, err
	}
	if repository.IsArchived() {
		return repository, expectedRevision, nil
	}

	repository.Status = model.RepositoryStatusArchived
	repository.UpdatedAt = time.Now()

	updated, revision, err := o.repositoryWriter.UpdateRepository(ctx, uid, repository, expectedRevision)
	if err != nil {
		return nil, 0, err
	}

	slog.InfoContext(ctx, "repository archived", "repository_uid", uid)
	o.publishRepositoryIndexer(ctx, model.ActionUpdated, updated)

	return updated, revision, nil
}

// publishRepositoryIndexer publishes an indexer message for a repository
// change. Publish failures are logged, never propagated: the write already
// succeeded.
func (o *writerOrchestrator) publishRepositoryIndexer(ctx context.Context, action model.MessageAction, repository *model.Repository) {
	if o.publisher == nil {
		return
	}

	message := &model.IndexerMessage{Action: action, Tags: repository.Tags()}
	built, err := message.Build(ctx, repository)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build repository indexer message", "error", err)
		return
	}
	if err := o.publisher.Indexer(ctx, constants.IndexRepositorySubject, built); err != nil {
		slog.ErrorContext(ctx, "failed to publish repository indexer message", "error", err)
	}
}

// publishMemberIndexer publishes an indexer message for a member change.
func (o *writerOrchestrator) publishMemberIndexer(ctx context.Context, action model.MessageAction, member *model.MembershipRecord) {
	if o.publisher == nil {
		return
	}

	message := &model.IndexerMessage{Action: action, Tags: member.IndexTags()}
	built, err := message.Build(ctx, member)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build member indexer message", "error", err)
		return
	}
	if err := o.publisher.Indexer(ctx, constants.IndexMemberSubject, built); err != nil {
		slog.ErrorContext(ctx, "failed to publish member indexer message", "error", err)
	}
}
