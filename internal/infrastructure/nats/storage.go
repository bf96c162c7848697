// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"
)

// storage implements all repository ports against NATS JetStream KV.
//
// Key layout:
//   - repositories: <uid>, plus lookup/repository_name/<hash> for name uniqueness
//   - members:      <repository_uid>.<uid>, plus lookup/members/<hash> -> record key
//   - candidates:   <repository_uid>.<hash>, msgpack encoded
//   - imports:      <uid>, plus lookup/imports/<tracking_code> -> uid
//   - growth cycles: <repository_uid>.<cycle_start_unix>
//   - events:       <repository_uid>.<event_uid>
type storage struct {
	client *NATSClient
}

// NewStorage creates the KV-backed storage adapter.
func NewStorage(client *NATSClient) *storage {
	return &storage{client: client}
}

// get retrieves a model from the NATS KV store by bucket and key.
// It unmarshals the data into the provided model and returns the revision.
func (s *storage) get(ctx context.Context, bucket, key string, model any, onlyRevision bool) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, exists := s.client.kvStore[bucket]
	if !exists || kv == nil {
		return 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	data, errGet := kv.Get(ctx, key)
	if errGet != nil {
		return 0, errGet
	}

	if !onlyRevision {
		errUnmarshal := json.Unmarshal(data.Value(), model)
		if errUnmarshal != nil {
			return 0, errUnmarshal
		}
	}

	return data.Revision(), nil
}

// put stores a model in the NATS KV store by bucket and key.
func (s *storage) put(ctx context.Context, bucket, key string, model any) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, exists := s.client.kvStore[bucket]
	if !exists || kv == nil {
		return 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	data, err := json.Marshal(model)
	if err != nil {
		return 0, err
	}

	revision, err := kv.Put(ctx, key, data)
	if err != nil {
		return 0, err
	}

	return revision, nil
}

// putWithRevision stores a model with expected revision checking.
func (s *storage) putWithRevision(ctx context.Context, bucket, key string, model any, expectedRevision uint64) (uint64, error) {
	if key == "" {
		return 0, errs.NewValidation("key cannot be empty")
	}

	kv, exists := s.client.kvStore[bucket]
	if !exists || kv == nil {
		return 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	data, err := json.Marshal(model)
	if err != nil {
		return 0, err
	}

	revision, err := kv.Update(ctx, key, data, expectedRevision)
	if err != nil {
		return 0, err
	}

	return revision, nil
}

// create stores a model only when the key does not exist yet.
func (s *storage) create(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	kv, exists := s.client.kvStore[bucket]
	if !exists || kv == nil {
		return 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	revision, err := kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, errs.NewConflict("entity with same constraints already exists")
		}
		return 0, err
	}
	return revision, nil
}

// delete removes a key with optional revision checking (zero skips the check).
func (s *storage) delete(ctx context.Context, bucket, key string, expectedRevision uint64) error {
	kv, exists := s.client.kvStore[bucket]
	if !exists || kv == nil {
		return errs.NewServiceUnavailable("KV bucket not available")
	}

	if expectedRevision == 0 {
		return kv.Delete(ctx, key)
	}
	return kv.Delete(ctx, key, jetstream.LastRevision(expectedRevision))
}

// listKeys lists all keys in a bucket with the given prefix.
func (s *storage) listKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	kv, exists := s.client.kvStore[bucket]
	if !exists || kv == nil {
		return nil, errs.NewServiceUnavailable("KV bucket not available")
	}

	lister, err := kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, "lookup/") {
			continue
		}
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// createUniqueConstraint creates a unique constraint key in a specific NATS KV bucket.
// The create fails when the key already exists, which is the constraint violation.
func (s *storage) createUniqueConstraint(ctx context.Context, bucket, uniqueKey, entityID string) (string, error) {
	_, err := s.create(ctx, bucket, uniqueKey, []byte(entityID))
	if err != nil {
		var conflict errs.Conflict
		if errors.As(err, &conflict) {
			slog.WarnContext(ctx, "constraint violation - key already exists",
				"constraint_key", uniqueKey,
				"entity_id", entityID,
				"bucket", bucket,
			)
			return uniqueKey, err
		}
		slog.ErrorContext(ctx, "failed to create unique constraint",
			"error", err,
			"constraint_key", uniqueKey,
			"entity_id", entityID,
			"bucket", bucket,
		)
		return uniqueKey, errs.NewUnexpected("failed to create unique constraint", err)
	}

	slog.DebugContext(ctx, "unique constraint created successfully",
		"constraint_key", uniqueKey,
		"entity_id", entityID,
		"bucket", bucket,
	)

	return uniqueKey, nil
}

// ==================== repositories ====================

// GetRepository retrieves a single repository by UID and returns the revision
func (s *storage) GetRepository(ctx context.Context, uid string) (*model.Repository, uint64, error) {
	slog.DebugContext(ctx, "nats storage: getting repository",
		"repository_uid", uid)

	repository := &model.Repository{}
	rev, err := s.get(ctx, constants.KVBucketNameRepositories, uid, repository, false)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			slog.DebugContext(ctx, "repository not found", "repository_uid", uid, "error", err)
			return nil, 0, errs.NewNotFound("repository not found")
		}
		slog.ErrorContext(ctx, "failed to get repository", "error", err, "repository_uid", uid)
		return nil, 0, errs.NewServiceUnavailable("failed to get repository")
	}

	return repository, rev, nil
}

// GetRepositoryRevision retrieves only the revision for a given UID
func (s *storage) GetRepositoryRevision(ctx context.Context, uid string) (uint64, error) {
	rev, err := s.get(ctx, constants.KVBucketNameRepositories, uid, &model.Repository{}, true)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, errs.NewNotFound("repository not found")
		}
		return 0, errs.NewServiceUnavailable("failed to get repository revision")
	}
	return rev, nil
}

// CreateRepository creates a new repository in NATS KV store
func (s *storage) CreateRepository(ctx context.Context, repository *model.Repository) (*model.Repository, uint64, error) {
	slog.DebugContext(ctx, "nats storage: creating repository",
		"repository_uid", repository.UID,
		"name", repository.Name)

	data, err := json.Marshal(repository)
	if err != nil {
		return nil, 0, errs.NewUnexpected("failed to marshal repository", err)
	}

	rev, err := s.create(ctx, constants.KVBucketNameRepositories, repository.UID, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create repository", "error", err, "repository_uid", repository.UID)
		return nil, 0, err
	}

	return repository, rev, nil
}

// UpdateRepository updates an existing repository with revision checking
func (s *storage) UpdateRepository(ctx context.Context, uid string, repository *model.Repository, expectedRevision uint64) (*model.Repository, uint64, error) {
	slog.DebugContext(ctx, "nats storage: updating repository",
		"repository_uid", uid,
		"expected_revision", expectedRevision)

	rev, err := s.putWithRevision(ctx, constants.KVBucketNameRepositories, uid, repository, expectedRevision)
	if err != nil {
		if isRevisionMismatch(err) {
			return nil, 0, errs.NewConflict("repository was modified by another writer")
		}
		slog.ErrorContext(ctx, "failed to update repository", "error", err, "repository_uid", uid)
		return nil, 0, errs.NewServiceUnavailable("failed to update repository")
	}

	return repository, rev, nil
}

// UniqueRepositoryName reserves the repository name per owner
func (s *storage) UniqueRepositoryName(ctx context.Context, repository *model.Repository) (string, error) {
	uniqueKey := fmt.Sprintf(constants.KVLookupRepositoryNamePrefix, repository.BuildIndexKey(ctx))

	slog.DebugContext(ctx, "validating unique repository name constraint",
		"owner_uid", repository.OwnerUID,
		"name", repository.Name,
		"constraint_key", uniqueKey,
	)

	return s.createUniqueConstraint(ctx, constants.KVBucketNameRepositories, uniqueKey, repository.UID)
}

// ==================== members ====================

// memberKey builds the record key for a member within its repository.
func memberKey(repositoryUID, uid string) string {
	return fmt.Sprintf("%s.%s", repositoryUID, uid)
}

// GetMember retrieves a member by UID within a repository
func (s *storage) GetMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, uint64, error) {
	member := &model.MembershipRecord{}
	rev, err := s.get(ctx, constants.KVBucketNameMembers, memberKey(repositoryUID, uid), member, false)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("member not found")
		}
		slog.ErrorContext(ctx, "failed to get member", "error", err, "member_uid", uid)
		return nil, 0, errs.NewServiceUnavailable("failed to get member")
	}
	return member, rev, nil
}

// GetMemberByEmail retrieves a member by normalized email within a repository.
// The lookup key resolves to the member's record key.
func (s *storage) GetMemberByEmail(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, uint64, error) {
	slog.DebugContext(ctx, "nats storage: getting member by email",
		"repository_uid", repositoryUID,
		"email", redaction.RedactEmail(email))

	lookupKey := fmt.Sprintf(constants.KVLookupMemberPrefix, model.MemberIndexKey(ctx, repositoryUID, email))

	kv, exists := s.client.kvStore[constants.KVBucketNameMembers]
	if !exists || kv == nil {
		return nil, 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	entry, err := kv.Get(ctx, lookupKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("member not found")
		}
		return nil, 0, errs.NewServiceUnavailable("failed to resolve member lookup")
	}

	recordKey := string(entry.Value())
	member := &model.MembershipRecord{}
	rev, err := s.get(ctx, constants.KVBucketNameMembers, recordKey, member, false)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			// Lookup exists but record is missing: storage inconsistency.
			slog.ErrorContext(ctx, "member lookup points at missing record",
				"lookup_key", lookupKey, "record_key", recordKey)
			return nil, 0, errs.NewNotFound("member not found")
		}
		return nil, 0, errs.NewServiceUnavailable("failed to get member")
	}
	return member, rev, nil
}

// ListMembers lists all membership records for a repository
func (s *storage) ListMembers(ctx context.Context, repositoryUID string) ([]*model.MembershipRecord, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameMembers, repositoryUID+".")
	if err != nil {
		slog.ErrorContext(ctx, "failed to list member keys", "error", err, "repository_uid", repositoryUID)
		return nil, errs.NewServiceUnavailable("failed to list members")
	}

	members := make([]*model.MembershipRecord, 0, len(keys))
	for _, key := range keys {
		member := &model.MembershipRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameMembers, key, member, false); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list members")
		}
		members = append(members, member)
	}
	return members, nil
}

// CountMembersByContributor counts records added by one contributor within a repository
func (s *storage) CountMembersByContributor(ctx context.Context, repositoryUID, addedBy string) (int, error) {
	members, err := s.ListMembers(ctx, repositoryUID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, member := range members {
		if member.AddedBy == addedBy && member.Status != model.MemberStatusRemoved {
			count++
		}
	}
	return count, nil
}

// CreateMember stores a new member and its uniqueness constraint. The
// lookup-key create is the arbiter under concurrent admissions: the second
// writer gets a Conflict and must stop.
func (s *storage) CreateMember(ctx context.Context, member *model.MembershipRecord) (*model.MembershipRecord, uint64, error) {
	slog.DebugContext(ctx, "nats storage: creating member",
		"member_uid", member.UID,
		"repository_uid", member.RepositoryUID,
		"email", redaction.RedactEmail(member.Email))

	recordKey := memberKey(member.RepositoryUID, member.UID)
	lookupKey := fmt.Sprintf(constants.KVLookupMemberPrefix, member.BuildIndexKey(ctx))

	if _, err := s.createUniqueConstraint(ctx, constants.KVBucketNameMembers, lookupKey, recordKey); err != nil {
		return nil, 0, err
	}

	data, err := json.Marshal(member)
	if err != nil {
		return nil, 0, errs.NewUnexpected("failed to marshal member", err)
	}

	rev, err := s.create(ctx, constants.KVBucketNameMembers, recordKey, data)
	if err != nil {
		// Roll back the constraint so the email is not orphaned.
		if delErr := s.delete(ctx, constants.KVBucketNameMembers, lookupKey, 0); delErr != nil {
			slog.ErrorContext(ctx, "failed to roll back member constraint",
				"error", delErr, "lookup_key", lookupKey)
		}
		slog.ErrorContext(ctx, "failed to create member", "error", err, "member_uid", member.UID)
		return nil, 0, err
	}

	return member, rev, nil
}

// UpdateMember updates an existing member with revision checking
func (s *storage) UpdateMember(ctx context.Context, member *model.MembershipRecord, expectedRevision uint64) (*model.MembershipRecord, uint64, error) {
	slog.DebugContext(ctx, "nats storage: updating member",
		"member_uid", member.UID,
		"expected_revision", expectedRevision)

	recordKey := memberKey(member.RepositoryUID, member.UID)
	rev, err := s.putWithRevision(ctx, constants.KVBucketNameMembers, recordKey, member, expectedRevision)
	if err != nil {
		if isRevisionMismatch(err) {
			return nil, 0, errs.NewConflict("member was modified by another writer")
		}
		slog.ErrorContext(ctx, "failed to update member", "error", err, "member_uid", member.UID)
		return nil, 0, errs.NewServiceUnavailable("failed to update member")
	}

	return member, rev, nil
}

// ==================== forward candidates ====================

// candidateKey builds the aggregate key for a candidate within its repository.
func candidateKey(ctx context.Context, repositoryUID, email string) string {
	return fmt.Sprintf("%s.%s", repositoryUID, model.MemberIndexKey(ctx, repositoryUID, email))
}

// GetCandidate retrieves a candidate aggregate and its revision
func (s *storage) GetCandidate(ctx context.Context, repositoryUID, email string) (*model.ForwardCandidate, uint64, error) {
	kv, exists := s.client.kvStore[constants.KVBucketNameCandidates]
	if !exists || kv == nil {
		return nil, 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	entry, err := kv.Get(ctx, candidateKey(ctx, repositoryUID, email))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("candidate not found")
		}
		return nil, 0, errs.NewServiceUnavailable("failed to get candidate")
	}

	candidate := &model.ForwardCandidate{}
	if err := msgpack.Unmarshal(entry.Value(), candidate); err != nil {
		return nil, 0, errs.NewUnexpected("failed to decode candidate", err)
	}
	return candidate, entry.Revision(), nil
}

// CreateCandidate stores a new aggregate, failing when one already exists
func (s *storage) CreateCandidate(ctx context.Context, candidate *model.ForwardCandidate) (uint64, error) {
	data, err := msgpack.Marshal(candidate)
	if err != nil {
		return 0, errs.NewUnexpected("failed to encode candidate", err)
	}

	key := candidateKey(ctx, candidate.RepositoryUID, candidate.Email)
	rev, err := s.create(ctx, constants.KVBucketNameCandidates, key, data)
	if err != nil {
		var conflict errs.Conflict
		if errors.As(err, &conflict) {
			return 0, err
		}
		slog.ErrorContext(ctx, "failed to create candidate", "error", err,
			"repository_uid", candidate.RepositoryUID,
			"email", redaction.RedactEmail(candidate.Email))
		return 0, errs.NewServiceUnavailable("failed to create candidate")
	}
	return rev, nil
}

// UpdateCandidate updates an aggregate with revision checking
func (s *storage) UpdateCandidate(ctx context.Context, candidate *model.ForwardCandidate, expectedRevision uint64) (uint64, error) {
	kv, exists := s.client.kvStore[constants.KVBucketNameCandidates]
	if !exists || kv == nil {
		return 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	data, err := msgpack.Marshal(candidate)
	if err != nil {
		return 0, errs.NewUnexpected("failed to encode candidate", err)
	}

	key := candidateKey(ctx, candidate.RepositoryUID, candidate.Email)
	rev, err := kv.Update(ctx, key, data, expectedRevision)
	if err != nil {
		if isRevisionMismatch(err) {
			return 0, errs.NewConflict("candidate was modified concurrently")
		}
		return 0, errs.NewServiceUnavailable("failed to update candidate")
	}
	return rev, nil
}

// DeleteCandidate removes an aggregate. Missing keys are not an error so
// sweeps and admission cleanup stay idempotent.
func (s *storage) DeleteCandidate(ctx context.Context, repositoryUID, email string) error {
	err := s.delete(ctx, constants.KVBucketNameCandidates, candidateKey(ctx, repositoryUID, email), 0)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		slog.ErrorContext(ctx, "failed to delete candidate", "error", err,
			"repository_uid", repositoryUID,
			"email", redaction.RedactEmail(email))
		return errs.NewServiceUnavailable("failed to delete candidate")
	}
	return nil
}

// ListCandidates lists all pending aggregates for a repository
func (s *storage) ListCandidates(ctx context.Context, repositoryUID string) ([]*model.ForwardCandidate, error) {
	return s.listCandidatesByPrefix(ctx, repositoryUID+".")
}

// ListAllCandidates lists every pending aggregate, for the retention sweeper
func (s *storage) ListAllCandidates(ctx context.Context) ([]*model.ForwardCandidate, error) {
	return s.listCandidatesByPrefix(ctx, "")
}

func (s *storage) listCandidatesByPrefix(ctx context.Context, prefix string) ([]*model.ForwardCandidate, error) {
	kv, exists := s.client.kvStore[constants.KVBucketNameCandidates]
	if !exists || kv == nil {
		return nil, errs.NewServiceUnavailable("KV bucket not available")
	}

	keys, err := s.listKeys(ctx, constants.KVBucketNameCandidates, prefix)
	if err != nil {
		return nil, errs.NewServiceUnavailable("failed to list candidates")
	}

	candidates := make([]*model.ForwardCandidate, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list candidates")
		}
		candidate := &model.ForwardCandidate{}
		if err := msgpack.Unmarshal(entry.Value(), candidate); err != nil {
			slog.ErrorContext(ctx, "skipping undecodable candidate", "error", err, "key", key)
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// ==================== csv imports ====================

// GetImport retrieves an import record by UID and returns the revision
func (s *storage) GetImport(ctx context.Context, uid string) (*model.CSVImportRecord, uint64, error) {
	record := &model.CSVImportRecord{}
	rev, err := s.get(ctx, constants.KVBucketNameImports, uid, record, false)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("import not found")
		}
		return nil, 0, errs.NewServiceUnavailable("failed to get import")
	}
	return record, rev, nil
}

// GetImportByTrackingCode retrieves an import record by its tracking code
func (s *storage) GetImportByTrackingCode(ctx context.Context, trackingCode string) (*model.CSVImportRecord, uint64, error) {
	kv, exists := s.client.kvStore[constants.KVBucketNameImports]
	if !exists || kv == nil {
		return nil, 0, errs.NewServiceUnavailable("KV bucket not available")
	}

	lookupKey := fmt.Sprintf(constants.KVLookupImportTrackingPrefix, trackingCode)
	entry, err := kv.Get(ctx, lookupKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("import not found")
		}
		return nil, 0, errs.NewServiceUnavailable("failed to resolve import lookup")
	}

	return s.GetImport(ctx, string(entry.Value()))
}

// ListImports lists import records for a repository
func (s *storage) ListImports(ctx context.Context, repositoryUID string) ([]*model.CSVImportRecord, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameImports, "")
	if err != nil {
		return nil, errs.NewServiceUnavailable("failed to list imports")
	}

	var records []*model.CSVImportRecord
	for _, key := range keys {
		record := &model.CSVImportRecord{}
		if _, err := s.get(ctx, constants.KVBucketNameImports, key, record, false); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list imports")
		}
		if record.RepositoryUID == repositoryUID {
			records = append(records, record)
		}
	}
	return records, nil
}

// CreateImport stores a new import record with its tracking-code lookup
func (s *storage) CreateImport(ctx context.Context, record *model.CSVImportRecord) (*model.CSVImportRecord, uint64, error) {
	slog.DebugContext(ctx, "nats storage: creating import record",
		"import_uid", record.UID,
		"tracking_code", record.TrackingCode,
		"repository_uid", record.RepositoryUID)

	data, err := json.Marshal(record)
	if err != nil {
		return nil, 0, errs.NewUnexpected("failed to marshal import record", err)
	}

	rev, err := s.create(ctx, constants.KVBucketNameImports, record.UID, data)
	if err != nil {
		return nil, 0, err
	}

	if record.TrackingCode != "" {
		lookupKey := fmt.Sprintf(constants.KVLookupImportTrackingPrefix, record.TrackingCode)
		if _, err := s.createUniqueConstraint(ctx, constants.KVBucketNameImports, lookupKey, record.UID); err != nil {
			if delErr := s.delete(ctx, constants.KVBucketNameImports, record.UID, 0); delErr != nil {
				slog.ErrorContext(ctx, "failed to roll back import record", "error", delErr, "import_uid", record.UID)
			}
			return nil, 0, err
		}
	}

	return record, rev, nil
}

// UpdateImport updates an import record with revision checking
func (s *storage) UpdateImport(ctx context.Context, uid string, record *model.CSVImportRecord, expectedRevision uint64) (*model.CSVImportRecord, uint64, error) {
	rev, err := s.putWithRevision(ctx, constants.KVBucketNameImports, uid, record, expectedRevision)
	if err != nil {
		if isRevisionMismatch(err) {
			return nil, 0, errs.NewConflict("import record was modified by another writer")
		}
		slog.ErrorContext(ctx, "failed to update import record", "error", err, "import_uid", uid)
		return nil, 0, errs.NewServiceUnavailable("failed to update import record")
	}
	return record, rev, nil
}

// ==================== growth cycles ====================

// GetGrowthCycle retrieves the cycle counter for a repository and aligned start
func (s *storage) GetGrowthCycle(ctx context.Context, repositoryUID string, startedAt time.Time) (*model.GrowthCycle, uint64, error) {
	cycle := &model.GrowthCycle{}
	rev, err := s.get(ctx, constants.KVBucketNameGrowthCycles, model.CycleKey(repositoryUID, startedAt), cycle, false)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, errs.NewNotFound("growth cycle not found")
		}
		return nil, 0, errs.NewServiceUnavailable("failed to get growth cycle")
	}
	return cycle, rev, nil
}

// CreateGrowthCycle stores a fresh cycle counter
func (s *storage) CreateGrowthCycle(ctx context.Context, cycle *model.GrowthCycle) (uint64, error) {
	data, err := json.Marshal(cycle)
	if err != nil {
		return 0, errs.NewUnexpected("failed to marshal growth cycle", err)
	}
	return s.create(ctx, constants.KVBucketNameGrowthCycles, model.CycleKey(cycle.RepositoryUID, cycle.StartedAt), data)
}

// UpdateGrowthCycle updates a cycle counter with revision checking
func (s *storage) UpdateGrowthCycle(ctx context.Context, cycle *model.GrowthCycle, expectedRevision uint64) (uint64, error) {
	rev, err := s.putWithRevision(ctx, constants.KVBucketNameGrowthCycles,
		model.CycleKey(cycle.RepositoryUID, cycle.StartedAt), cycle, expectedRevision)
	if err != nil {
		if isRevisionMismatch(err) {
			return 0, errs.NewConflict("growth cycle was modified concurrently")
		}
		return 0, errs.NewServiceUnavailable("failed to update growth cycle")
	}
	return rev, nil
}

// ==================== snowball events ====================

// CreateSnowballEvent appends one audit event
func (s *storage) CreateSnowballEvent(ctx context.Context, event *model.SnowballEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errs.NewUnexpected("failed to marshal snowball event", err)
	}

	key := fmt.Sprintf("%s.%s", event.RepositoryUID, event.UID)
	if _, err := s.create(ctx, constants.KVBucketNameSnowballEvents, key, data); err != nil {
		slog.ErrorContext(ctx, "failed to append snowball event", "error", err, "event_uid", event.UID)
		return err
	}
	return nil
}

// ListSnowballEvents lists events for a repository created at or after since
func (s *storage) ListSnowballEvents(ctx context.Context, repositoryUID string, since time.Time) ([]*model.SnowballEvent, error) {
	keys, err := s.listKeys(ctx, constants.KVBucketNameSnowballEvents, repositoryUID+".")
	if err != nil {
		return nil, errs.NewServiceUnavailable("failed to list snowball events")
	}

	events := make([]*model.SnowballEvent, 0, len(keys))
	for _, key := range keys {
		event := &model.SnowballEvent{}
		if _, err := s.get(ctx, constants.KVBucketNameSnowballEvents, key, event, false); err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errs.NewServiceUnavailable("failed to list snowball events")
		}
		if since.IsZero() || !event.CreatedAt.Before(since) {
			events = append(events, event)
		}
	}
	return events, nil
}

// isRevisionMismatch reports whether a KV error is the revision-check
// failure produced by conditional updates.
func isRevisionMismatch(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return strings.Contains(err.Error(), "wrong last sequence")
}
