// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package mock provides in-memory implementations of the storage ports
// for testing without a NATS server.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
)

// MockRepository provides a mock implementation of all storage ports for testing
type MockRepository struct {
	repositories        map[string]*model.Repository
	repositoryRevisions map[string]uint64
	repositoryNameKeys  map[string]string // indexKey -> repository UID
	members             map[string]*model.MembershipRecord // repoUID.uid -> member
	memberRevisions     map[string]uint64
	memberEmailKeys     map[string]string // indexKey -> record key
	candidates          map[string]*model.ForwardCandidate // repoUID.email -> candidate
	candidateRevisions  map[string]uint64
	imports             map[string]*model.CSVImportRecord
	importRevisions     map[string]uint64
	importTrackingKeys  map[string]string // tracking code -> import UID
	growthCycles        map[string]*model.GrowthCycle
	cycleRevisions      map[string]uint64
	events              map[string][]*model.SnowballEvent // repoUID -> events
	mu                  sync.RWMutex
}

// NewMockRepository creates an empty mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		repositories:        make(map[string]*model.Repository),
		repositoryRevisions: make(map[string]uint64),
		repositoryNameKeys:  make(map[string]string),
		members:             make(map[string]*model.MembershipRecord),
		memberRevisions:     make(map[string]uint64),
		memberEmailKeys:     make(map[string]string),
		candidates:          make(map[string]*model.ForwardCandidate),
		candidateRevisions:  make(map[string]uint64),
		imports:             make(map[string]*model.CSVImportRecord),
		importRevisions:     make(map[string]uint64),
		importTrackingKeys:  make(map[string]string),
		growthCycles:        make(map[string]*model.GrowthCycle),
		cycleRevisions:      make(map[string]uint64),
		events:              make(map[string][]*model.SnowballEvent),
	}
}

func memberRecordKey(repositoryUID, uid string) string {
	return fmt.Sprintf("%s.%s", repositoryUID, uid)
}

func candidateRecordKey(repositoryUID, email string) string {
	return fmt.Sprintf("%s.%s", repositoryUID, model.NormalizeEmail(email))
}

// ==================== repositories ====================

// GetRepository retrieves a single repository by UID and returns the revision
func (m *MockRepository) GetRepository(ctx context.Context, uid string) (*model.Repository, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repository, exists := m.repositories[uid]
	if !exists {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("repository with UID %s not found", uid))
	}

	repoCopy := *repository
	return &repoCopy, m.repositoryRevisions[uid], nil
}

// GetRepositoryRevision retrieves only the revision for a given UID
func (m *MockRepository) GetRepositoryRevision(ctx context.Context, uid string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.repositories[uid]; !exists {
		return 0, errors.NewNotFound(fmt.Sprintf("repository with UID %s not found", uid))
	}
	return m.repositoryRevisions[uid], nil
}

// CreateRepository stores a new repository
func (m *MockRepository) CreateRepository(ctx context.Context, repository *model.Repository) (*model.Repository, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.repositories[repository.UID]; exists {
		return nil, 0, errors.NewConflict("repository already exists")
	}

	repoCopy := *repository
	m.repositories[repository.UID] = &repoCopy
	m.repositoryRevisions[repository.UID] = 1

	result := repoCopy
	return &result, 1, nil
}

// UpdateRepository updates an existing repository with revision checking
func (m *MockRepository) UpdateRepository(ctx context.Context, uid string, repository *model.Repository, expectedRevision uint64) (*model.Repository, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.repositories[uid]; !exists {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("repository with UID %s not found", uid))
	}
	if m.repositoryRevisions[uid] != expectedRevision {
		return nil, 0, errors.NewConflict("repository was modified by another writer")
	}

	repoCopy := *repository
	m.repositories[uid] = &repoCopy
	m.repositoryRevisions[uid] = expectedRevision + 1

	result := repoCopy
	return &result, expectedRevision + 1, nil
}

// UniqueRepositoryName reserves the repository name per owner
func (m *MockRepository) UniqueRepositoryName(ctx context.Context, repository *model.Repository) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexKey := repository.BuildIndexKey(ctx)
	if _, exists := m.repositoryNameKeys[indexKey]; exists {
		return indexKey, errors.NewConflict("repository with same name already exists for owner")
	}
	m.repositoryNameKeys[indexKey] = repository.UID
	return indexKey, nil
}

// ==================== members ====================

// GetMember retrieves a member by UID within a repository
func (m *MockRepository) GetMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := memberRecordKey(repositoryUID, uid)
	member, exists := m.members[key]
	if !exists {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("member with UID %s not found", uid))
	}

	memberCopy := *member
	return &memberCopy, m.memberRevisions[key], nil
}

// GetMemberByEmail retrieves a member by normalized email within a repository
func (m *MockRepository) GetMemberByEmail(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	indexKey := model.MemberIndexKey(ctx, repositoryUID, email)
	recordKey, exists := m.memberEmailKeys[indexKey]
	if !exists {
		return nil, 0, errors.NewNotFound("member not found")
	}

	member, exists := m.members[recordKey]
	if !exists {
		return nil, 0, errors.NewNotFound("member not found")
	}

	memberCopy := *member
	return &memberCopy, m.memberRevisions[recordKey], nil
}

// ListMembers lists all membership records for a repository
func (m *MockRepository) ListMembers(ctx context.Context, repositoryUID string) ([]*model.MembershipRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []*model.MembershipRecord
	for _, member := range m.members {
		if member.RepositoryUID == repositoryUID {
			memberCopy := *member
			members = append(members, &memberCopy)
		}
	}
	return members, nil
}

// CountMembersByContributor counts records added by one contributor within a repository
func (m *MockRepository) CountMembersByContributor(ctx context.Context, repositoryUID, addedBy string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, member := range m.members {
		if member.RepositoryUID == repositoryUID && member.AddedBy == addedBy && member.Status != model.MemberStatusRemoved {
			count++
		}
	}
	return count, nil
}

// CreateMember stores a new member, enforcing email uniqueness per repository
func (m *MockRepository) CreateMember(ctx context.Context, member *model.MembershipRecord) (*model.MembershipRecord, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexKey := member.BuildIndexKey(ctx)
	if _, exists := m.memberEmailKeys[indexKey]; exists {
		return nil, 0, errors.NewConflict("entity with same constraints already exists")
	}

	key := memberRecordKey(member.RepositoryUID, member.UID)
	memberCopy := *member
	m.members[key] = &memberCopy
	m.memberRevisions[key] = 1
	m.memberEmailKeys[indexKey] = key

	result := memberCopy
	return &result, 1, nil
}

// UpdateMember updates an existing member with revision checking
func (m *MockRepository) UpdateMember(ctx context.Context, member *model.MembershipRecord, expectedRevision uint64) (*model.MembershipRecord, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberRecordKey(member.RepositoryUID, member.UID)
	if _, exists := m.members[key]; !exists {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("member with UID %s not found", member.UID))
	}
	if m.memberRevisions[key] != expectedRevision {
		return nil, 0, errors.NewConflict("member was modified by another writer")
	}

	memberCopy := *member
	m.members[key] = &memberCopy
	m.memberRevisions[key] = expectedRevision + 1

	result := memberCopy
	return &result, expectedRevision + 1, nil
}

// ==================== forward candidates ====================

// GetCandidate retrieves a candidate aggregate and its revision
func (m *MockRepository) GetCandidate(ctx context.Context, repositoryUID, email string) (*model.ForwardCandidate, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := candidateRecordKey(repositoryUID, email)
	candidate, exists := m.candidates[key]
	if !exists {
		return nil, 0, errors.NewNotFound("candidate not found")
	}

	candidateCopy := *candidate
	candidateCopy.Forwarders = append([]string(nil), candidate.Forwarders...)
	return &candidateCopy, m.candidateRevisions[key], nil
}

// CreateCandidate stores a new aggregate, failing when one already exists
func (m *MockRepository) CreateCandidate(ctx context.Context, candidate *model.ForwardCandidate) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := candidateRecordKey(candidate.RepositoryUID, candidate.Email)
	if _, exists := m.candidates[key]; exists {
		return 0, errors.NewConflict("candidate already exists")
	}

	candidateCopy := *candidate
	candidateCopy.Forwarders = append([]string(nil), candidate.Forwarders...)
	m.candidates[key] = &candidateCopy
	m.candidateRevisions[key] = 1
	return 1, nil
}

// UpdateCandidate updates an aggregate with revision checking
func (m *MockRepository) UpdateCandidate(ctx context.Context, candidate *model.ForwardCandidate, expectedRevision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := candidateRecordKey(candidate.RepositoryUID, candidate.Email)
	if _, exists := m.candidates[key]; !exists {
		return 0, errors.NewNotFound("candidate not found")
	}
	if m.candidateRevisions[key] != expectedRevision {
		return 0, errors.NewConflict("candidate was modified concurrently")
	}

	candidateCopy := *candidate
	candidateCopy.Forwarders = append([]string(nil), candidate.Forwarders...)
	m.candidates[key] = &candidateCopy
	m.candidateRevisions[key] = expectedRevision + 1
	return expectedRevision + 1, nil
}

// DeleteCandidate removes an aggregate, ignoring missing keys
func (m *MockRepository) DeleteCandidate(ctx context.Context, repositoryUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := candidateRecordKey(repositoryUID, email)
	delete(m.candidates, key)
	delete(m.candidateRevisions, key)
	return nil
}

// ListCandidates lists all pending aggregates for a repository
func (m *MockRepository) ListCandidates(ctx context.Context, repositoryUID string) ([]*model.ForwardCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*model.ForwardCandidate
	for _, candidate := range m.candidates {
		if candidate.RepositoryUID == repositoryUID {
			candidateCopy := *candidate
			candidateCopy.Forwarders = append([]string(nil), candidate.Forwarders...)
			candidates = append(candidates, &candidateCopy)
		}
	}
	return candidates, nil
}

// ListAllCandidates lists every pending aggregate
func (m *MockRepository) ListAllCandidates(ctx context.Context) ([]*model.ForwardCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*model.ForwardCandidate, 0, len(m.candidates))
	for _, candidate := range m.candidates {
		candidateCopy := *candidate
		candidateCopy.Forwarders = append([]string(nil), candidate.Forwarders...)
		candidates = append(candidates, &candidateCopy)
	}
	return candidates, nil
}

// ==================== csv imports ====================

// GetImport retrieves an import record by UID and returns the revision
func (m *MockRepository) GetImport(ctx context.Context, uid string) (*model.CSVImportRecord, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.imports[uid]
	if !exists {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("import with UID %s not found", uid))
	}

	recordCopy := *record
	return &recordCopy, m.importRevisions[uid], nil
}

// GetImportByTrackingCode retrieves an import record by its tracking code
func (m *MockRepository) GetImportByTrackingCode(ctx context.Context, trackingCode string) (*model.CSVImportRecord, uint64, error) {
	m.mu.RLock()
	uid, exists := m.importTrackingKeys[trackingCode]
	m.mu.RUnlock()

	if !exists {
		return nil, 0, errors.NewNotFound("import not found")
	}
	return m.GetImport(ctx, uid)
}

// ListImports lists import records for a repository
func (m *MockRepository) ListImports(ctx context.Context, repositoryUID string) ([]*model.CSVImportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*model.CSVImportRecord
	for _, record := range m.imports {
		if record.RepositoryUID == repositoryUID {
			recordCopy := *record
			records = append(records, &recordCopy)
		}
	}
	return records, nil
}

// CreateImport stores a new import record with its tracking-code lookup
func (m *MockRepository) CreateImport(ctx context.Context, record *model.CSVImportRecord) (*model.CSVImportRecord, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.imports[record.UID]; exists {
		return nil, 0, errors.NewConflict("import already exists")
	}
	if record.TrackingCode != "" {
		if _, exists := m.importTrackingKeys[record.TrackingCode]; exists {
			return nil, 0, errors.NewConflict("tracking code already in use")
		}
		m.importTrackingKeys[record.TrackingCode] = record.UID
	}

	recordCopy := *record
	m.imports[record.UID] = &recordCopy
	m.importRevisions[record.UID] = 1

	result := recordCopy
	return &result, 1, nil
}

// UpdateImport updates an import record with revision checking
func (m *MockRepository) UpdateImport(ctx context.Context, uid string, record *model.CSVImportRecord, expectedRevision uint64) (*model.CSVImportRecord, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.imports[uid]; !exists {
		return nil, 0, errors.NewNotFound(fmt.Sprintf("import with UID %s not found", uid))
	}
	if m.importRevisions[uid] != expectedRevision {
		return nil, 0, errors.NewConflict("import record was modified by another writer")
	}

	recordCopy := *record
	m.imports[uid] = &recordCopy
	m.importRevisions[uid] = expectedRevision + 1

	result := recordCopy
	return &result, expectedRevision + 1, nil
}

// ==================== growth cycles ====================

// GetGrowthCycle retrieves the cycle counter for a repository and aligned start
func (m *MockRepository) GetGrowthCycle(ctx context.Context, repositoryUID string, startedAt time.Time) (*model.GrowthCycle, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := model.CycleKey(repositoryUID, startedAt)
	cycle, exists := m.growthCycles[key]
	if !exists {
		return nil, 0, errors.NewNotFound("growth cycle not found")
	}

	cycleCopy := *cycle
	return &cycleCopy, m.cycleRevisions[key], nil
}

// CreateGrowthCycle stores a fresh cycle counter
func (m *MockRepository) CreateGrowthCycle(ctx context.Context, cycle *model.GrowthCycle) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.CycleKey(cycle.RepositoryUID, cycle.StartedAt)
	if _, exists := m.growthCycles[key]; exists {
		return 0, errors.NewConflict("growth cycle already exists")
	}

	cycleCopy := *cycle
	m.growthCycles[key] = &cycleCopy
	m.cycleRevisions[key] = 1
	return 1, nil
}

// UpdateGrowthCycle updates a cycle counter with revision checking
func (m *MockRepository) UpdateGrowthCycle(ctx context.Context, cycle *model.GrowthCycle, expectedRevision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.CycleKey(cycle.RepositoryUID, cycle.StartedAt)
	if _, exists := m.growthCycles[key]; !exists {
		return 0, errors.NewNotFound("growth cycle not found")
	}
	if m.cycleRevisions[key] != expectedRevision {
		return 0, errors.NewConflict("growth cycle was modified concurrently")
	}

	cycleCopy := *cycle
	m.growthCycles[key] = &cycleCopy
	m.cycleRevisions[key] = expectedRevision + 1
	return expectedRevision + 1, nil
}

// ==================== snowball events ====================

// CreateSnowballEvent appends one audit event
func (m *MockRepository) CreateSnowballEvent(ctx context.Context, event *model.SnowballEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	eventCopy := *event
	m.events[event.RepositoryUID] = append(m.events[event.RepositoryUID], &eventCopy)
	return nil
}

// ListSnowballEvents lists events for a repository created at or after since
func (m *MockRepository) ListSnowballEvents(ctx context.Context, repositoryUID string, since time.Time) ([]*model.SnowballEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*model.SnowballEvent
	for _, event := range m.events[repositoryUID] {
		if since.IsZero() || !event.CreatedAt.Before(since) {
			eventCopy := *event
			events = append(events, &eventCopy)
		}
	}
	return events, nil
}

// ==================== test helpers ====================

// AddRepository adds a repository directly, for test seeding
func (m *MockRepository) AddRepository(repository *model.Repository) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repoCopy := *repository
	m.repositories[repository.UID] = &repoCopy
	m.repositoryRevisions[repository.UID] = 1
}

// AddMember adds a member directly, for test seeding
func (m *MockRepository) AddMember(member *model.MembershipRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberRecordKey(member.RepositoryUID, member.UID)
	memberCopy := *member
	m.members[key] = &memberCopy
	m.memberRevisions[key] = 1
	m.memberEmailKeys[member.BuildIndexKey(context.Background())] = key
}

// GetMemberCount returns the number of stored members
func (m *MockRepository) GetMemberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

// GetCandidateCount returns the number of stored candidate aggregates
func (m *MockRepository) GetCandidateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.candidates)
}

// ClearAll removes all stored data
func (m *MockRepository) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.repositories = make(map[string]*model.Repository)
	m.repositoryRevisions = make(map[string]uint64)
	m.repositoryNameKeys = make(map[string]string)
	m.members = make(map[string]*model.MembershipRecord)
	m.memberRevisions = make(map[string]uint64)
	m.memberEmailKeys = make(map[string]string)
	m.candidates = make(map[string]*model.ForwardCandidate)
	m.candidateRevisions = make(map[string]uint64)
	m.imports = make(map[string]*model.CSVImportRecord)
	m.importRevisions = make(map[string]uint64)
	m.importTrackingKeys = make(map[string]string)
	m.growthCycles = make(map[string]*model.GrowthCycle)
	m.cycleRevisions = make(map[string]uint64)
	m.events = make(map[string][]*model.SnowballEvent)
}
