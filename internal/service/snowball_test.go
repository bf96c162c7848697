// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/mock"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

// engineFixture wires a snowball engine over the mock repository with one
// snowball-enabled repository and a set of active source members.
type engineFixture struct {
	repo      *mock.MockRepository
	publisher *mock.MockMessagePublisher
	engine    SnowballEngine
	repoUID   string
}

func newEngineFixture(t *testing.T, mutate func(*model.Repository), sourceCount int) *engineFixture {
	t.Helper()

	repo := mock.NewMockRepository()
	publisher := mock.NewMockMessagePublisher()

	repository := &model.Repository{
		UID:      "repo-1",
		Name:     "climate-research",
		OwnerUID: "owner-1",
		Snowball: model.SnowballSettings{Enabled: true},
	}
	repository.ApplyDefaults()
	repository.Settings.AutoApprove = true
	if mutate != nil {
		mutate(repository)
	}
	repo.AddRepository(repository)

	for i := 0; i < sourceCount; i++ {
		repo.AddMember(&model.MembershipRecord{
			UID:           fmt.Sprintf("member-%d", i),
			RepositoryUID: repository.UID,
			Email:         fmt.Sprintf("source%d@research-lab.org", i),
			Source:        model.MemberSourceDirect,
			Status:        model.MemberStatusActive,
			TrustScore:    0.9,
			Permissions:   model.MemberPermissions{ReceiveDigest: true, ReceiveSnowball: true},
		})
	}

	engine := NewSnowballEngine(
		WithEngineRepositoryReader(repo),
		WithEngineMemberReader(repo),
		WithEngineMemberWriter(repo),
		WithEngineCandidateRepository(repo),
		WithEngineEventWriter(repo),
		WithEngineGovernor(NewGrowthGovernor(repo, repo)),
		WithEnginePublisher(publisher),
	)

	return &engineFixture{
		repo:      repo,
		publisher: publisher,
		engine:    engine,
		repoUID:   repository.UID,
	}
}

// forward sends one forward event from the numbered source member.
func (f *engineFixture) forward(t *testing.T, sourceIdx int, candidates ...string) []*model.SnowballEvent {
	t.Helper()
	events, err := f.engine.ProcessForward(context.Background(), &model.ForwardEvent{
		RepositoryUID:   f.repoUID,
		SourceEmail:     fmt.Sprintf("source%d@research-lab.org", sourceIdx),
		CandidateEmails: candidates,
		Depth:           1,
	})
	require.NoError(t, err)
	return events
}

func TestSnowballEngine_ProcessForward_BelowThreshold(t *testing.T) {
	f := newEngineFixture(t, nil, 5)

	events := f.forward(t, 0, "friend@custom-research.org")
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeBelowThreshold, events[0].Outcome)
	assert.False(t, events[0].Approved)
	assert.Equal(t, 1, events[0].ForwarderCount)

	candidate, _, err := f.repo.GetCandidate(context.Background(), f.repoUID, "friend@custom-research.org")
	require.NoError(t, err)
	assert.Equal(t, 1, candidate.ForwarderCount)
}

func TestSnowballEngine_ProcessForward_RepeatForwarderDoesNotCount(t *testing.T) {
	f := newEngineFixture(t, nil, 5)

	f.forward(t, 0, "friend@custom-research.org")
	events := f.forward(t, 0, "friend@custom-research.org")

	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].ForwarderCount,
		"same source forwarding twice counts once")
}

func TestSnowballEngine_ProcessForward_ThresholdAdmission(t *testing.T) {
	f := newEngineFixture(t, nil, 5)

	// Four distinct forwarders leave the candidate pending.
	for i := 0; i < 4; i++ {
		events := f.forward(t, i, "friend@custom-research.org")
		require.Equal(t, model.OutcomeBelowThreshold, events[0].Outcome)
	}

	// The fifth crosses the default threshold.
	events := f.forward(t, 4, "friend@custom-research.org")
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeAdmitted, events[0].Outcome)
	assert.True(t, events[0].Approved)
	assert.Equal(t, 5, events[0].ForwarderCount)

	member, _, err := f.repo.GetMemberByEmail(context.Background(), f.repoUID, "friend@custom-research.org")
	require.NoError(t, err)
	assert.Equal(t, model.MemberStatusActive, member.Status)
	assert.Equal(t, model.MemberSourceSnowball, member.Source)
	assert.Equal(t, "source0@research-lab.org", member.AddedBy,
		"first forwarder is credited with the add")
	assert.True(t, member.Permissions.ReceiveDigest)

	// The aggregate is destroyed on admission.
	_, _, err = f.repo.GetCandidate(context.Background(), f.repoUID, "friend@custom-research.org")
	assert.Error(t, err)

	// Admission publishes an indexer message for the new member.
	assert.NotEmpty(t, f.publisher.MessagesOnSubject(constants.IndexMemberSubject))
}

func TestSnowballEngine_ProcessForward_ManualReview(t *testing.T) {
	f := newEngineFixture(t, func(r *model.Repository) {
		r.Settings.AutoApprove = false
	}, 5)

	for i := 0; i < 5; i++ {
		events := f.forward(t, i, "friend@custom-research.org")
		require.Equal(t, model.OutcomeBelowThreshold, events[0].Outcome,
			"without auto approve the candidate stays pending")
	}

	// The candidate is still there, waiting for the owner.
	candidate, _, err := f.repo.GetCandidate(context.Background(), f.repoUID, "friend@custom-research.org")
	require.NoError(t, err)
	assert.Equal(t, 5, candidate.ForwarderCount)

	// Explicit approval admits it.
	event, err := f.engine.ApproveCandidate(context.Background(), f.repoUID, "friend@custom-research.org")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAdmitted, event.Outcome)
	assert.True(t, event.Approved)

	_, _, err = f.repo.GetMemberByEmail(context.Background(), f.repoUID, "friend@custom-research.org")
	assert.NoError(t, err)
}

func TestSnowballEngine_ProcessForward_DepthExceeded(t *testing.T) {
	f := newEngineFixture(t, nil, 1)

	events, err := f.engine.ProcessForward(context.Background(), &model.ForwardEvent{
		RepositoryUID:   f.repoUID,
		SourceEmail:     "source0@research-lab.org",
		CandidateEmails: []string{"friend@custom-research.org"},
		Depth:           4,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeDepthExceeded, events[0].Outcome)
	assert.Equal(t, 0, f.repo.GetCandidateCount(), "no aggregate for a dropped forward")
}

func TestSnowballEngine_ProcessForward_TrustRejected(t *testing.T) {
	f := newEngineFixture(t, nil, 1)

	events := f.forward(t, 0, "burner@mailinator.com")
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeTrustRejected, events[0].Outcome)
}

func TestSnowballEngine_ProcessForward_BlockedDomain(t *testing.T) {
	f := newEngineFixture(t, func(r *model.Repository) {
		r.Settings.BlockedDomains = []string{"rival.example"}
	}, 1)

	events := f.forward(t, 0, "friend@rival.example")
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeTrustRejected, events[0].Outcome)
}

func TestSnowballEngine_ProcessForward_QualityBelowBar(t *testing.T) {
	f := newEngineFixture(t, func(r *model.Repository) {
		r.Settings.QualityThreshold = 0.8
	}, 1)

	// Webmail scores 0.7, under the raised bar.
	events := f.forward(t, 0, "friend@gmail.com")
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeQualityBelowBar, events[0].Outcome)
}

func TestSnowballEngine_ProcessForward_AlreadyMember(t *testing.T) {
	f := newEngineFixture(t, nil, 2)

	events := f.forward(t, 0, "source1@research-lab.org")
	require.Len(t, events, 1)
	assert.Equal(t, model.OutcomeAlreadyMember, events[0].Outcome)
}

func TestSnowballEngine_ProcessForward_GrowthCap(t *testing.T) {
	// Five active members at rate 0.2 yield a single admission slot.
	f := newEngineFixture(t, func(r *model.Repository) {
		r.Snowball.MaxGrowthRate = 0.2
	}, 5)

	// Both candidates cross the threshold on the fifth forward.
	var events []*model.SnowballEvent
	for i := 0; i < 5; i++ {
		events = f.forward(t, i, "first@custom-research.org", "second@custom-research.org")
	}

	require.Len(t, events, 2)
	assert.Equal(t, model.OutcomeAdmitted, events[0].Outcome)
	assert.Equal(t, model.OutcomeGrowthDeferred, events[1].Outcome,
		"the cap defers, it does not drop")

	// The deferred candidate survives for a later cycle.
	candidate, _, err := f.repo.GetCandidate(context.Background(), f.repoUID, "second@custom-research.org")
	require.NoError(t, err)
	assert.Equal(t, 5, candidate.ForwarderCount)
}

func TestSnowballEngine_ProcessForward_SourceValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*model.Repository)
		source   string
		errorMsg string
	}{
		{
			name:     "unknown source",
			source:   "stranger@research-lab.org",
			errorMsg: "forward source is not a repository member",
		},
		{
			name: "snowball disabled",
			mutate: func(r *model.Repository) {
				r.Snowball.Enabled = false
			},
			source:   "source0@research-lab.org",
			errorMsg: "snowball is disabled",
		},
		{
			name: "archived repository",
			mutate: func(r *model.Repository) {
				r.Status = model.RepositoryStatusArchived
			},
			source:   "source0@research-lab.org",
			errorMsg: "archived repository",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, tt.mutate, 1)
			_, err := f.engine.ProcessForward(context.Background(), &model.ForwardEvent{
				RepositoryUID:   f.repoUID,
				SourceEmail:     tt.source,
				CandidateEmails: []string{"friend@custom-research.org"},
				Depth:           1,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestSnowballEngine_ProcessForward_OptedOutSourceRejected(t *testing.T) {
	f := newEngineFixture(t, nil, 1)
	f.repo.AddMember(&model.MembershipRecord{
		UID:           "member-out",
		RepositoryUID: f.repoUID,
		Email:         "quitter@research-lab.org",
		Source:        model.MemberSourceDirect,
		Status:        model.MemberStatusOptedOut,
	})

	_, err := f.engine.ProcessForward(context.Background(), &model.ForwardEvent{
		RepositoryUID:   f.repoUID,
		SourceEmail:     "quitter@research-lab.org",
		CandidateEmails: []string{"friend@custom-research.org"},
		Depth:           1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward source is not an active member")
}

func TestSnowballEngine_ProcessForward_AuditTrail(t *testing.T) {
	f := newEngineFixture(t, nil, 1)

	f.forward(t, 0, "friend@custom-research.org", "burner@mailinator.com", "  ", "source0@research-lab.org")

	// Every candidate is audited, including rejections, blanks, and
	// self-forwards; nothing in a forward event is silently dropped.
	events, err := f.repo.ListSnowballEvents(context.Background(), f.repoUID, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 4)

	outcomes := make(map[model.SnowballOutcome]int)
	for _, event := range events {
		outcomes[event.Outcome]++
	}
	assert.Equal(t, 2, outcomes[model.OutcomeSelfForward],
		"the blank candidate and the forwarder's own address are audited as self-forwards")
	assert.Equal(t, 1, outcomes[model.OutcomeBelowThreshold])
	assert.Equal(t, 1, outcomes[model.OutcomeTrustRejected])

	published := f.publisher.MessagesOnSubject(constants.SnowballEventSubject)
	assert.Len(t, published, 4, "every audit event is published")
}

func TestSnowballEngine_ProcessForward_ConcurrentAdmission(t *testing.T) {
	const racers = 8
	f := newEngineFixture(t, func(r *model.Repository) {
		r.Snowball.AutoAddThreshold = 1
	}, racers)

	results := make([][]*model.SnowballEvent, racers)
	procErrs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], procErrs[i] = f.engine.ProcessForward(context.Background(), &model.ForwardEvent{
				RepositoryUID:   f.repoUID,
				SourceEmail:     fmt.Sprintf("source%d@research-lab.org", i),
				CandidateEmails: []string{"friend@custom-research.org"},
				Depth:           1,
			})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i := 0; i < racers; i++ {
		require.NoError(t, procErrs[i])
		require.Len(t, results[i], 1)
		if results[i][0].Outcome == model.OutcomeAdmitted {
			admitted++
		} else {
			assert.Equal(t, model.OutcomeAlreadyMember, results[i][0].Outcome)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one racer admits the candidate")
	assert.Equal(t, racers+1, f.repo.GetMemberCount(),
		"a single membership record exists for the candidate")
	assert.Zero(t, f.repo.GetCandidateCount())
}

func TestSnowballEngine_Multiplier(t *testing.T) {
	f := newEngineFixture(t, func(r *model.Repository) {
		r.Stats.OriginalImportCount = 4
	}, 4)

	events := f.forward(t, 0, "friend@custom-research.org")
	require.Len(t, events, 1)
	assert.InDelta(t, 1.0, events[0].Multiplier, 0.001,
		"four active members over four imported")
}
