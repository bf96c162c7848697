// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/mock"
)

func analyticsFixture(t *testing.T) (*Analytics, *mock.MockRepository, *model.Repository) {
	t.Helper()

	repo := mock.NewMockRepository()
	repository := &model.Repository{
		UID:      "repo-1",
		Name:     "climate-research",
		OwnerUID: "owner-1",
	}
	repository.ApplyDefaults()
	repository.Stats.OriginalImportCount = 2
	repo.AddRepository(repository)

	analytics := NewAnalytics(
		WithAnalyticsRepositoryReader(repo),
		WithAnalyticsRepositoryWriter(repo),
		WithAnalyticsMemberReader(repo),
		WithAnalyticsCandidateRepository(repo),
		WithAnalyticsEventReader(repo),
	)
	return analytics, repo, repository
}

func seedMember(repo *mock.MockRepository, uid, email string, status model.MemberStatus, source model.MemberSource, trust float64, engagement model.MemberEngagement) {
	repo.AddMember(&model.MembershipRecord{
		UID:           uid,
		RepositoryUID: "repo-1",
		Email:         email,
		Domain:        model.EmailDomain(email),
		Source:        source,
		Status:        status,
		TrustScore:    trust,
		Engagement:    engagement,
		AddedAt:       time.Now().Add(-48 * time.Hour),
	})
}

func TestAnalytics_Snapshot(t *testing.T) {
	ctx := context.Background()
	analytics, repo, _ := analyticsFixture(t)
	now := time.Now()

	seedMember(repo, "m1", "a@research-lab.org", model.MemberStatusActive, model.MemberSourceCSVImport, 0.9,
		model.MemberEngagement{Opens: 3})
	seedMember(repo, "m2", "b@research-lab.org", model.MemberStatusVerified, model.MemberSourceCSVImport, 0.9,
		model.MemberEngagement{})
	seedMember(repo, "m3", "c@gmail.com", model.MemberStatusActive, model.MemberSourceSnowball, 0.7,
		model.MemberEngagement{Forwards: 1})
	seedMember(repo, "m4", "d@research-lab.org", model.MemberStatusBounced, model.MemberSourceDirect, 0.9,
		model.MemberEngagement{HardBounces: 3})

	_, err := repo.CreateCandidate(ctx, model.NewForwardCandidate(
		"repo-1", "pending@custom-research.org", "custom-research.org", 0.9,
		"a@research-lab.org", 1, now))
	require.NoError(t, err)

	events := []*model.SnowballEvent{
		{UID: "e1", RepositoryUID: "repo-1", SourceEmail: "a@research-lab.org", CandidateEmail: "c@gmail.com",
			Depth: 1, Outcome: model.OutcomeAdmitted, Approved: true, CreatedAt: now},
		{UID: "e2", RepositoryUID: "repo-1", SourceEmail: "a@research-lab.org", CandidateEmail: "x@custom-research.org",
			Depth: 1, Outcome: model.OutcomeBelowThreshold, CreatedAt: now},
		{UID: "e3", RepositoryUID: "repo-1", SourceEmail: "b@research-lab.org", CandidateEmail: "y@custom-research.org",
			Depth: 2, Outcome: model.OutcomeTrustRejected, CreatedAt: now},
		{UID: "e4", RepositoryUID: "repo-1", SourceEmail: "a@research-lab.org", CandidateEmail: "z@custom-research.org",
			Depth: 2, Outcome: model.OutcomeGrowthDeferred, CreatedAt: now},
	}
	for _, event := range events {
		require.NoError(t, repo.CreateSnowballEvent(ctx, event))
	}

	snapshot, err := analytics.Snapshot(ctx, "repo-1", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 4, snapshot.TotalMembers)
	assert.Equal(t, 2, snapshot.MembersByStatus[string(model.MemberStatusActive)])
	assert.Equal(t, 1, snapshot.MembersByStatus[string(model.MemberStatusVerified)])
	assert.Equal(t, 1, snapshot.MembersByStatus[string(model.MemberStatusBounced)])
	assert.Equal(t, 2, snapshot.MembersBySource[string(model.MemberSourceCSVImport)])
	assert.InDelta(t, 0.85, snapshot.AverageTrust, 0.001)
	assert.Equal(t, 3, snapshot.ActiveMembers)
	assert.Equal(t, 2, snapshot.EngagedMembers)
	assert.InDelta(t, 0.5, snapshot.EngagementRate, 0.001)

	require.NotEmpty(t, snapshot.TopDomains)
	assert.Equal(t, DomainStat{Domain: "research-lab.org", Members: 3}, snapshot.TopDomains[0])

	assert.Equal(t, 1, snapshot.PendingCandidates)
	assert.Equal(t, 1, snapshot.EventsByOutcome[string(model.OutcomeAdmitted)])
	assert.Equal(t, 1, snapshot.EventsByOutcome[string(model.OutcomeGrowthDeferred)])
	assert.Equal(t, 2, snapshot.DepthDistribution[1])
	assert.Equal(t, 2, snapshot.DepthDistribution[2])
	assert.InDelta(t, 0.25, snapshot.ConversionRate, 0.001)

	// Three active or verified members over two originally imported.
	assert.InDelta(t, 1.5, snapshot.SnowballMultiplier, 0.001)

	assert.Equal(t, 3, snapshot.HardBounces)
	assert.InDelta(t, 0.25, snapshot.BounceRatio, 0.001)
	assert.True(t, snapshot.Unhealthy, "a quarter of the repository bouncing is unhealthy")

	require.NotEmpty(t, snapshot.TopForwarders)
	assert.Equal(t, "a@research-lab.org", snapshot.TopForwarders[0].Email)
	assert.Equal(t, 3, snapshot.TopForwarders[0].Forwards)
	assert.Equal(t, 1, snapshot.TopForwarders[0].Admitted)
}

func TestAnalytics_Snapshot_SinceWindow(t *testing.T) {
	ctx := context.Background()
	analytics, repo, _ := analyticsFixture(t)
	now := time.Now()

	old := &model.SnowballEvent{
		UID: "old", RepositoryUID: "repo-1", SourceEmail: "a@research-lab.org",
		CandidateEmail: "x@custom-research.org", Outcome: model.OutcomeBelowThreshold,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	recent := &model.SnowballEvent{
		UID: "recent", RepositoryUID: "repo-1", SourceEmail: "a@research-lab.org",
		CandidateEmail: "y@custom-research.org", Outcome: model.OutcomeAdmitted,
		CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, repo.CreateSnowballEvent(ctx, old))
	require.NoError(t, repo.CreateSnowballEvent(ctx, recent))

	snapshot, err := analytics.Snapshot(ctx, "repo-1", now.Add(-24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, snapshot.EventsByOutcome[string(model.OutcomeAdmitted)])
	assert.Zero(t, snapshot.EventsByOutcome[string(model.OutcomeBelowThreshold)],
		"events before the window are excluded")
}

func TestAnalytics_Snapshot_EmptyRepository(t *testing.T) {
	analytics, _, _ := analyticsFixture(t)

	snapshot, err := analytics.Snapshot(context.Background(), "repo-1", time.Time{})
	require.NoError(t, err)

	assert.Zero(t, snapshot.TotalMembers)
	assert.Zero(t, snapshot.AverageTrust)
	assert.Zero(t, snapshot.ConversionRate)
	assert.Zero(t, snapshot.GrowthRate)
	assert.False(t, snapshot.Unhealthy)
	assert.Empty(t, snapshot.TopForwarders)
	assert.Empty(t, snapshot.TopDomains)
}

func TestAnalytics_Snapshot_HealthRatioOverride(t *testing.T) {
	ctx := context.Background()
	analytics, repo, repository := analyticsFixture(t)

	// One bounced member out of four is unhealthy at the platform default
	// but fine for a repository that tolerates up to half.
	repository.Settings.BounceHealthRatio = 0.5
	repo.AddRepository(repository)

	seedMember(repo, "m1", "a@research-lab.org", model.MemberStatusActive, model.MemberSourceCSVImport, 0.9, model.MemberEngagement{})
	seedMember(repo, "m2", "b@research-lab.org", model.MemberStatusActive, model.MemberSourceCSVImport, 0.9, model.MemberEngagement{})
	seedMember(repo, "m3", "c@research-lab.org", model.MemberStatusActive, model.MemberSourceCSVImport, 0.9, model.MemberEngagement{})
	seedMember(repo, "m4", "d@research-lab.org", model.MemberStatusBounced, model.MemberSourceCSVImport, 0.9,
		model.MemberEngagement{HardBounces: 3})

	snapshot, err := analytics.Snapshot(ctx, "repo-1", time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, snapshot.BounceRatio, 0.001)
	assert.False(t, snapshot.Unhealthy)
}

func TestAnalytics_Snapshot_GrowthRate(t *testing.T) {
	ctx := context.Background()
	analytics, repo, _ := analyticsFixture(t)
	now := time.Now()

	for i, age := range []time.Duration{48 * time.Hour, 48 * time.Hour, time.Hour, 30 * time.Minute} {
		email := fmt.Sprintf("g%d@research-lab.org", i)
		repo.AddMember(&model.MembershipRecord{
			UID:           fmt.Sprintf("g%d", i),
			RepositoryUID: "repo-1",
			Email:         email,
			Domain:        model.EmailDomain(email),
			Source:        model.MemberSourceCSVImport,
			Status:        model.MemberStatusActive,
			TrustScore:    0.9,
			AddedAt:       now.Add(-age),
		})
	}

	// Two members predate the default trailing window, two joined inside it.
	snapshot, err := analytics.Snapshot(ctx, "repo-1", time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, snapshot.GrowthRate, 0.001)

	// An explicit window wide enough to cover everyone has no base to grow from.
	snapshot, err = analytics.Snapshot(ctx, "repo-1", now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, snapshot.GrowthRate)
}

func TestAnalytics_RefreshStats(t *testing.T) {
	ctx := context.Background()
	analytics, repo, _ := analyticsFixture(t)

	seedMember(repo, "m1", "a@research-lab.org", model.MemberStatusActive, model.MemberSourceCSVImport, 0.9,
		model.MemberEngagement{})
	seedMember(repo, "m2", "b@research-lab.org", model.MemberStatusVerified, model.MemberSourceCSVImport, 0.9,
		model.MemberEngagement{})

	require.NoError(t, analytics.RefreshStats(ctx, "repo-1"))

	repository, _, err := repo.GetRepository(ctx, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repository.Stats.TotalMembers)
	assert.Equal(t, 1, repository.Stats.ActiveMembers)
	assert.Equal(t, 1, repository.Stats.VerifiedMembers)
	assert.InDelta(t, 1.0, repository.Stats.SnowballMultiplier, 0.001)
	assert.False(t, repository.Stats.RefreshedAt.IsZero())
}

func TestRankForwarders(t *testing.T) {
	stats := make(map[string]*ForwarderStat)
	for i := 0; i < 15; i++ {
		email := fmt.Sprintf("f%02d@research-lab.org", i)
		stats[email] = &ForwarderStat{Email: email, Forwards: i}
	}

	ranked := rankForwarders(stats)
	require.Len(t, ranked, topForwarderCount)
	assert.Equal(t, "f14@research-lab.org", ranked[0].Email)
	assert.Equal(t, 14, ranked[0].Forwards)

	t.Run("ties break by email", func(t *testing.T) {
		ranked := rankForwarders(map[string]*ForwarderStat{
			"b@x.org": {Email: "b@x.org", Forwards: 2},
			"a@x.org": {Email: "a@x.org", Forwards: 2},
		})
		require.Len(t, ranked, 2)
		assert.Equal(t, "a@x.org", ranked[0].Email)
	})
}
