// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
)

func TestMockRepository_RevisionChecking(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()

	repository := &model.Repository{
		UID:      "repo-1",
		Name:     "climate-research",
		OwnerUID: "owner-1",
	}
	created, revision, err := repo.CreateRepository(ctx, repository)
	require.NoError(t, err)

	t.Run("matching revision updates", func(t *testing.T) {
		created.Description = "updated"
		_, newRevision, err := repo.UpdateRepository(ctx, "repo-1", created, revision)
		require.NoError(t, err)
		assert.NotEqual(t, revision, newRevision)
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		_, _, err := repo.UpdateRepository(ctx, "repo-1", created, revision)
		require.Error(t, err)
	})
}

func TestMockRepository_MemberUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()

	member := &model.MembershipRecord{
		UID:           "member-1",
		RepositoryUID: "repo-1",
		Email:         "jane@research-lab.org",
		Source:        model.MemberSourceDirect,
		Status:        model.MemberStatusActive,
	}
	_, _, err := repo.CreateMember(ctx, member)
	require.NoError(t, err)

	t.Run("same email conflicts", func(t *testing.T) {
		duplicate := &model.MembershipRecord{
			UID:           "member-2",
			RepositoryUID: "repo-1",
			Email:         "JANE@research-lab.org",
			Source:        model.MemberSourceDirect,
		}
		_, _, err := repo.CreateMember(ctx, duplicate)
		require.Error(t, err, "normalized email must be unique per repository")
	})

	t.Run("same email in another repository is fine", func(t *testing.T) {
		other := &model.MembershipRecord{
			UID:           "member-3",
			RepositoryUID: "repo-2",
			Email:         "jane@research-lab.org",
			Source:        model.MemberSourceDirect,
		}
		_, _, err := repo.CreateMember(ctx, other)
		require.NoError(t, err)
	})

	t.Run("lookup by email", func(t *testing.T) {
		found, _, err := repo.GetMemberByEmail(ctx, "repo-1", " Jane@Research-Lab.org ")
		require.NoError(t, err)
		assert.Equal(t, "member-1", found.UID)
	})
}

func TestMockRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()

	member := &model.MembershipRecord{
		UID:           "member-1",
		RepositoryUID: "repo-1",
		Email:         "jane@research-lab.org",
		Source:        model.MemberSourceDirect,
		Status:        model.MemberStatusActive,
	}
	repo.AddMember(member)

	first, _, err := repo.GetMember(ctx, "repo-1", "member-1")
	require.NoError(t, err)
	first.Status = model.MemberStatusRemoved

	second, _, err := repo.GetMember(ctx, "repo-1", "member-1")
	require.NoError(t, err)
	assert.Equal(t, model.MemberStatusActive, second.Status,
		"mutating a returned record must not touch the store")
}

func TestMockRepository_GrowthCycles(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	start := time.Now().Truncate(24 * time.Hour)

	cycle := &model.GrowthCycle{
		RepositoryUID: "repo-1",
		StartedAt:     start,
		BaseSize:      10,
		Admissions:    1,
	}
	revision, err := repo.CreateGrowthCycle(ctx, cycle)
	require.NoError(t, err)

	t.Run("duplicate cycle conflicts", func(t *testing.T) {
		_, err := repo.CreateGrowthCycle(ctx, cycle)
		require.Error(t, err)
	})

	t.Run("read back and update", func(t *testing.T) {
		loaded, rev, err := repo.GetGrowthCycle(ctx, "repo-1", start)
		require.NoError(t, err)
		assert.Equal(t, revision, rev)
		assert.Equal(t, 1, loaded.Admissions)

		loaded.Admissions++
		_, err = repo.UpdateGrowthCycle(ctx, loaded, rev)
		require.NoError(t, err)
	})
}
