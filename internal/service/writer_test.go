// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/mock"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

func TestWriterOrchestrator_CreateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults applied on create", func(t *testing.T) {
		repo := mock.NewMockRepository()
		publisher := mock.NewMockMessagePublisher()
		writer := NewWriterOrchestrator(
			WithRepositoryReaderForWriter(repo),
			WithRepositoryWriter(repo),
			WithMemberReaderForWriter(repo),
			WithMemberWriter(repo),
			WithPublisher(publisher),
		)

		created, revision, err := writer.CreateRepository(ctx, &model.Repository{
			Name:     "climate-research",
			OwnerUID: "owner-1",
		})
		require.NoError(t, err)
		assert.NotZero(t, revision)
		assert.NotEmpty(t, created.UID)
		assert.Equal(t, model.RepositoryStatusActive, created.Status)
		assert.Equal(t, constants.DefaultAutoAddThreshold, created.Snowball.AutoAddThreshold)
		assert.Equal(t, constants.DefaultQualityThreshold, created.Settings.QualityThreshold)
		assert.NotEmpty(t, publisher.MessagesOnSubject(constants.IndexRepositorySubject))
	})

	t.Run("duplicate name per owner is a conflict", func(t *testing.T) {
		repo := mock.NewMockRepository()
		writer := NewWriterOrchestrator(
			WithRepositoryReaderForWriter(repo),
			WithRepositoryWriter(repo),
			WithMemberReaderForWriter(repo),
			WithMemberWriter(repo),
		)

		_, _, err := writer.CreateRepository(ctx, &model.Repository{
			Name:     "climate-research",
			OwnerUID: "owner-1",
		})
		require.NoError(t, err)

		_, _, err = writer.CreateRepository(ctx, &model.Repository{
			Name:     "Climate-Research",
			OwnerUID: "owner-1",
		})
		require.Error(t, err, "case variant of a taken name collides")

		_, _, err = writer.CreateRepository(ctx, &model.Repository{
			Name:     "climate-research",
			OwnerUID: "owner-2",
		})
		require.NoError(t, err, "other owners may reuse the name")
	})

	t.Run("invalid settings rejected", func(t *testing.T) {
		repo := mock.NewMockRepository()
		writer := NewWriterOrchestrator(
			WithRepositoryReaderForWriter(repo),
			WithRepositoryWriter(repo),
			WithMemberReaderForWriter(repo),
			WithMemberWriter(repo),
		)

		_, _, err := writer.CreateRepository(ctx, &model.Repository{
			Name:     "climate-research",
			OwnerUID: "owner-1",
			Settings: model.RepositorySettings{QualityThreshold: 1.5},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quality_threshold must be in [0,1]")
	})
}

func TestWriterOrchestrator_UpdateRepositorySettings(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, nil)

	_, revision, err := f.repo.GetRepository(ctx, f.repoUID)
	require.NoError(t, err)

	settings := model.RepositorySettings{
		QualityThreshold: 0.8,
		AutoApprove:      true,
	}
	snowball := model.SnowballSettings{
		Enabled:          true,
		AutoAddThreshold: 3,
	}

	updated, newRevision, err := f.writer.UpdateRepositorySettings(ctx, f.repoUID, settings, snowball, revision)
	require.NoError(t, err)
	assert.NotEqual(t, revision, newRevision)
	assert.Equal(t, 0.8, updated.Settings.QualityThreshold)
	assert.Equal(t, 3, updated.Snowball.AutoAddThreshold)
	assert.Equal(t, constants.DefaultMaxForwardDepth, updated.Snowball.MaxForwardDepth,
		"unset settings fall back to defaults")

	t.Run("stale revision is a conflict", func(t *testing.T) {
		_, _, err := f.writer.UpdateRepositorySettings(ctx, f.repoUID, settings, snowball, revision)
		require.Error(t, err)
	})
}

func TestWriterOrchestrator_ArchiveRepository(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, nil)

	_, revision, err := f.repo.GetRepository(ctx, f.repoUID)
	require.NoError(t, err)

	archived, newRevision, err := f.writer.ArchiveRepository(ctx, f.repoUID, revision)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived())

	// Archiving an archived repository is a no-op, not an error.
	again, _, err := f.writer.ArchiveRepository(ctx, f.repoUID, newRevision)
	require.NoError(t, err)
	assert.True(t, again.IsArchived())

	t.Run("archived repository cannot be modified", func(t *testing.T) {
		_, _, err := f.writer.UpdateRepositorySettings(ctx, f.repoUID,
			model.RepositorySettings{}, model.SnowballSettings{}, newRevision)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archived repository cannot be modified")
	})
}

func TestWriterOrchestrator_ArchivePreservesHistory(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, nil)
	member := f.addMember(t, "jane@research-lab.org")

	_, revision, err := f.repo.GetRepository(ctx, f.repoUID)
	require.NoError(t, err)
	_, _, err = f.writer.ArchiveRepository(ctx, f.repoUID, revision)
	require.NoError(t, err)

	// Members stay readable after archival.
	kept, _, err := f.repo.GetMember(ctx, f.repoUID, member.UID)
	require.NoError(t, err)
	assert.Equal(t, member.Email, kept.Email)
}

func TestNewTrackingCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := NewTrackingCode()
		assert.NotEmpty(t, code)
		_, dup := seen[code]
		assert.False(t, dup, "tracking codes must not repeat")
		seen[code] = struct{}{}
	}
}
