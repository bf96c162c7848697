// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/classifier"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/infrastructure/mock"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/ingest"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

// importerFixture wires an importer over the mock repository with one
// active repository.
type importerFixture struct {
	repo      *mock.MockRepository
	publisher *mock.MockMessagePublisher
	importer  *Importer
	repoUID   string
}

func newImporterFixture(t *testing.T, mutate func(*model.Repository)) *importerFixture {
	t.Helper()

	repo := mock.NewMockRepository()
	publisher := mock.NewMockMessagePublisher()

	repository := &model.Repository{
		UID:      "repo-1",
		Name:     "climate-research",
		OwnerUID: "owner-1",
	}
	repository.ApplyDefaults()
	if mutate != nil {
		mutate(repository)
	}
	repo.AddRepository(repository)

	validator := ingest.NewValidator(classifier.NewClassifier(classifier.Config{}))
	importer := NewImporter(
		WithImporterRepositoryReader(repo),
		WithImporterRepositoryWriter(repo),
		WithImporterImportReader(repo),
		WithImporterImportWriter(repo),
		WithImporterMemberReader(repo),
		WithImporterMemberWriter(repo),
		WithImporterPublisher(publisher),
		WithImporterValidator(validator),
	)

	return &importerFixture{
		repo:      repo,
		publisher: publisher,
		importer:  importer,
		repoUID:   repository.UID,
	}
}

func csvOf(emails ...string) []byte {
	var sb strings.Builder
	sb.WriteString("email,name\n")
	for i, email := range emails {
		fmt.Fprintf(&sb, "%s,Member %d\n", email, i)
	}
	return []byte(sb.String())
}

func TestImporter_StartImport(t *testing.T) {
	ctx := context.Background()

	t.Run("successful import admits all rows", func(t *testing.T) {
		f := newImporterFixture(t, nil)

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org", "b@research-lab.org", "c@research-lab.org"))
		require.NoError(t, err)
		assert.NotEmpty(t, record.TrackingCode)
		assert.Equal(t, 3, record.ValidEmails)

		f.importer.Wait()

		final, _, err := f.repo.GetImport(ctx, record.UID)
		require.NoError(t, err)
		assert.Equal(t, model.ImportStatusCompleted, final.Status)
		assert.Equal(t, 3, final.ImportedMembers)
		assert.Equal(t, 0, final.SkippedExisting)
		assert.Equal(t, 3, f.repo.GetMemberCount())

		member, _, err := f.repo.GetMemberByEmail(ctx, f.repoUID, "a@research-lab.org")
		require.NoError(t, err)
		assert.Equal(t, model.MemberSourceCSVImport, member.Source)
		assert.Equal(t, "owner-1", member.AddedBy)

		// The first completed import pins the multiplier denominator.
		repository, _, err := f.repo.GetRepository(ctx, f.repoUID)
		require.NoError(t, err)
		assert.Equal(t, 3, repository.Stats.OriginalImportCount)

		assert.NotEmpty(t, f.publisher.MessagesOnSubject(constants.ImportStatusSubject))
	})

	t.Run("existing members are skipped, not duplicated", func(t *testing.T) {
		f := newImporterFixture(t, nil)
		f.repo.AddMember(&model.MembershipRecord{
			UID:           "member-1",
			RepositoryUID: f.repoUID,
			Email:         "a@research-lab.org",
			Source:        model.MemberSourceDirect,
			Status:        model.MemberStatusActive,
		})

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org", "b@research-lab.org"))
		require.NoError(t, err)

		f.importer.Wait()

		final, _, err := f.repo.GetImport(ctx, record.UID)
		require.NoError(t, err)
		assert.Equal(t, 1, final.ImportedMembers)
		assert.Equal(t, 1, final.SkippedExisting)
		assert.Equal(t, 2, f.repo.GetMemberCount())
	})

	t.Run("suppressed address stays suppressed across imports", func(t *testing.T) {
		f := newImporterFixture(t, nil)
		f.repo.AddMember(&model.MembershipRecord{
			UID:           "member-1",
			RepositoryUID: f.repoUID,
			Email:         "quitter@research-lab.org",
			Source:        model.MemberSourceDirect,
			Status:        model.MemberStatusOptedOut,
		})

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("quitter@research-lab.org"))
		require.NoError(t, err)

		f.importer.Wait()

		final, _, err := f.repo.GetImport(ctx, record.UID)
		require.NoError(t, err)
		assert.Equal(t, 0, final.ImportedMembers)
		assert.Equal(t, 1, final.SkippedExisting)

		kept, _, err := f.repo.GetMemberByEmail(ctx, f.repoUID, "quitter@research-lab.org")
		require.NoError(t, err)
		assert.Equal(t, model.MemberStatusOptedOut, kept.Status)
	})

	t.Run("original import count is pinned once", func(t *testing.T) {
		f := newImporterFixture(t, nil)

		_, err := f.importer.StartImport(ctx, f.repoUID, "first.csv", "owner-1",
			csvOf("a@research-lab.org", "b@research-lab.org"))
		require.NoError(t, err)
		f.importer.Wait()

		_, err = f.importer.StartImport(ctx, f.repoUID, "second.csv", "owner-1",
			csvOf("c@research-lab.org"))
		require.NoError(t, err)
		f.importer.Wait()

		repository, _, err := f.repo.GetRepository(ctx, f.repoUID)
		require.NoError(t, err)
		assert.Equal(t, 2, repository.Stats.OriginalImportCount,
			"later imports never move the denominator")
	})

	t.Run("structural validation failure is audited", func(t *testing.T) {
		f := newImporterFixture(t, nil)

		record, err := f.importer.StartImport(ctx, f.repoUID, "broken.csv", "owner-1",
			[]byte("name,organization\nAlice,Lab\n"))
		require.Error(t, err)
		require.NotNil(t, record, "a failed upload still leaves an audit record")
		assert.Equal(t, model.ImportStatusFailed, record.Status)
		assert.NotEmpty(t, record.ErrorLog)
		assert.Equal(t, 0, f.repo.GetMemberCount())
	})

	t.Run("archived repository rejects imports", func(t *testing.T) {
		f := newImporterFixture(t, func(r *model.Repository) {
			r.Status = model.RepositoryStatusArchived
		})

		_, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "archived repository")
	})

	t.Run("domain policy rejections are logged", func(t *testing.T) {
		f := newImporterFixture(t, func(r *model.Repository) {
			r.Settings.AllowedDomains = []string{"research-lab.org"}
		})

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org", "outsider@elsewhere.org"))
		require.NoError(t, err)

		f.importer.Wait()

		final, _, err := f.repo.GetImport(ctx, record.UID)
		require.NoError(t, err)
		assert.Equal(t, 1, final.ImportedMembers)
		assert.Equal(t, 1, f.repo.GetMemberCount())

		var rejected bool
		for _, entry := range final.ErrorLog {
			if strings.Contains(entry, "rejected by repository policy") {
				rejected = true
			}
		}
		assert.True(t, rejected)
	})

	t.Run("per-contributor limit caps the import", func(t *testing.T) {
		f := newImporterFixture(t, func(r *model.Repository) {
			r.Settings.MaxEmailsPerContributor = 2
		})

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org", "b@research-lab.org", "c@research-lab.org", "d@research-lab.org"))
		require.NoError(t, err)

		f.importer.Wait()

		final, _, err := f.repo.GetImport(ctx, record.UID)
		require.NoError(t, err)
		assert.Equal(t, 2, final.ImportedMembers)
		assert.Equal(t, 2, f.repo.GetMemberCount())

		var limited bool
		for _, entry := range final.ErrorLog {
			if strings.Contains(entry, "per-contributor email limit") {
				limited = true
			}
		}
		assert.True(t, limited)
	})

	t.Run("per-contributor limit counts pre-existing members", func(t *testing.T) {
		f := newImporterFixture(t, func(r *model.Repository) {
			r.Settings.MaxEmailsPerContributor = 2
		})
		f.repo.AddMember(&model.MembershipRecord{
			UID:           "member-1",
			RepositoryUID: f.repoUID,
			Email:         "already@research-lab.org",
			Source:        model.MemberSourceDirect,
			Status:        model.MemberStatusActive,
			AddedBy:       "owner-1",
		})

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org", "b@research-lab.org"))
		require.NoError(t, err)

		f.importer.Wait()

		final, _, err := f.repo.GetImport(ctx, record.UID)
		require.NoError(t, err)
		assert.Equal(t, 1, final.ImportedMembers,
			"the uploader already holds one of their two slots")
		assert.Equal(t, 2, f.repo.GetMemberCount())
	})
}

func TestImporter_CancelImport(t *testing.T) {
	ctx := context.Background()

	t.Run("finished imports cannot be cancelled", func(t *testing.T) {
		f := newImporterFixture(t, nil)

		record, err := f.importer.StartImport(ctx, f.repoUID, "members.csv", "owner-1",
			csvOf("a@research-lab.org"))
		require.NoError(t, err)
		f.importer.Wait()

		_, err = f.importer.CancelImport(ctx, record.UID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "import has already finished")
	})

	t.Run("unknown import", func(t *testing.T) {
		f := newImporterFixture(t, nil)
		_, err := f.importer.CancelImport(ctx, "no-such-import")
		require.Error(t, err)
	})
}
