// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
)

// GrowthGovernor enforces the per-cycle admission cap. Each repository gets
// one counter per aligned cycle window; reservations are serialized with
// revision CAS so concurrent admissions cannot overshoot the cap.
type GrowthGovernor struct {
	cycles  port.GrowthCycleRepository
	members port.MemberReader
}

// NewGrowthGovernor creates a growth governor over the given ports.
func NewGrowthGovernor(cycles port.GrowthCycleRepository, members port.MemberReader) *GrowthGovernor {
	return &GrowthGovernor{
		cycles:  cycles,
		members: members,
	}
}

// ReserveAdmission reserves one admission slot in the current cycle.
// Returns false when the cap is exhausted; the caller defers the candidate
// to a later cycle instead of dropping it.
func (g *GrowthGovernor) ReserveAdmission(ctx context.Context, repository *model.Repository, now time.Time) (bool, error) {
	start := model.AlignCycleStart(now, repository.Snowball.GrowthCycle)

	var reserved bool
	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		cycle, revision, err := g.cycles.GetGrowthCycle(ctx, repository.UID, start)

		var notFound errs.NotFound
		if errors.As(err, &notFound) {
			baseSize, sizeErr := g.activeSize(ctx, repository.UID)
			if sizeErr != nil {
				return sizeErr
			}

			fresh := &model.GrowthCycle{
				RepositoryUID: repository.UID,
				StartedAt:     start,
				BaseSize:      baseSize,
				UpdatedAt:     now,
			}
			if fresh.Remaining(repository.Snowball.MaxGrowthRate) == 0 {
				reserved = false
				return nil
			}
			fresh.Admissions = 1

			if _, createErr := g.cycles.CreateGrowthCycle(ctx, fresh); createErr != nil {
				// Another worker opened the cycle first; retry against it.
				return createErr
			}
			reserved = true
			return nil
		}
		if err != nil {
			return err
		}

		if cycle.Remaining(repository.Snowball.MaxGrowthRate) == 0 {
			reserved = false
			return nil
		}

		cycle.Admissions++
		cycle.UpdatedAt = now
		if _, updateErr := g.cycles.UpdateGrowthCycle(ctx, cycle, revision); updateErr != nil {
			return updateErr
		}
		reserved = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if !reserved {
		slog.InfoContext(ctx, "admission deferred by growth cap",
			"repository_uid", repository.UID,
			"cycle_start", start,
		)
	}
	return reserved, nil
}

// ReleaseAdmission returns a reserved slot after a failed admission. Best
// effort: a lost release only makes the cap marginally more conservative.
func (g *GrowthGovernor) ReleaseAdmission(ctx context.Context, repository *model.Repository, now time.Time) {
	start := model.AlignCycleStart(now, repository.Snowball.GrowthCycle)

	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		cycle, revision, err := g.cycles.GetGrowthCycle(ctx, repository.UID, start)
		if err != nil {
			return err
		}
		if cycle.Admissions == 0 {
			return nil
		}
		cycle.Admissions--
		cycle.UpdatedAt = now
		_, err = g.cycles.UpdateGrowthCycle(ctx, cycle, revision)
		return err
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to release admission slot",
			"error", err,
			"repository_uid", repository.UID,
		)
	}
}

// activeSize counts members in a deliverable state, the denominator for
// the per-cycle cap.
func (g *GrowthGovernor) activeSize(ctx context.Context, repositoryUID string) (int, error) {
	members, err := g.members.ListMembers(ctx, repositoryUID)
	if err != nil {
		return 0, err
	}
	size := 0
	for _, member := range members {
		if member.Status == model.MemberStatusActive || member.Status == model.MemberStatusVerified {
			size++
		}
	}
	return size, nil
}
