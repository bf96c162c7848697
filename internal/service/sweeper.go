// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"
)

// Sweeper expires pending candidates that outlived their repository's
// retention window without reaching the admission threshold.
type Sweeper struct {
	repositoryReader port.RepositoryReader
	candidates       port.CandidateRepository
}

// NewSweeper creates a new candidate retention sweeper.
func NewSweeper(repositoryReader port.RepositoryReader, candidates port.CandidateRepository) *Sweeper {
	return &Sweeper{
		repositoryReader: repositoryReader,
		candidates:       candidates,
	}
}

// Sweep removes every expired candidate aggregate. Returns the number of
// candidates deleted. Deletion is idempotent, so overlapping sweeps are
// harmless.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.candidates.ListAllCandidates(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	retentions := make(map[string]time.Duration)
	swept := 0

	for _, candidate := range candidates {
		retention, ok := retentions[candidate.RepositoryUID]
		if !ok {
			repository, _, err := s.repositoryReader.GetRepository(ctx, candidate.RepositoryUID)
			if err != nil {
				var notFound errs.NotFound
				if errors.As(err, &notFound) {
					// Orphaned candidate; use the zero retention so the
					// model default applies.
					retentions[candidate.RepositoryUID] = 0
					retention = 0
				} else {
					slog.WarnContext(ctx, "sweep skipping repository",
						"error", err,
						"repository_uid", candidate.RepositoryUID,
					)
					continue
				}
			} else {
				retention = repository.Snowball.CandidateRetention
				retentions[candidate.RepositoryUID] = retention
			}
		}

		if !candidate.Expired(retention, now) {
			continue
		}

		if err := s.candidates.DeleteCandidate(ctx, candidate.RepositoryUID, candidate.Email); err != nil {
			slog.WarnContext(ctx, "failed to sweep candidate",
				"error", err,
				"repository_uid", candidate.RepositoryUID,
				"candidate", redaction.RedactEmail(candidate.Email),
			)
			continue
		}
		swept++
	}

	if swept > 0 {
		slog.InfoContext(ctx, "candidate sweep finished",
			"swept", swept,
			"scanned", len(candidates),
		)
	}
	return swept, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "candidate sweep failed", "error", err)
			}
		}
	}
}
