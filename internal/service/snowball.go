// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/classifier"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/log"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
)

// SnowballEngine defines the interface for forward-event processing.
type SnowballEngine interface {
	// ProcessForward folds one forward event into the candidate aggregates
	// and admits every candidate that clears the threshold, quality bar,
	// and growth cap. One audit event is returned per candidate email.
	ProcessForward(ctx context.Context, event *model.ForwardEvent) ([]*model.SnowballEvent, error)

	// ApproveCandidate admits a pending candidate on the owner's explicit
	// approval, regardless of its forwarder count. The growth cap still
	// applies.
	ApproveCandidate(ctx context.Context, repositoryUID, email string) (*model.SnowballEvent, error)
}

// snowballEngineOption defines a function type for setting options on the engine
type snowballEngineOption func(*snowballEngine)

// WithEngineRepositoryReader sets the repository reader port
func WithEngineRepositoryReader(reader port.RepositoryReader) snowballEngineOption {
	return func(e *snowballEngine) {
		e.repositoryReader = reader
	}
}

// WithEngineMemberReader sets the member reader port
func WithEngineMemberReader(reader port.MemberReader) snowballEngineOption {
	return func(e *snowballEngine) {
		e.memberReader = reader
	}
}

// WithEngineMemberWriter sets the member writer port
func WithEngineMemberWriter(writer port.MemberWriter) snowballEngineOption {
	return func(e *snowballEngine) {
		e.memberWriter = writer
	}
}

// WithEngineCandidateRepository sets the candidate repository port
func WithEngineCandidateRepository(candidates port.CandidateRepository) snowballEngineOption {
	return func(e *snowballEngine) {
		e.candidates = candidates
	}
}

// WithEngineEventWriter sets the snowball event writer port
func WithEngineEventWriter(events port.SnowballEventWriter) snowballEngineOption {
	return func(e *snowballEngine) {
		e.events = events
	}
}

// WithEngineGovernor sets the growth governor
func WithEngineGovernor(governor *GrowthGovernor) snowballEngineOption {
	return func(e *snowballEngine) {
		e.governor = governor
	}
}

// WithEnginePublisher sets the message publisher
func WithEnginePublisher(publisher port.MessagePublisher) snowballEngineOption {
	return func(e *snowballEngine) {
		e.publisher = publisher
	}
}

// WithEngineClassifier sets the email classifier
func WithEngineClassifier(c *classifier.Classifier) snowballEngineOption {
	return func(e *snowballEngine) {
		e.classifier = c
	}
}

// snowballEngine is the orchestrator for the forward-event pipeline.
type snowballEngine struct {
	repositoryReader port.RepositoryReader
	memberReader     port.MemberReader
	memberWriter     port.MemberWriter
	candidates       port.CandidateRepository
	events           port.SnowballEventWriter
	governor         *GrowthGovernor
	publisher        port.MessagePublisher
	classifier       *classifier.Classifier
}

// NewSnowballEngine creates a new snowball engine using the option pattern
func NewSnowballEngine(opts ...snowballEngineOption) SnowballEngine {
	e := &snowballEngine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = classifier.NewClassifier(classifier.Config{})
	}
	return e
}

// ProcessForward folds one forward event into the candidate aggregates.
// Every candidate email yields exactly one audit event; nothing is dropped
// silently.
func (e *snowballEngine) ProcessForward(ctx context.Context, event *model.ForwardEvent) ([]*model.SnowballEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "executing process forward use case",
		"repository_uid", event.RepositoryUID,
		"source", redaction.RedactEmail(event.SourceEmail),
		"candidates", len(event.CandidateEmails),
		"depth", event.Depth,
	)

	repository, _, err := e.repositoryReader.GetRepository(ctx, event.RepositoryUID)
	if err != nil {
		return nil, err
	}
	if repository.IsArchived() {
		return nil, errs.NewValidation("archived repository does not accept forwards")
	}
	if !repository.Snowball.Enabled {
		return nil, errs.NewValidation("snowball is disabled for this repository")
	}

	source := model.NormalizeEmail(event.SourceEmail)
	sourceMember, _, err := e.memberReader.GetMemberByEmail(ctx, event.RepositoryUID, source)
	if err != nil {
		var notFound errs.NotFound
		if errors.As(err, &notFound) {
			return nil, errs.NewValidation("forward source is not a repository member")
		}
		return nil, err
	}
	if sourceMember.Status != model.MemberStatusActive && sourceMember.Status != model.MemberStatusVerified {
		return nil, errs.NewValidation("forward source is not an active member")
	}

	now := event.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	multiplier := e.currentMultiplier(ctx, repository)

	results := make([]*model.SnowballEvent, 0, len(event.CandidateEmails))
	for _, raw := range event.CandidateEmails {
		candidateEmail := model.NormalizeEmail(raw)

		// Self-referential and blank candidates never enter the pipeline,
		// but the forward is still audited rather than silently dropped.
		outcome := candidateOutcome{outcome: model.OutcomeSelfForward}
		if candidateEmail != "" && candidateEmail != source {
			outcome = e.processCandidate(ctx, repository, source, candidateEmail, event.Depth, now)
		}
		audit := &model.SnowballEvent{
			UID:            uuid.New().String(),
			RepositoryUID:  repository.UID,
			SourceEmail:    source,
			CandidateEmail: candidateEmail,
			Depth:          event.Depth,
			ForwarderCount: outcome.forwarderCount,
			Approved:       outcome.outcome == model.OutcomeAdmitted,
			Outcome:        outcome.outcome,
			Multiplier:     multiplier,
			CreatedAt:      now,
		}
		e.appendEvent(ctx, audit)
		results = append(results, audit)
	}

	return results, nil
}

// candidateOutcome carries the per-candidate decision out of the pipeline.
type candidateOutcome struct {
	outcome        model.SnowballOutcome
	forwarderCount int
}

// processCandidate runs the admission pipeline for one candidate email.
func (e *snowballEngine) processCandidate(ctx context.Context, repository *model.Repository, source, email string, depth int, now time.Time) candidateOutcome {
	if depth > repository.Snowball.MaxForwardDepth {
		return candidateOutcome{outcome: model.OutcomeDepthExceeded}
	}

	classification := e.classifier.Classify(email)
	if !classification.Eligible() {
		return candidateOutcome{outcome: model.OutcomeTrustRejected}
	}
	if !repository.DomainAllowed(classification.Domain) {
		return candidateOutcome{outcome: model.OutcomeTrustRejected}
	}
	if classification.TrustScore < repository.Settings.QualityThreshold {
		return candidateOutcome{outcome: model.OutcomeQualityBelowBar}
	}

	if _, _, err := e.memberReader.GetMemberByEmail(ctx, repository.UID, email); err == nil {
		return candidateOutcome{outcome: model.OutcomeAlreadyMember}
	}

	candidate, err := e.recordForward(ctx, repository.UID, email, classification.Domain, classification.TrustScore, source, depth, now)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record forward for candidate",
			"error", err,
			"repository_uid", repository.UID,
			"candidate", redaction.RedactEmail(email),
		)
		return candidateOutcome{outcome: model.OutcomeBelowThreshold}
	}

	if candidate.ForwarderCount < repository.Snowball.AutoAddThreshold {
		return candidateOutcome{outcome: model.OutcomeBelowThreshold, forwarderCount: candidate.ForwarderCount}
	}
	if !repository.Settings.AutoApprove {
		// Threshold reached but the owner reviews admissions by hand;
		// the candidate stays pending until ApproveCandidate.
		return candidateOutcome{outcome: model.OutcomeBelowThreshold, forwarderCount: candidate.ForwarderCount}
	}

	outcome := e.admitCandidate(ctx, repository, candidate, now)
	return candidateOutcome{outcome: outcome, forwarderCount: candidate.ForwarderCount}
}

// recordForward upserts the candidate aggregate with CAS retry and folds
// the forward observation into it.
func (e *snowballEngine) recordForward(ctx context.Context, repositoryUID, email, domain string, trustScore float64, source string, depth int, now time.Time) (*model.ForwardCandidate, error) {
	var result *model.ForwardCandidate
	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		candidate, revision, err := e.candidates.GetCandidate(ctx, repositoryUID, email)

		var notFound errs.NotFound
		if errors.As(err, &notFound) {
			fresh := model.NewForwardCandidate(repositoryUID, email, domain, trustScore, source, depth, now)
			if _, createErr := e.candidates.CreateCandidate(ctx, fresh); createErr != nil {
				// Lost the create race; retry folds into the winner.
				return createErr
			}
			result = fresh
			return nil
		}
		if err != nil {
			return err
		}

		candidate.RecordForward(source, depth, now)
		if _, updateErr := e.candidates.UpdateCandidate(ctx, candidate, revision); updateErr != nil {
			return updateErr
		}
		result = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// admitCandidate performs the atomic admission: growth-cap reservation,
// member creation under the uniqueness constraint, candidate cleanup. The
// member create is the final arbiter under concurrent admissions.
func (e *snowballEngine) admitCandidate(ctx context.Context, repository *model.Repository, candidate *model.ForwardCandidate, now time.Time) model.SnowballOutcome {
	reserved, err := e.governor.ReserveAdmission(ctx, repository, now)
	if err != nil {
		slog.ErrorContext(ctx, "growth cap reservation failed",
			"error", err,
			"repository_uid", repository.UID,
		)
		return model.OutcomeGrowthDeferred
	}
	if !reserved {
		return model.OutcomeGrowthDeferred
	}

	member := &model.MembershipRecord{
		UID:           uuid.New().String(),
		RepositoryUID: repository.UID,
		Email:         candidate.Email,
		Domain:        candidate.Domain,
		Source:        model.MemberSourceSnowball,
		Status:        model.MemberStatusActive,
		TrustScore:    candidate.TrustScore,
		Permissions: model.MemberPermissions{
			ReceiveDigest:   true,
			ReceiveSnowball: true,
		},
		AddedBy:   candidate.Forwarders[0],
		AddedAt:   now,
		UpdatedAt: now,
	}

	created, _, err := e.memberWriter.CreateMember(ctx, member)
	if err != nil {
		e.governor.ReleaseAdmission(ctx, repository, now)

		var conflict errs.Conflict
		if errors.As(err, &conflict) {
			// Another worker admitted the same candidate first. Clean up
			// the aggregate and report the settled state.
			if delErr := e.candidates.DeleteCandidate(ctx, repository.UID, candidate.Email); delErr != nil {
				slog.WarnContext(ctx, "failed to clean up candidate after losing admission race", "error", delErr)
			}
			return model.OutcomeAlreadyMember
		}

		slog.ErrorContext(ctx, "failed to create member for admitted candidate",
			"error", err,
			"repository_uid", repository.UID,
			"candidate", redaction.RedactEmail(candidate.Email),
			log.PriorityCritical(),
		)
		return model.OutcomeGrowthDeferred
	}

	if err := e.candidates.DeleteCandidate(ctx, repository.UID, candidate.Email); err != nil {
		slog.WarnContext(ctx, "failed to delete admitted candidate", "error", err)
	}

	slog.InfoContext(ctx, "candidate admitted",
		"repository_uid", repository.UID,
		"member_uid", created.UID,
		"forwarder_count", candidate.ForwarderCount,
	)

	e.publishMember(ctx, created)

	return model.OutcomeAdmitted
}

// ApproveCandidate admits a pending candidate on explicit owner approval.
func (e *snowballEngine) ApproveCandidate(ctx context.Context, repositoryUID, email string) (*model.SnowballEvent, error) {
	repository, _, err := e.repositoryReader.GetRepository(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	if repository.IsArchived() {
		return nil, errs.NewValidation("archived repository does not accept admissions")
	}

	candidate, _, err := e.candidates.GetCandidate(ctx, repositoryUID, email)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	outcome := e.admitCandidate(ctx, repository, candidate, now)

	audit := &model.SnowballEvent{
		UID:            uuid.New().String(),
		RepositoryUID:  repositoryUID,
		SourceEmail:    candidate.Forwarders[0],
		CandidateEmail: candidate.Email,
		Depth:          candidate.Depth,
		ForwarderCount: candidate.ForwarderCount,
		Approved:       outcome == model.OutcomeAdmitted,
		Outcome:        outcome,
		Multiplier:     e.currentMultiplier(ctx, repository),
		CreatedAt:      now,
	}
	e.appendEvent(ctx, audit)

	return audit, nil
}

// currentMultiplier computes activeMembers / originalImportCount, zero
// when no original import has been recorded.
func (e *snowballEngine) currentMultiplier(ctx context.Context, repository *model.Repository) float64 {
	if repository.Stats.OriginalImportCount == 0 {
		return 0
	}

	members, err := e.memberReader.ListMembers(ctx, repository.UID)
	if err != nil {
		slog.WarnContext(ctx, "failed to compute snowball multiplier", "error", err)
		return 0
	}

	active := 0
	for _, member := range members {
		if member.Status == model.MemberStatusActive || member.Status == model.MemberStatusVerified {
			active++
		}
	}
	return float64(active) / float64(repository.Stats.OriginalImportCount)
}

// appendEvent persists and publishes one audit event. Failures are logged,
// never propagated: the admission decision already happened.
func (e *snowballEngine) appendEvent(ctx context.Context, event *model.SnowballEvent) {
	if err := e.events.CreateSnowballEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to persist snowball event",
			"error", err,
			"event_uid", event.UID,
		)
	}
	if e.publisher != nil {
		if err := e.publisher.Event(ctx, constants.SnowballEventSubject, model.NewSnowballEventMessage(event)); err != nil {
			slog.ErrorContext(ctx, "failed to publish snowball event", "error", err)
		}
	}
}

// publishMember publishes an indexer message for a member admitted through
// the snowball path.
func (e *snowballEngine) publishMember(ctx context.Context, member *model.MembershipRecord) {
	if e.publisher == nil {
		return
	}
	message := &model.IndexerMessage{Action: model.ActionCreated, Tags: member.IndexTags()}
	built, err := message.Build(ctx, member)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build member indexer message", "error", err)
		return
	}
	if err := e.publisher.Indexer(ctx, constants.IndexMemberSubject, built); err != nil {
		slog.ErrorContext(ctx, "failed to publish member indexer message", "error", err)
	}
}
