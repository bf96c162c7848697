// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/log"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
)

// EngagementKind names one engagement counter on a membership record.
type EngagementKind string

// Engagement kinds
const (
	EngagementOpen    EngagementKind = "open"
	EngagementClick   EngagementKind = "click"
	EngagementReply   EngagementKind = "reply"
	EngagementForward EngagementKind = "forward"
)

// AddMember admits one address through the direct-add path: classification
// gate, repository domain policy, suppression check, contributor cap, then
// atomic creation under the email uniqueness constraint.
func (o *writerOrchestrator) AddMember(ctx context.Context, member *model.MembershipRecord) (*model.MembershipRecord, uint64, error) {
	slog.DebugContext(ctx, "executing add member use case",
		"repository_uid", member.RepositoryUID,
		"email", redaction.RedactEmail(member.Email),
		"source", member.Source,
	)

	member.Email = model.NormalizeEmail(member.Email)
	if err := member.ValidateBasicFields(); err != nil {
		return nil, 0, err
	}

	repository, _, err := o.repositoryReader.GetRepository(ctx, member.RepositoryUID)
	if err != nil {
		return nil, 0, err
	}
	if repository.IsArchived() {
		return nil, 0, errs.NewValidation("archived repository does not accept new members")
	}

	classification := o.classifier.Classify(member.Email)
	if !classification.Eligible() {
		return nil, 0, errs.NewValidation(classification.RejectionReason)
	}
	member.Domain = classification.Domain
	member.TrustScore = classification.TrustScore

	if !repository.DomainAllowed(member.Domain) {
		return nil, 0, errs.NewValidation("email domain is not allowed by repository policy")
	}

	// Opted-out, bounced, and removed records suppress re-adds.
	existing, _, err := o.memberReader.GetMemberByEmail(ctx, member.RepositoryUID, member.Email)
	if err == nil {
		if existing.BlocksReadd() {
			return nil, 0, errs.NewConflict("address previously opted out, bounced, or was removed")
		}
		return nil, 0, errs.NewConflict("member already exists")
	}
	var notFound errs.NotFound
	if !errors.As(err, &notFound) {
		return nil, 0, err
	}

	if limit := repository.Settings.MaxEmailsPerContributor; limit > 0 && member.AddedBy != "" {
		count, err := o.memberReader.CountMembersByContributor(ctx, member.RepositoryUID, member.AddedBy)
		if err != nil {
			return nil, 0, err
		}
		if count >= limit {
			return nil, 0, errs.NewValidation("contributor has reached the per-contributor email limit")
		}
	}

	now := time.Now()
	if member.UID == "" {
		member.UID = uuid.New().String()
	}
	if member.Status == "" {
		member.Status = model.MemberStatusActive
	}
	member.Permissions.ReceiveDigest = true
	member.Permissions.ReceiveSnowball = true
	member.AddedAt = now
	member.UpdatedAt = now

	created, revision, err := o.memberWriter.CreateMember(ctx, member)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create member",
			"error", err,
			"repository_uid", member.RepositoryUID,
			"email", redaction.RedactEmail(member.Email),
		)
		return nil, 0, err
	}

	slog.DebugContext(ctx, "member created successfully",
		"member_uid", created.UID,
		"revision", revision,
	)

	o.publishMemberIndexer(ctx, model.ActionCreated, created)

	return created, revision, nil
}

// VerifyMember marks an active member's address ownership as confirmed
func (o *writerOrchestrator) VerifyMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, error) {
	return o.transitionMember(ctx, repositoryUID, uid, model.MemberStatusVerified)
}

// RemoveMember administratively removes a member. The record is retained
// so the address stays suppressed.
func (o *writerOrchestrator) RemoveMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, error) {
	return o.transitionMember(ctx, repositoryUID, uid, model.MemberStatusRemoved)
}

// OptOutMember unsubscribes a member by email. Opt-out is keyed by address
// because it originates from unsubscribe links, not the management API.
func (o *writerOrchestrator) OptOutMember(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, error) {
	member, _, err := o.memberReader.GetMemberByEmail(ctx, repositoryUID, email)
	if err != nil {
		return nil, err
	}
	return o.transitionMember(ctx, repositoryUID, member.UID, model.MemberStatusOptedOut)
}

// ReinstateMember returns a removed member to active. This is the explicit
// owner override; every automated path treats removed as terminal.
func (o *writerOrchestrator) ReinstateMember(ctx context.Context, repositoryUID, uid string) (*model.MembershipRecord, error) {
	var reinstated *model.MembershipRecord
	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		member, revision, err := o.memberReader.GetMember(ctx, repositoryUID, uid)
		if err != nil {
			return err
		}
		if err := member.Reinstate(time.Now()); err != nil {
			return err
		}
		updated, _, err := o.memberWriter.UpdateMember(ctx, member, revision)
		if err != nil {
			return err
		}
		reinstated = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "member reinstated",
		"repository_uid", repositoryUID,
		"member_uid", uid,
	)
	o.publishMemberIndexer(ctx, model.ActionUpdated, reinstated)

	return reinstated, nil
}

// RecordEngagement increments one engagement counter for a member
func (o *writerOrchestrator) RecordEngagement(ctx context.Context, repositoryUID, uid string, kind EngagementKind) (*model.MembershipRecord, error) {
	var updated *model.MembershipRecord
	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		member, revision, err := o.memberReader.GetMember(ctx, repositoryUID, uid)
		if err != nil {
			return err
		}

		now := time.Now()
		switch kind {
		case EngagementOpen:
			member.Engagement.Opens++
		case EngagementClick:
			member.Engagement.Clicks++
		case EngagementReply:
			member.Engagement.Replies++
		case EngagementForward:
			member.Engagement.Forwards++
		default:
			return errs.NewValidation("unknown engagement kind")
		}
		member.Engagement.LastEngagementAt = &now
		member.UpdatedAt = now

		result, _, err := o.memberWriter.UpdateMember(ctx, member, revision)
		if err != nil {
			return err
		}
		updated = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordBounce folds one delivery bounce into a member record. Hard
// bounces count toward the automatic bounce transition; soft bounces are
// logged only.
func (o *writerOrchestrator) RecordBounce(ctx context.Context, repositoryUID, email string, hard bool) (*model.MembershipRecord, error) {
	if !hard {
		slog.DebugContext(ctx, "soft bounce recorded without counter",
			"repository_uid", repositoryUID,
			"email", redaction.RedactEmail(email),
		)
		member, _, err := o.memberReader.GetMemberByEmail(ctx, repositoryUID, email)
		return member, err
	}

	repository, _, err := o.repositoryReader.GetRepository(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	threshold := repository.Settings.HardBounceThreshold
	if threshold == 0 {
		threshold = constants.DefaultHardBounceThreshold
	}

	var updated *model.MembershipRecord
	err = utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		member, revision, err := o.memberReader.GetMemberByEmail(ctx, repositoryUID, email)
		if err != nil {
			return err
		}

		now := time.Now()
		member.Engagement.HardBounces++
		member.UpdatedAt = now

		if member.Engagement.HardBounces >= threshold &&
			member.Status.CanTransitionTo(model.MemberStatusBounced) {
			if err := member.Transition(model.MemberStatusBounced, now); err != nil {
				return err
			}
			slog.InfoContext(ctx, "member transitioned to bounced",
				"repository_uid", repositoryUID,
				"member_uid", member.UID,
				"hard_bounces", member.Engagement.HardBounces,
			)
		}

		result, _, err := o.memberWriter.UpdateMember(ctx, member, revision)
		if err != nil {
			return err
		}
		updated = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.publishMemberIndexer(ctx, model.ActionUpdated, updated)
	return updated, nil
}

// RecordComplaint folds one spam complaint into a member record. Crossing
// the complaint threshold forces an opt-out regardless of member
// preference, stamping the suppression timestamp and dropping consent.
func (o *writerOrchestrator) RecordComplaint(ctx context.Context, repositoryUID, email string) (*model.MembershipRecord, error) {
	repository, _, err := o.repositoryReader.GetRepository(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	threshold := repository.Settings.ComplaintThreshold
	if threshold == 0 {
		threshold = constants.DefaultComplaintThreshold
	}

	var updated *model.MembershipRecord
	err = utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		member, revision, err := o.memberReader.GetMemberByEmail(ctx, repositoryUID, email)
		if err != nil {
			return err
		}

		now := time.Now()
		member.Engagement.Complaints++
		member.UpdatedAt = now

		if member.Engagement.Complaints >= threshold &&
			member.Status.CanTransitionTo(model.MemberStatusOptedOut) {
			if err := member.Transition(model.MemberStatusOptedOut, now); err != nil {
				return err
			}
			slog.WarnContext(ctx, "member opted out after complaint threshold",
				"repository_uid", repositoryUID,
				"member_uid", member.UID,
				"complaints", member.Engagement.Complaints,
				"opted_out_at", log.LogOptionalTime(member.OptedOutAt),
			)
		}

		result, _, err := o.memberWriter.UpdateMember(ctx, member, revision)
		if err != nil {
			return err
		}
		updated = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.publishMemberIndexer(ctx, model.ActionUpdated, updated)
	return updated, nil
}

// transitionMember applies a state-machine transition with CAS retry and
// publishes the resulting record.
func (o *writerOrchestrator) transitionMember(ctx context.Context, repositoryUID, uid string, next model.MemberStatus) (*model.MembershipRecord, error) {
	var transitioned *model.MembershipRecord
	err := utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		member, revision, err := o.memberReader.GetMember(ctx, repositoryUID, uid)
		if err != nil {
			return err
		}
		if err := member.Transition(next, time.Now()); err != nil {
			return err
		}
		updated, _, err := o.memberWriter.UpdateMember(ctx, member, revision)
		if err != nil {
			return err
		}
		transitioned = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "member transitioned",
		"repository_uid", repositoryUID,
		"member_uid", uid,
		"status", next,
	)
	o.publishMemberIndexer(ctx, model.ActionUpdated, transitioned)

	return transitioned, nil
}
