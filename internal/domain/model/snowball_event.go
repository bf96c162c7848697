// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"time"
)

// SnowballOutcome classifies the decision recorded by a snowball event.
type SnowballOutcome string

// Snowball event outcomes
const (
	// OutcomeAdmitted is a candidate admitted to active membership.
	OutcomeAdmitted SnowballOutcome = "admitted"
	// OutcomeBelowThreshold is a counted forward below the admission threshold.
	OutcomeBelowThreshold SnowballOutcome = "below_threshold"
	// OutcomeGrowthDeferred is a threshold-reaching candidate deferred by the growth cap.
	OutcomeGrowthDeferred SnowballOutcome = "growth_deferred"
	// OutcomeTrustRejected is a candidate discarded for a disposable domain or role address.
	OutcomeTrustRejected SnowballOutcome = "trust_rejected"
	// OutcomeDepthExceeded is a forward dropped for exceeding the hop limit.
	OutcomeDepthExceeded SnowballOutcome = "depth_exceeded"
	// OutcomeAlreadyMember is a forward naming an address that already has a record.
	OutcomeAlreadyMember SnowballOutcome = "already_member"
	// OutcomeQualityBelowBar is a candidate whose trust score is under the repository's quality threshold.
	OutcomeQualityBelowBar SnowballOutcome = "quality_below_bar"
	// OutcomeSelfForward is a candidate naming the forwarding member itself or an empty address.
	OutcomeSelfForward SnowballOutcome = "self_forward"
)

// SnowballEvent is the immutable audit record of one forward observation
// for one candidate. Append-only; the source of truth for analytics, karma
// awards, and abuse investigation. Nothing in the engine drops a forward
// silently: every candidate in every forward event yields one of these.
type SnowballEvent struct {
	UID            string `json:"uid"`
	RepositoryUID  string `json:"repository_uid"`
	SourceEmail    string `json:"source_email"`
	CandidateEmail string `json:"candidate_email"`

	Depth          int             `json:"depth"`
	ForwarderCount int             `json:"forwarder_count"`
	Approved       bool            `json:"approved"`
	Outcome        SnowballOutcome `json:"outcome"`

	// Multiplier is currentActiveCount / originalImportCount at decision
	// time; zero when no original import has been recorded yet.
	Multiplier float64 `json:"multiplier"`

	CreatedAt time.Time `json:"created_at"`
}

// IndexTags generates a consistent set of tags for the event.
func (e *SnowballEvent) IndexTags() []string {
	var tags []string

	if e == nil {
		return nil
	}

	if e.UID != "" {
		tags = append(tags, e.UID)
	}
	if e.RepositoryUID != "" {
		tags = append(tags, fmt.Sprintf("repository_uid:%s", e.RepositoryUID))
	}
	if e.Outcome != "" {
		tags = append(tags, fmt.Sprintf("outcome:%s", e.Outcome))
	}
	tags = append(tags, fmt.Sprintf("approved:%t", e.Approved))

	return tags
}
