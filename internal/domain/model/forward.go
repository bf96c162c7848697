// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
)

// ForwardEvent is one detected email forward delivered by the inbound
// email/webhook layer: an existing member shared repository content with
// one or more new addresses.
type ForwardEvent struct {
	RepositoryUID   string    `json:"repository_uid"`
	SourceEmail     string    `json:"source_email"`
	CandidateEmails []string  `json:"candidate_emails"`
	Depth           int       `json:"depth"` // Forward hop count, 1 for a first-hand forward
	ReceivedAt      time.Time `json:"received_at"`
}

// Validate checks the structural requirements of an inbound forward event.
func (e *ForwardEvent) Validate() error {
	if e.RepositoryUID == "" {
		return errors.NewValidation("repository_uid is required")
	}
	if NormalizeEmail(e.SourceEmail) == "" {
		return errors.NewValidation("source_email is required")
	}
	if len(e.CandidateEmails) == 0 {
		return errors.NewValidation("candidate_emails must not be empty")
	}
	if e.Depth < 1 {
		return errors.NewValidation("depth must be at least 1")
	}
	return nil
}

// ForwardCandidate is the ephemeral aggregate for one (repository,
// candidate email) pair while it is pending admission. It is destroyed on
// admission or after the retention window expires.
//
// Candidates are msgpack-encoded in the KV store: they are small, high
// churn, and never served to external consumers.
type ForwardCandidate struct {
	RepositoryUID string  `json:"repository_uid" msgpack:"repository_uid"`
	Email         string  `json:"email" msgpack:"email"` // Normalized
	Domain        string  `json:"domain" msgpack:"domain"`
	TrustScore    float64 `json:"trust_score" msgpack:"trust_score"`

	// Forwarders is the bounded list of distinct forwarder addresses that
	// named this candidate. ForwarderCount is authoritative; the list is
	// capped at constants.MaxForwardersTracked.
	Forwarders     []string `json:"forwarders" msgpack:"forwarders"`
	ForwarderCount int      `json:"forwarder_count" msgpack:"forwarder_count"`

	Depth int `json:"depth" msgpack:"depth"` // Minimum hop count observed

	FirstSeenAt time.Time `json:"first_seen_at" msgpack:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at" msgpack:"last_seen_at"`
}

// NewForwardCandidate builds a fresh candidate aggregate for a first
// forward observation.
func NewForwardCandidate(repositoryUID, email, domain string, trustScore float64, source string, depth int, now time.Time) *ForwardCandidate {
	return &ForwardCandidate{
		RepositoryUID:  repositoryUID,
		Email:          NormalizeEmail(email),
		Domain:         domain,
		TrustScore:     trustScore,
		Forwarders:     []string{NormalizeEmail(source)},
		ForwarderCount: 1,
		Depth:          depth,
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}
}

// HasForwarder reports whether the given source has already been counted
// for this candidate.
func (c *ForwardCandidate) HasForwarder(source string) bool {
	source = NormalizeEmail(source)
	for _, f := range c.Forwarders {
		if f == source {
			return true
		}
	}
	return false
}

// RecordForward folds one more forward observation into the aggregate.
// The distinct-forwarder count increments only for a source not seen
// before; repeat forwards from the same source only refresh LastSeenAt.
// Returns true when the forwarder was newly counted.
func (c *ForwardCandidate) RecordForward(source string, depth int, now time.Time) bool {
	c.LastSeenAt = now
	if depth < c.Depth {
		c.Depth = depth
	}

	if c.HasForwarder(source) {
		return false
	}
	if len(c.Forwarders) >= constants.MaxForwardersTracked {
		// The tracked list is full; past this point distinctness can no
		// longer be established, so the count stays put.
		return false
	}

	c.Forwarders = append(c.Forwarders, NormalizeEmail(source))
	c.ForwarderCount++
	return true
}

// Expired reports whether the candidate has outlived the retention window
// without reaching the admission threshold.
func (c *ForwardCandidate) Expired(retention time.Duration, now time.Time) bool {
	if retention <= 0 {
		retention = constants.DefaultCandidateRetention
	}
	return now.Sub(c.LastSeenAt) > retention
}

// BuildIndexKey generates the KV key for the candidate aggregate. It uses
// the same (repository, normalized email) hash as membership records so an
// admitted candidate and its member record correspond one to one.
func (c *ForwardCandidate) BuildIndexKey(ctx context.Context) string {
	return MemberIndexKey(ctx, c.RepositoryUID, c.Email)
}
