// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/redaction"
)

// MemberStatus is the lifecycle state of a membership record.
type MemberStatus string

// Membership lifecycle states
const (
	// MemberStatusPending is a forward candidate not yet admitted.
	MemberStatusPending MemberStatus = "pending"
	// MemberStatusActive is a full member receiving digests.
	MemberStatusActive MemberStatus = "active"
	// MemberStatusVerified is an active member with confirmed address ownership.
	MemberStatusVerified MemberStatus = "verified"
	// MemberStatusOptedOut is a member who explicitly unsubscribed.
	MemberStatusOptedOut MemberStatus = "opted_out"
	// MemberStatusBounced is a member whose address is permanently failing delivery.
	MemberStatusBounced MemberStatus = "bounced"
	// MemberStatusRemoved is an administratively removed member. Terminal.
	MemberStatusRemoved MemberStatus = "removed"
)

// CanTransitionTo reports whether the state machine permits moving from the
// current status to next. Removed is terminal: reinstatement requires an
// explicit owner override outside this check.
func (s MemberStatus) CanTransitionTo(next MemberStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case MemberStatusPending:
		return next == MemberStatusActive || next == MemberStatusRemoved
	case MemberStatusActive:
		return next == MemberStatusVerified ||
			next == MemberStatusOptedOut ||
			next == MemberStatusBounced ||
			next == MemberStatusRemoved
	case MemberStatusVerified:
		return next == MemberStatusOptedOut ||
			next == MemberStatusBounced ||
			next == MemberStatusRemoved
	case MemberStatusOptedOut, MemberStatusBounced:
		return next == MemberStatusRemoved
	case MemberStatusRemoved:
		return false
	default:
		return false
	}
}

// MemberSource records how an address entered the repository.
type MemberSource string

// Membership sources
const (
	MemberSourceDirect    MemberSource = "direct_add"
	MemberSourceCSVImport MemberSource = "csv_import"
	MemberSourceSnowball  MemberSource = "snowball"
	MemberSourceAPI       MemberSource = "api"
	MemberSourceForward   MemberSource = "forward"
)

// ValidMemberSources returns all valid member source values
func ValidMemberSources() []MemberSource {
	return []MemberSource{
		MemberSourceDirect,
		MemberSourceCSVImport,
		MemberSourceSnowball,
		MemberSourceAPI,
		MemberSourceForward,
	}
}

// MemberEngagement tracks per-member engagement and delivery counters.
type MemberEngagement struct {
	Opens            int        `json:"opens"`
	Clicks           int        `json:"clicks"`
	Replies          int        `json:"replies"`
	Forwards         int        `json:"forwards"`
	HardBounces      int        `json:"hard_bounces"`
	Complaints       int        `json:"complaints"`
	LastEngagementAt *time.Time `json:"last_engagement_at"` // Nullable timestamp
}

// Engaged reports whether the member has any recorded engagement.
func (e MemberEngagement) Engaged() bool {
	return e.Opens > 0 || e.Clicks > 0 || e.Replies > 0 || e.Forwards > 0
}

// MemberPermissions holds per-member consent flags.
type MemberPermissions struct {
	ReceiveDigest   bool `json:"receive_digest"`
	ReceiveSnowball bool `json:"receive_snowball"` // May be named in forward candidate lists
	Shareable       bool `json:"shareable"`        // Address may be shared with collaborating services
}

// MembershipRecord represents one email address within one repository.
// Records are never physically deleted; removal and opt-out are recorded
// as states so that re-adds can be suppressed.
type MembershipRecord struct {
	UID           string `json:"uid"`            // Primary key
	RepositoryUID string `json:"repository_uid"` // FK to repository

	Email  string `json:"email"`  // Normalized: trimmed, lowercased
	Domain string `json:"domain"` // Derived from email

	Source     MemberSource `json:"source"`
	Status     MemberStatus `json:"status"`
	TrustScore float64      `json:"trust_score"`

	Name         string   `json:"name"`         // Optional
	Organization string   `json:"organization"` // Optional
	Tags         []string `json:"tags"`

	Engagement  MemberEngagement  `json:"engagement"`
	Permissions MemberPermissions `json:"permissions"`

	AddedBy string `json:"added_by"` // Acting user or source system identity

	AddedAt    time.Time  `json:"added_at"`
	VerifiedAt *time.Time `json:"verified_at"`  // Nullable timestamp
	OptedOutAt *time.Time `json:"opted_out_at"` // Nullable timestamp
	BouncedAt  *time.Time `json:"bounced_at"`   // Nullable timestamp
	RemovedAt  *time.Time `json:"removed_at"`   // Nullable timestamp
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NormalizeEmail applies the canonical normalization used for uniqueness
// comparison everywhere in the engine: whitespace trim plus lowercase.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the domain part of a normalized email address, or an
// empty string when the address has no domain.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// ValidateBasicFields validates the basic required fields and formats
func (m *MembershipRecord) ValidateBasicFields() error {
	if m.RepositoryUID == "" {
		return errors.NewValidation("repository_uid is required")
	}
	if m.Email == "" {
		return errors.NewValidation("email is required")
	}
	if m.Source == "" {
		return errors.NewValidation("source is required")
	}
	valid := false
	for _, s := range ValidMemberSources() {
		if m.Source == s {
			valid = true
			break
		}
	}
	if !valid {
		return errors.NewValidation(fmt.Sprintf("source %q is not a valid member source", m.Source))
	}
	if m.TrustScore < 0 || m.TrustScore > 1 {
		return errors.NewValidation("trust_score must be in [0,1]")
	}
	return nil
}

// Transition moves the record to the next lifecycle state, enforcing the
// state machine and stamping the matching timestamp.
func (m *MembershipRecord) Transition(next MemberStatus, now time.Time) error {
	if !m.Status.CanTransitionTo(next) {
		return errors.NewValidation(
			fmt.Sprintf("invalid member transition from %q to %q", m.Status, next))
	}

	m.Status = next
	m.UpdatedAt = now

	switch next {
	case MemberStatusVerified:
		m.VerifiedAt = &now
	case MemberStatusOptedOut:
		m.OptedOutAt = &now
		m.Permissions.ReceiveDigest = false
		m.Permissions.ReceiveSnowball = false
	case MemberStatusBounced:
		m.BouncedAt = &now
	case MemberStatusRemoved:
		m.RemovedAt = &now
	}

	return nil
}

// Reinstate is the explicit owner override that returns a removed member to
// active. It bypasses CanTransitionTo on purpose: removed is terminal for
// every automated path.
func (m *MembershipRecord) Reinstate(now time.Time) error {
	if m.Status != MemberStatusRemoved {
		return errors.NewValidation("only removed members can be reinstated")
	}

	m.Status = MemberStatusActive
	m.RemovedAt = nil
	m.Permissions.ReceiveDigest = true
	m.Permissions.ReceiveSnowball = true
	m.UpdatedAt = now
	return nil
}

// CanReceiveDigest reports whether the member should be included in a
// digest recipient set.
func (m *MembershipRecord) CanReceiveDigest() bool {
	if m.Status != MemberStatusActive && m.Status != MemberStatusVerified {
		return false
	}
	return m.Permissions.ReceiveDigest
}

// BlocksReadd reports whether an ingestion or forward for the same
// normalized email must be suppressed instead of creating a new record.
func (m *MembershipRecord) BlocksReadd() bool {
	switch m.Status {
	case MemberStatusOptedOut, MemberStatusBounced, MemberStatusRemoved:
		return true
	default:
		return false
	}
}

// BuildIndexKey generates a SHA-256 hash for use as a NATS KV key.
// This enforces uniqueness of normalized emails within a repository.
func (m *MembershipRecord) BuildIndexKey(ctx context.Context) string {
	return MemberIndexKey(ctx, m.RepositoryUID, m.Email)
}

// MemberIndexKey builds the uniqueness key for a (repository, email) pair.
// Both values are normalized so that addresses differing only by case or
// surrounding whitespace collide.
func MemberIndexKey(ctx context.Context, repositoryUID, email string) string {
	repo := strings.TrimSpace(strings.ToLower(repositoryUID))
	addr := NormalizeEmail(email)

	// Combine normalized values with a delimiter
	data := fmt.Sprintf("%s|%s", repo, addr)

	hash := sha256.Sum256([]byte(data))
	key := hex.EncodeToString(hash[:])

	slog.DebugContext(ctx, "member index key built",
		"repository_uid", repositoryUID,
		"email", redaction.RedactEmail(email),
		"key", key,
	)

	return key
}

// IndexTags generates a consistent set of tags for the member for search
// indexing. Named IndexTags because Tags is the member's own label list.
func (m *MembershipRecord) IndexTags() []string {
	var tags []string

	if m == nil {
		return nil
	}

	if m.UID != "" {
		tags = append(tags, m.UID)
		tag := fmt.Sprintf("member_uid:%s", m.UID)
		tags = append(tags, tag)
	}

	if m.RepositoryUID != "" {
		tag := fmt.Sprintf("repository_uid:%s", m.RepositoryUID)
		tags = append(tags, tag)
	}

	if m.Email != "" {
		tag := fmt.Sprintf("email:%s", m.Email)
		tags = append(tags, tag)
	}

	if m.Status != "" {
		tag := fmt.Sprintf("status:%s", m.Status)
		tags = append(tags, tag)
	}

	if m.Source != "" {
		tag := fmt.Sprintf("source:%s", m.Source)
		tags = append(tags, tag)
	}

	return tags
}
