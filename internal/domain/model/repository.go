// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package model defines the domain models and entities for the snowball service.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
)

// Repository represents a curated, owned collection of email addresses
// organized around a topic, grown through direct adds, CSV imports, and
// snowball forwarding.
type Repository struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	OwnerUID    string `json:"owner_uid"`
	Description string `json:"description"`
	Public      bool   `json:"public"` // Whether the repository is publicly visible
	Status      string `json:"status"` // "active" | "archived"

	Settings RepositorySettings `json:"settings"`
	Snowball SnowballSettings   `json:"snowball"`
	Stats    RepositoryStats    `json:"stats"`

	// Audit trail fields
	Writers  []string `json:"writers"`  // Moderator user IDs who can edit settings
	Auditors []string `json:"auditors"` // Auditor user IDs who can audit

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository lifecycle states
const (
	RepositoryStatusActive   = "active"
	RepositoryStatusArchived = "archived"
)

// RepositorySettings holds the owner-tunable data quality controls.
type RepositorySettings struct {
	QualityThreshold        float64  `json:"quality_threshold"` // Minimum trust score for automatic admission, [0,1]
	AutoApprove             bool     `json:"auto_approve"`      // Admit threshold-reaching candidates without owner review
	AllowedDomains          []string `json:"allowed_domains"`   // Empty means all domains allowed
	BlockedDomains          []string `json:"blocked_domains"`
	MaxEmailsPerContributor int      `json:"max_emails_per_contributor"` // Zero means unlimited
	HardBounceThreshold     int      `json:"hard_bounce_threshold"`      // Hard bounces before the automatic bounced transition
	ComplaintThreshold      int      `json:"complaint_threshold"`        // Complaints before the forced opt-out
	BounceHealthRatio       float64  `json:"bounce_health_ratio"`        // Hard-bounce proportion that flags the repository unhealthy
}

// SnowballSettings holds the viral-growth configuration for a repository.
type SnowballSettings struct {
	Enabled            bool          `json:"enabled"`
	MaxForwardDepth    int           `json:"max_forward_depth"`   // Maximum forward hop count accepted
	MultiplierTarget   float64       `json:"multiplier_target"`   // Aspirational growth multiplier, informational
	AutoAddThreshold   int           `json:"auto_add_threshold"`  // Distinct forwarders required for admission
	MaxGrowthRate      float64       `json:"max_growth_rate"`     // Admissions per cycle capped at size * rate
	GrowthCycle        time.Duration `json:"growth_cycle"`        // Rolling cooldown window for growth accounting
	CandidateRetention time.Duration `json:"candidate_retention"` // Pending candidate lifetime without admission
}

// RepositoryStats is a denormalized snapshot of repository health, refreshed
// by the analytics aggregator.
type RepositoryStats struct {
	TotalMembers        int       `json:"total_members"`
	ActiveMembers       int       `json:"active_members"`
	VerifiedMembers     int       `json:"verified_members"`
	PendingCandidates   int       `json:"pending_candidates"`
	OriginalImportCount int       `json:"original_import_count"` // Size at first import, multiplier denominator
	HardBounces         int       `json:"hard_bounces"`
	GrowthRate          float64   `json:"growth_rate"`
	SnowballMultiplier  float64   `json:"snowball_multiplier"`
	Unhealthy           bool      `json:"unhealthy"` // Hard-bounce ratio crossed the health threshold
	RefreshedAt         time.Time `json:"refreshed_at"`
}

// ApplyDefaults fills zero-valued snowball and governor settings with the
// platform-wide defaults.
func (r *Repository) ApplyDefaults() {
	if r.Status == "" {
		r.Status = RepositoryStatusActive
	}
	if r.Settings.QualityThreshold == 0 {
		r.Settings.QualityThreshold = constants.DefaultQualityThreshold
	}
	if r.Settings.HardBounceThreshold == 0 {
		r.Settings.HardBounceThreshold = constants.DefaultHardBounceThreshold
	}
	if r.Settings.ComplaintThreshold == 0 {
		r.Settings.ComplaintThreshold = constants.DefaultComplaintThreshold
	}
	if r.Settings.BounceHealthRatio == 0 {
		r.Settings.BounceHealthRatio = constants.DefaultBounceHealthRatio
	}
	if r.Snowball.MaxForwardDepth == 0 {
		r.Snowball.MaxForwardDepth = constants.DefaultMaxForwardDepth
	}
	if r.Snowball.AutoAddThreshold == 0 {
		r.Snowball.AutoAddThreshold = constants.DefaultAutoAddThreshold
	}
	if r.Snowball.MaxGrowthRate == 0 {
		r.Snowball.MaxGrowthRate = constants.DefaultMaxGrowthRate
	}
	if r.Snowball.GrowthCycle == 0 {
		r.Snowball.GrowthCycle = constants.DefaultGrowthCycle
	}
	if r.Snowball.CandidateRetention == 0 {
		r.Snowball.CandidateRetention = constants.DefaultCandidateRetention
	}
}

// ValidateBasicFields validates the basic required fields and formats
func (r *Repository) ValidateBasicFields() error {
	if r.Name == "" {
		return errors.NewValidation("name is required")
	}
	if !isValidRepositoryName(r.Name) {
		return errors.NewValidation("name must match pattern: ^[a-z][a-z0-9-]*[a-z0-9]$")
	}
	if r.OwnerUID == "" {
		return errors.NewValidation("owner_uid is required")
	}
	if r.Status != "" && r.Status != RepositoryStatusActive && r.Status != RepositoryStatusArchived {
		return errors.NewValidation("status must be 'active' or 'archived'")
	}
	return nil
}

// ValidateSettings checks the internal consistency of the quality and
// snowball settings before they are persisted.
func (r *Repository) ValidateSettings() error {
	if r.Settings.QualityThreshold < 0 || r.Settings.QualityThreshold > 1 {
		return errors.NewValidation("quality_threshold must be in [0,1]")
	}
	if r.Settings.MaxEmailsPerContributor < 0 {
		return errors.NewValidation("max_emails_per_contributor must not be negative")
	}
	if r.Settings.HardBounceThreshold < 1 {
		return errors.NewValidation("hard_bounce_threshold must be at least 1")
	}
	if r.Settings.ComplaintThreshold < 1 {
		return errors.NewValidation("complaint_threshold must be at least 1")
	}
	if r.Settings.BounceHealthRatio <= 0 || r.Settings.BounceHealthRatio > 1 {
		return errors.NewValidation("bounce_health_ratio must be in (0,1]")
	}
	if r.Snowball.AutoAddThreshold < 1 {
		return errors.NewValidation("auto_add_threshold must be at least 1")
	}
	if r.Snowball.MaxForwardDepth < 1 {
		return errors.NewValidation("max_forward_depth must be at least 1")
	}
	if r.Snowball.MaxGrowthRate <= 0 {
		return errors.NewValidation("max_growth_rate must be greater than zero")
	}
	if r.Snowball.GrowthCycle <= 0 {
		return errors.NewValidation("growth_cycle must be greater than zero")
	}
	if r.Snowball.CandidateRetention <= 0 {
		return errors.NewValidation("candidate_retention must be greater than zero")
	}
	return nil
}

// IsArchived reports whether the repository has been soft-archived.
func (r *Repository) IsArchived() bool {
	return r.Status == RepositoryStatusArchived
}

// DomainAllowed checks a normalized domain against the repository's
// allowed/blocked domain lists. Blocked wins over allowed.
func (r *Repository) DomainAllowed(domain string) bool {
	domain = strings.TrimSpace(strings.ToLower(domain))
	for _, blocked := range r.Settings.BlockedDomains {
		if strings.EqualFold(blocked, domain) {
			return false
		}
	}
	if len(r.Settings.AllowedDomains) == 0 {
		return true
	}
	for _, allowed := range r.Settings.AllowedDomains {
		if strings.EqualFold(allowed, domain) {
			return true
		}
	}
	return false
}

// BuildIndexKey generates a SHA-256 hash for use as a NATS KV key.
// This enforces uniqueness of repository names per owner.
func (r *Repository) BuildIndexKey(ctx context.Context) string {
	owner := strings.TrimSpace(strings.ToLower(r.OwnerUID))
	name := strings.TrimSpace(strings.ToLower(r.Name))

	// Combine normalized values with a delimiter
	data := fmt.Sprintf("%s|%s", owner, name)

	hash := sha256.Sum256([]byte(data))
	key := hex.EncodeToString(hash[:])

	slog.DebugContext(ctx, "repository index key built",
		"owner_uid", r.OwnerUID,
		"name", r.Name,
		"key", key,
	)

	return key
}

// Tags generates a consistent set of tags for the repository.
func (r *Repository) Tags() []string {
	var tags []string

	if r == nil {
		return nil
	}

	if r.UID != "" {
		tags = append(tags, r.UID)
		tag := fmt.Sprintf("repository_uid:%s", r.UID)
		tags = append(tags, tag)
	}

	if r.Name != "" {
		tag := fmt.Sprintf("name:%s", r.Name)
		tags = append(tags, tag)
	}

	if r.OwnerUID != "" {
		tag := fmt.Sprintf("owner_uid:%s", r.OwnerUID)
		tags = append(tags, tag)
	}

	if r.Status != "" {
		tag := fmt.Sprintf("status:%s", r.Status)
		tags = append(tags, tag)
	}

	return tags
}

// isValidRepositoryName checks the repository name pattern without pulling
// in a regex dependency for a fixed grammar.
func isValidRepositoryName(name string) bool {
	if len(name) < 2 || len(name) > 64 {
		return false
	}
	if name[0] < 'a' || name[0] > 'z' {
		return false
	}
	last := name[len(name)-1]
	if !isLowerAlnum(last) {
		return false
	}
	for i := 1; i < len(name)-1; i++ {
		if !isLowerAlnum(name[i]) && name[i] != '-' {
			return false
		}
	}
	return true
}

func isLowerAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
