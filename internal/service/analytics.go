// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/utils"
)

// topForwarderCount bounds the leaderboard in an analytics snapshot.
const topForwarderCount = 10

// AnalyticsSnapshot is the aggregated health and growth view of one
// repository at a point in time.
type AnalyticsSnapshot struct {
	RepositoryUID string    `json:"repository_uid"`
	GeneratedAt   time.Time `json:"generated_at"`

	// Membership composition
	TotalMembers    int            `json:"total_members"`
	ActiveMembers   int            `json:"active_members"`
	MembersByStatus map[string]int `json:"members_by_status"`
	MembersBySource map[string]int `json:"members_by_source"`
	AverageTrust    float64        `json:"average_trust"`
	TopDomains      []DomainStat   `json:"top_domains"`

	// Snowball funnel over the requested window
	PendingCandidates int             `json:"pending_candidates"`
	EventsByOutcome   map[string]int  `json:"events_by_outcome"`
	DepthDistribution map[int]int     `json:"depth_distribution"`
	ConversionRate    float64         `json:"conversion_rate"` // admitted / total events
	TopForwarders     []ForwarderStat `json:"top_forwarders"`

	// Growth and health
	SnowballMultiplier float64 `json:"snowball_multiplier"`
	GrowthRate         float64 `json:"growth_rate"` // members added in window / base at window start
	HardBounces        int     `json:"hard_bounces"`
	Complaints         int     `json:"complaints"`
	BounceRatio        float64 `json:"bounce_ratio"`
	Unhealthy          bool    `json:"unhealthy"`
	EngagedMembers     int     `json:"engaged_members"`
	EngagementRate     float64 `json:"engagement_rate"`
}

// ForwarderStat is one entry in the forwarder leaderboard.
type ForwarderStat struct {
	Email    string `json:"email"`
	Forwards int    `json:"forwards"`
	Admitted int    `json:"admitted"`
}

// DomainStat is one entry in the member domain breakdown.
type DomainStat struct {
	Domain  string `json:"domain"`
	Members int    `json:"members"`
}

// Analytics aggregates membership records, candidate aggregates, and the
// audit event history into repository health snapshots.
type Analytics struct {
	repositoryReader port.RepositoryReader
	repositoryWriter port.RepositoryWriter
	memberReader     port.MemberReader
	candidates       port.CandidateRepository
	events           port.SnowballEventReader
}

// analyticsOption defines a function type for setting options on the aggregator
type analyticsOption func(*Analytics)

// WithAnalyticsRepositoryReader sets the repository reader port
func WithAnalyticsRepositoryReader(reader port.RepositoryReader) analyticsOption {
	return func(a *Analytics) {
		a.repositoryReader = reader
	}
}

// WithAnalyticsRepositoryWriter sets the repository writer port
func WithAnalyticsRepositoryWriter(writer port.RepositoryWriter) analyticsOption {
	return func(a *Analytics) {
		a.repositoryWriter = writer
	}
}

// WithAnalyticsMemberReader sets the member reader port
func WithAnalyticsMemberReader(reader port.MemberReader) analyticsOption {
	return func(a *Analytics) {
		a.memberReader = reader
	}
}

// WithAnalyticsCandidateRepository sets the candidate repository port
func WithAnalyticsCandidateRepository(candidates port.CandidateRepository) analyticsOption {
	return func(a *Analytics) {
		a.candidates = candidates
	}
}

// WithAnalyticsEventReader sets the snowball event reader port
func WithAnalyticsEventReader(events port.SnowballEventReader) analyticsOption {
	return func(a *Analytics) {
		a.events = events
	}
}

// NewAnalytics creates a new analytics aggregator using the option pattern
func NewAnalytics(opts ...analyticsOption) *Analytics {
	a := &Analytics{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot builds the aggregated view for one repository. A zero since
// includes the full event history.
func (a *Analytics) Snapshot(ctx context.Context, repositoryUID string, since time.Time) (*AnalyticsSnapshot, error) {
	repository, _, err := a.repositoryReader.GetRepository(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}

	members, err := a.memberReader.ListMembers(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	candidates, err := a.candidates.ListCandidates(ctx, repositoryUID)
	if err != nil {
		return nil, err
	}
	events, err := a.events.ListSnowballEvents(ctx, repositoryUID, since)
	if err != nil {
		return nil, err
	}

	snapshot := &AnalyticsSnapshot{
		RepositoryUID:     repositoryUID,
		GeneratedAt:       time.Now(),
		MembersByStatus:   make(map[string]int),
		MembersBySource:   make(map[string]int),
		EventsByOutcome:   make(map[string]int),
		DepthDistribution: make(map[int]int),
		PendingCandidates: len(candidates),
	}

	windowStart := since
	if windowStart.IsZero() {
		windowStart = snapshot.GeneratedAt.Add(-constants.DefaultGrowthCycle)
	}

	var (
		trustSum      float64
		addedInWindow int
	)
	domains := make(map[string]int)
	for _, member := range members {
		snapshot.TotalMembers++
		snapshot.MembersByStatus[string(member.Status)]++
		snapshot.MembersBySource[string(member.Source)]++
		snapshot.HardBounces += member.Engagement.HardBounces
		snapshot.Complaints += member.Engagement.Complaints
		trustSum += member.TrustScore
		domains[member.Domain]++
		if member.Engagement.Engaged() {
			snapshot.EngagedMembers++
		}
		if member.Status == model.MemberStatusActive || member.Status == model.MemberStatusVerified {
			snapshot.ActiveMembers++
		}
		if member.AddedAt.After(windowStart) {
			addedInWindow++
		}
	}
	if snapshot.TotalMembers > 0 {
		snapshot.AverageTrust = trustSum / float64(snapshot.TotalMembers)
		snapshot.BounceRatio = float64(snapshot.MembersByStatus[string(model.MemberStatusBounced)]) / float64(snapshot.TotalMembers)
		snapshot.EngagementRate = float64(snapshot.EngagedMembers) / float64(snapshot.TotalMembers)
	}
	if base := snapshot.TotalMembers - addedInWindow; base > 0 {
		snapshot.GrowthRate = float64(addedInWindow) / float64(base)
	}
	snapshot.TopDomains = rankDomains(domains)
	healthRatio := repository.Settings.BounceHealthRatio
	if healthRatio == 0 {
		healthRatio = constants.DefaultBounceHealthRatio
	}
	snapshot.Unhealthy = snapshot.BounceRatio >= healthRatio

	if repository.Stats.OriginalImportCount > 0 {
		snapshot.SnowballMultiplier = float64(snapshot.ActiveMembers) / float64(repository.Stats.OriginalImportCount)
	}

	admitted := 0
	forwarders := make(map[string]*ForwarderStat)
	for _, event := range events {
		snapshot.EventsByOutcome[string(event.Outcome)]++
		snapshot.DepthDistribution[event.Depth]++
		if event.Outcome == model.OutcomeAdmitted {
			admitted++
		}

		stat, ok := forwarders[event.SourceEmail]
		if !ok {
			stat = &ForwarderStat{Email: event.SourceEmail}
			forwarders[event.SourceEmail] = stat
		}
		stat.Forwards++
		if event.Outcome == model.OutcomeAdmitted {
			stat.Admitted++
		}
	}
	if len(events) > 0 {
		snapshot.ConversionRate = float64(admitted) / float64(len(events))
	}
	snapshot.TopForwarders = rankForwarders(forwarders)

	return snapshot, nil
}

// RefreshStats recomputes the denormalized stats block on the repository
// record so list views stay cheap.
func (a *Analytics) RefreshStats(ctx context.Context, repositoryUID string) error {
	snapshot, err := a.Snapshot(ctx, repositoryUID, time.Time{})
	if err != nil {
		return err
	}

	err = utils.RetryWithExponentialBackoff(ctx, casRetry, func() error {
		repository, revision, err := a.repositoryReader.GetRepository(ctx, repositoryUID)
		if err != nil {
			return err
		}

		repository.Stats.TotalMembers = snapshot.TotalMembers
		repository.Stats.ActiveMembers = snapshot.MembersByStatus[string(model.MemberStatusActive)]
		repository.Stats.VerifiedMembers = snapshot.MembersByStatus[string(model.MemberStatusVerified)]
		repository.Stats.PendingCandidates = snapshot.PendingCandidates
		repository.Stats.HardBounces = snapshot.HardBounces
		repository.Stats.SnowballMultiplier = snapshot.SnowballMultiplier
		repository.Stats.GrowthRate = snapshot.GrowthRate
		repository.Stats.Unhealthy = snapshot.Unhealthy
		repository.Stats.RefreshedAt = snapshot.GeneratedAt
		repository.UpdatedAt = time.Now()

		_, _, err = a.repositoryWriter.UpdateRepository(ctx, repositoryUID, repository, revision)
		return err
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "repository stats refreshed", "repository_uid", repositoryUID)
	return nil
}

// rankForwarders sorts the leaderboard by forward count and truncates it.
func rankForwarders(stats map[string]*ForwarderStat) []ForwarderStat {
	ranked := make([]ForwarderStat, 0, len(stats))
	for _, stat := range stats {
		ranked = append(ranked, *stat)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Forwards != ranked[j].Forwards {
			return ranked[i].Forwards > ranked[j].Forwards
		}
		return ranked[i].Email < ranked[j].Email
	})
	if len(ranked) > topForwarderCount {
		ranked = ranked[:topForwarderCount]
	}
	return ranked
}

// rankDomains sorts the member domain breakdown by size and truncates it.
func rankDomains(counts map[string]int) []DomainStat {
	ranked := make([]DomainStat, 0, len(counts))
	for domain, members := range counts {
		ranked = append(ranked, DomainStat{Domain: domain, Members: members})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Members != ranked[j].Members {
			return ranked[i].Members > ranked[j].Members
		}
		return ranked[i].Domain < ranked[j].Domain
	})
	if len(ranked) > topForwarderCount {
		ranked = ranked[:topForwarderCount]
	}
	return ranked
}
