// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import "time"

// Platform-wide governor and snowball defaults. Every value can be
// overridden per repository in its settings.
const (
	// DefaultAutoAddThreshold is the distinct-forwarder count required
	// before a pending candidate is admitted.
	DefaultAutoAddThreshold = 5

	// DefaultMaxForwardDepth is the maximum forward hop count accepted.
	DefaultMaxForwardDepth = 3

	// DefaultQualityThreshold is the minimum trust score for automatic admission.
	DefaultQualityThreshold = 0.7

	// DefaultMaxGrowthRate caps admissions within one cycle at
	// currentSize * rate.
	DefaultMaxGrowthRate = 2.0

	// DefaultGrowthCycle is the rolling cooldown window for growth accounting.
	DefaultGrowthCycle = 24 * time.Hour

	// DefaultCandidateRetention is how long a pending candidate survives
	// without reaching the admission threshold.
	DefaultCandidateRetention = 7 * 24 * time.Hour

	// DefaultHardBounceThreshold is the hard-bounce count that moves a
	// member to bounced.
	DefaultHardBounceThreshold = 3

	// DefaultComplaintThreshold is the complaint count that forces opt-out.
	DefaultComplaintThreshold = 2

	// DefaultBounceHealthRatio is the repository hard-bounce proportion
	// above which the repository is flagged unhealthy.
	DefaultBounceHealthRatio = 0.05

	// DefaultMaxEmailsPerContributor caps how many members a single
	// contributor may add to one repository. Zero means unlimited.
	DefaultMaxEmailsPerContributor = 0

	// MaxForwardersTracked bounds the distinct forwarder list kept on a
	// candidate aggregate.
	MaxForwardersTracked = 50
)
