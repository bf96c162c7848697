// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"time"
)

// GrowthCycle is the per-repository admission counter for one rolling
// cooldown window. The governor serializes increments with revision CAS so
// concurrent admissions cannot overshoot the cap.
type GrowthCycle struct {
	RepositoryUID string    `json:"repository_uid"`
	StartedAt     time.Time `json:"started_at"`
	// BaseSize is the active member count when the cycle opened; the
	// admission cap is BaseSize * maxGrowthRate for the whole cycle.
	BaseSize   int       `json:"base_size"`
	Admissions int       `json:"admissions"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CycleKey builds the KV key for a growth cycle from the repository and
// the cycle's aligned start time.
func CycleKey(repositoryUID string, startedAt time.Time) string {
	return fmt.Sprintf("%s.%d", repositoryUID, startedAt.Unix())
}

// AlignCycleStart truncates now down to the cycle boundary so that all
// workers agree on the current cycle without coordination.
func AlignCycleStart(now time.Time, cycle time.Duration) time.Time {
	return now.Truncate(cycle)
}

// Remaining returns how many admissions the cycle can still accept under
// the given growth rate. A repository that is still empty gets a minimum
// budget of one admission so snowball can bootstrap.
func (c *GrowthCycle) Remaining(maxGrowthRate float64) int {
	capacity := int(float64(c.BaseSize) * maxGrowthRate)
	if capacity < 1 {
		capacity = 1
	}
	remaining := capacity - c.Admissions
	if remaining < 0 {
		return 0
	}
	return remaining
}
