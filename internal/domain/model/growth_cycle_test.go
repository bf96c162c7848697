// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGrowthCycle_Remaining(t *testing.T) {
	tests := []struct {
		name          string
		baseSize      int
		admissions    int
		maxGrowthRate float64
		expected      int
	}{
		{"fresh cycle", 100, 0, 2.0, 200},
		{"partially consumed", 100, 150, 2.0, 50},
		{"exhausted", 100, 200, 2.0, 0},
		{"overshoot clamps to zero", 100, 250, 2.0, 0},
		{"fractional rate rounds down", 10, 0, 1.5, 15},
		{"empty repository bootstraps with one", 0, 0, 2.0, 1},
		{"tiny repository below one slot", 1, 0, 0.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle := &GrowthCycle{BaseSize: tt.baseSize, Admissions: tt.admissions}
			assert.Equal(t, tt.expected, cycle.Remaining(tt.maxGrowthRate))
		})
	}
}

func TestAlignCycleStart(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	aligned := AlignCycleStart(now, 24*time.Hour)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), aligned)

	hourly := AlignCycleStart(now, time.Hour)
	assert.Equal(t, time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC), hourly)

	// Two observers inside the same window agree on the cycle start.
	later := now.Add(3 * time.Hour)
	assert.Equal(t, AlignCycleStart(now, 24*time.Hour), AlignCycleStart(later, 24*time.Hour))
}

func TestCycleKey(t *testing.T) {
	start := time.Unix(1700000000, 0)
	assert.Equal(t, "repo-1.1700000000", CycleKey("repo-1", start))
}
