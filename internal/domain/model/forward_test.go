// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

func TestForwardEvent_Validate(t *testing.T) {
	tests := []struct {
		name        string
		event       func() *ForwardEvent
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid event",
			event: func() *ForwardEvent {
				return &ForwardEvent{
					RepositoryUID:   "repo-1",
					SourceEmail:     "member@example.org",
					CandidateEmails: []string{"friend@example.org"},
					Depth:           1,
				}
			},
			expectError: false,
		},
		{
			name: "missing repository",
			event: func() *ForwardEvent {
				return &ForwardEvent{
					SourceEmail:     "member@example.org",
					CandidateEmails: []string{"friend@example.org"},
					Depth:           1,
				}
			},
			expectError: true,
			errorMsg:    "repository_uid is required",
		},
		{
			name: "blank source",
			event: func() *ForwardEvent {
				return &ForwardEvent{
					RepositoryUID:   "repo-1",
					SourceEmail:     "   ",
					CandidateEmails: []string{"friend@example.org"},
					Depth:           1,
				}
			},
			expectError: true,
			errorMsg:    "source_email is required",
		},
		{
			name: "no candidates",
			event: func() *ForwardEvent {
				return &ForwardEvent{
					RepositoryUID: "repo-1",
					SourceEmail:   "member@example.org",
					Depth:         1,
				}
			},
			expectError: true,
			errorMsg:    "candidate_emails must not be empty",
		},
		{
			name: "zero depth",
			event: func() *ForwardEvent {
				return &ForwardEvent{
					RepositoryUID:   "repo-1",
					SourceEmail:     "member@example.org",
					CandidateEmails: []string{"friend@example.org"},
					Depth:           0,
				}
			},
			expectError: true,
			errorMsg:    "depth must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event().Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestForwardCandidate_RecordForward(t *testing.T) {
	now := time.Now()

	t.Run("distinct forwarders increment the count", func(t *testing.T) {
		candidate := NewForwardCandidate(
			"repo-1", "friend@example.org", "example.org", 0.9, "alice@example.org", 2, now)
		require.Equal(t, 1, candidate.ForwarderCount)

		counted := candidate.RecordForward("bob@example.org", 2, now.Add(time.Minute))
		assert.True(t, counted)
		assert.Equal(t, 2, candidate.ForwarderCount)
		assert.Equal(t, now.Add(time.Minute), candidate.LastSeenAt)
	})

	t.Run("repeat forwarder only refreshes last seen", func(t *testing.T) {
		candidate := NewForwardCandidate(
			"repo-1", "friend@example.org", "example.org", 0.9, "alice@example.org", 2, now)

		counted := candidate.RecordForward("ALICE@example.org", 2, now.Add(time.Hour))
		assert.False(t, counted, "case variant of a known forwarder must not count")
		assert.Equal(t, 1, candidate.ForwarderCount)
		assert.Equal(t, now.Add(time.Hour), candidate.LastSeenAt)
	})

	t.Run("depth keeps the minimum observed", func(t *testing.T) {
		candidate := NewForwardCandidate(
			"repo-1", "friend@example.org", "example.org", 0.9, "alice@example.org", 3, now)

		candidate.RecordForward("bob@example.org", 1, now)
		assert.Equal(t, 1, candidate.Depth)

		candidate.RecordForward("carol@example.org", 5, now)
		assert.Equal(t, 1, candidate.Depth, "a deeper forward must not raise the recorded depth")
	})

	t.Run("forwarder list is bounded", func(t *testing.T) {
		candidate := NewForwardCandidate(
			"repo-1", "friend@example.org", "example.org", 0.9, "source0@example.org", 1, now)

		for i := 1; i < constants.MaxForwardersTracked+20; i++ {
			candidate.RecordForward(fmt.Sprintf("source%d@example.org", i), 1, now)
		}

		assert.Len(t, candidate.Forwarders, constants.MaxForwardersTracked)
		assert.Equal(t, constants.MaxForwardersTracked, candidate.ForwarderCount)
	})
}

func TestForwardCandidate_Expired(t *testing.T) {
	now := time.Now()
	candidate := NewForwardCandidate(
		"repo-1", "friend@example.org", "example.org", 0.9, "alice@example.org", 1, now)

	assert.False(t, candidate.Expired(7*24*time.Hour, now.Add(24*time.Hour)))
	assert.True(t, candidate.Expired(7*24*time.Hour, now.Add(8*24*time.Hour)))

	// Zero retention falls back to the platform default.
	assert.False(t, candidate.Expired(0, now.Add(constants.DefaultCandidateRetention-time.Hour)))
	assert.True(t, candidate.Expired(0, now.Add(constants.DefaultCandidateRetention+time.Hour)))
}
