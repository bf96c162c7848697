// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package redaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{
			name:     "typical address",
			email:    "john.doe@example.com",
			expected: "j*******@example.com",
		},
		{
			name:     "single character local part",
			email:    "a@example.com",
			expected: "*@example.com",
		},
		{
			name:     "empty string",
			email:    "",
			expected: "",
		},
		{
			name:     "not an email",
			email:    "not-an-email",
			expected: "***",
		},
		{
			name:     "leading at sign",
			email:    "@example.com",
			expected: "***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RedactEmail(tt.email))
		})
	}
}
