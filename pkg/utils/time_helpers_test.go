// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/constants"
)

func TestValidateRFC3339(t *testing.T) {
	tests := []struct {
		name      string
		timestamp string
		wantErr   string
	}{
		{
			name:      "analytics window bound",
			timestamp: "2026-03-14T09:26:53Z",
		},
		{
			name:      "offset timestamps are accepted",
			timestamp: "2026-03-14T09:26:53+02:00",
		},
		{
			name:      "nanosecond precision is accepted",
			timestamp: "2026-03-14T09:26:53.123456789Z",
		},
		{
			name:      "empty timestamp",
			timestamp: "",
			wantErr:   constants.ErrEmptyTimestamp,
		},
		{
			name:      "date without time",
			timestamp: "2026-03-14",
			wantErr:   constants.ErrInvalidTimestampFormat,
		},
		{
			name:      "unix epoch seconds",
			timestamp: "1773480413",
			wantErr:   constants.ErrInvalidTimestampFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ValidateRFC3339(tt.timestamp)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, parsed.IsZero())
				return
			}
			require.NoError(t, err)
			assert.False(t, parsed.IsZero())
		})
	}
}

func TestValidateRFC3339Ptr(t *testing.T) {
	assert.NoError(t, ValidateRFC3339Ptr(nil), "nil means the caller sent no timestamp")

	valid := "2026-03-14T09:26:53Z"
	assert.NoError(t, ValidateRFC3339Ptr(&valid))

	invalid := "yesterday"
	assert.Error(t, ValidateRFC3339Ptr(&invalid))
}

func TestParseTimestampPtr(t *testing.T) {
	parsed, err := ParseTimestampPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, parsed)

	empty := ""
	parsed, err = ParseTimestampPtr(&empty)
	require.NoError(t, err)
	assert.Nil(t, parsed)

	value := "2026-03-14T09:26:53Z"
	parsed, err = ParseTimestampPtr(&value)
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), parsed.UTC())

	bad := "not-a-timestamp"
	_, err = ParseTimestampPtr(&bad)
	assert.Error(t, err)
}

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, FormatTimePtr(nil))

	optedOut := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	formatted := FormatTimePtr(&optedOut)
	require.NotNil(t, formatted)
	assert.Equal(t, "2026-03-14T09:26:53Z", *formatted)
}

func TestNowRFC3339Ptr(t *testing.T) {
	now := NowRFC3339Ptr()
	require.NotNil(t, now)

	parsed, err := time.Parse(constants.TimestampFormat, *now)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)
}
