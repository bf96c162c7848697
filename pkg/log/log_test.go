// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogOptionalTime(t *testing.T) {
	optedOut := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name     string
		input    *time.Time
		expected slog.Value
	}{
		{
			name:     "nil pointer logs null",
			input:    nil,
			expected: slog.AnyValue(nil),
		},
		{
			name:     "set timestamp logs the value",
			input:    &optedOut,
			expected: slog.TimeValue(optedOut),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := LogOptionalTime(tt.input)
			assert.True(t, result.Equal(tt.expected),
				"LogOptionalTime(%v) = %v, want %v", tt.input, result, tt.expected)
		})
	}
}

func TestAppendCtxAttrsReachTheRecord(t *testing.T) {
	var buf bytes.Buffer
	handler := contextHandler{slog.NewJSONHandler(&buf, nil)}
	logger := slog.New(handler)

	ctx := AppendCtx(context.Background(), slog.String("principal", "owner-1"))
	ctx = AppendCtx(ctx, slog.String("repository_uid", "repo-1"))

	logger.InfoContext(ctx, "candidate admitted")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "candidate admitted", record["msg"])
	assert.Equal(t, "owner-1", record["principal"])
	assert.Equal(t, "repo-1", record["repository_uid"])
}

func TestAppendCtxNilParent(t *testing.T) {
	ctx := AppendCtx(nil, slog.String("principal", "owner-1"))
	attrs, ok := ctx.Value(slogFields).([]slog.Attr)
	require.True(t, ok)
	require.Len(t, attrs, 1)
	assert.Equal(t, "principal", attrs[0].Key)
}

func TestPriorityCritical(t *testing.T) {
	attr := PriorityCritical()
	assert.Equal(t, "priority", attr.Key)
	assert.Equal(t, priorityCritical, attr.Value.String())
}
