// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceUnavailable(t *testing.T) {
	cause := errors.New("nats: no servers available for connection")
	err := NewServiceUnavailable("storage is unreachable", cause)

	require.NotNil(t, err.Unwrap())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "storage is unreachable")
	assert.Contains(t, err.Error(), "no servers available")

	bare := NewServiceUnavailable("storage is unreachable")
	assert.Nil(t, bare.Unwrap())
	assert.Equal(t, "storage is unreachable", bare.Error())
}
