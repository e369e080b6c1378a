package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowErrorWrapping(t *testing.T) {
	err := NewWorkflowError("GetByID", "wf-123", ErrWorkflowNotFound)

	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "wf-123")
	assert.True(t, errors.Is(err, ErrWorkflowNotFound))
	assert.True(t, IsWorkflowNotFound(err))
}

func TestLeadErrorWrapping(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewLeadError("Update", "lead-9", inner)

	assert.Contains(t, err.Error(), "lead-9")
	assert.True(t, errors.Is(err, inner))
	assert.False(t, IsLeadNotFound(err))
}

func TestStateErrorWrapping(t *testing.T) {
	err := NewStateError("Clear", "wf-1", "lead-1", ErrVersionConflict)

	assert.Contains(t, err.Error(), "wf-1")
	assert.Contains(t, err.Error(), "lead-1")
	assert.True(t, IsVersionConflict(err))
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrWorkflowNotFound,
		ErrLeadNotFound,
		ErrPausedStateNotFound,
		ErrVersionConflict,
		ErrTraceNotFound,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}

			assert.False(t, errors.Is(a, b))
		}
	}
}
