package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

func TestActiveState_String(t *testing.T) {
	expected := map[ActiveState]string{
		ActiveStateActive:       "active",
		ActiveStateReloading:    "reloading",
		ActiveStateInactive:     "inactive",
		ActiveStateFailed:       "failed",
		ActiveStateActivating:   "activating",
		ActiveStateDeactivating: "deactivating",
	}
	for state, rendered := range expected {
		assert.Equal(t, rendered, state.String())
		assert.True(t, state.IsValid())
	}
	assert.Len(t, AllActiveStates(), len(expected))
}

func TestParseActiveState(t *testing.T) {
	state, err := ParseActiveState("Failed")
	require.NoError(t, err)
	assert.Equal(t, ActiveStateFailed, state)

	state, err = ParseActiveState(" deactivating ")
	require.NoError(t, err)
	assert.Equal(t, ActiveStateDeactivating, state)

	_, err = ParseActiveState("running")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
