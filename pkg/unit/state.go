package unit

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

// ActiveState is the systemd ActiveState of a unit, stored in its wire (lowercase) form.
type ActiveState string

const (
	// ActiveStateActive means the unit is started
	ActiveStateActive ActiveState = "active"

	// ActiveStateReloading means the unit is active and reloading its configuration
	ActiveStateReloading ActiveState = "reloading"

	// ActiveStateInactive is the state of a freshly added or stopped unit
	ActiveStateInactive ActiveState = "inactive"

	// ActiveStateFailed means the unit is inactive after a failure
	ActiveStateFailed ActiveState = "failed"

	// ActiveStateActivating means the unit is on its way to active
	ActiveStateActivating ActiveState = "activating"

	// ActiveStateDeactivating means the unit is on its way to inactive
	ActiveStateDeactivating ActiveState = "deactivating"
)

var allActiveStates = []ActiveState{
	ActiveStateActive,
	ActiveStateReloading,
	ActiveStateInactive,
	ActiveStateFailed,
	ActiveStateActivating,
	ActiveStateDeactivating,
}

func (s ActiveState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the six systemd active states.
func (s ActiveState) IsValid() bool {
	for _, known := range allActiveStates {
		if s == known {
			return true
		}
	}
	return false
}

// ParseActiveState accepts any casing of a state name.
func ParseActiveState(value string) (ActiveState, error) {
	state := ActiveState(strings.ToLower(strings.TrimSpace(value)))
	if !state.IsValid() {
		return "", errors.NewValidationError(
			fmt.Sprintf("invalid active state '%s'", value),
			nil,
		).WithContext("supported_states", "active, reloading, inactive, failed, activating, deactivating")
	}
	return state, nil
}

// AllActiveStates lists every active state.
func AllActiveStates() []ActiveState {
	states := make([]ActiveState, len(allActiveStates))
	copy(states, allActiveStates)
	return states
}
