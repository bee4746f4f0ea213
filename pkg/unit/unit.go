package unit

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/logging"
)

// Transition records one change of a unit's active state.
type Transition struct {
	From      ActiveState
	To        ActiveState
	Operation string
	Timestamp time.Time
}

// StateInfo is a consistent snapshot of a unit.
type StateInfo struct {
	Name            string
	Path            dbus.ObjectPath
	ActiveState     ActiveState
	LastTransition  *Transition
	TransitionCount int
}

// Unit is one mock service. It is created and owned by a Registry; callers outside the
// package only read it.
type Unit struct {
	name   string
	path   dbus.ObjectPath
	logger logging.Logger

	mutex          sync.RWMutex
	activeState    ActiveState
	lastTransition *Transition
	transitions    int
}

func newUnit(name string, path dbus.ObjectPath, logger logging.Logger) *Unit {
	return &Unit{
		name:        name,
		path:        path,
		logger:      logger,
		activeState: ActiveStateInactive,
	}
}

// Name returns the name the unit was added with, original casing preserved.
func (u *Unit) Name() string {
	return u.name
}

// Path returns the unit's object path.
func (u *Unit) Path() dbus.ObjectPath {
	return u.path
}

// ActiveState returns the current active state (thread-safe)
func (u *Unit) ActiveState() ActiveState {
	u.mutex.RLock()
	defer u.mutex.RUnlock()
	return u.activeState
}

// PartOf is always empty; no dependency graph is modelled.
func (u *Unit) PartOf() []string {
	return []string{}
}

// StateInfo returns name, path and state under one lock.
func (u *Unit) StateInfo() StateInfo {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	var last *Transition
	if u.lastTransition != nil {
		copied := *u.lastTransition
		last = &copied
	}
	return StateInfo{
		Name:            u.name,
		Path:            u.path,
		ActiveState:     u.activeState,
		LastTransition:  last,
		TransitionCount: u.transitions,
	}
}

// transition assigns the new state unconditionally. Every state may move to every other one,
// including itself. notify runs under the unit lock so observers see changes in order.
func (u *Unit) transition(to ActiveState, operation string, notify func(u *Unit, from, to ActiveState)) ActiveState {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	from := u.activeState
	u.activeState = to
	u.transitions++
	u.lastTransition = &Transition{
		From:      from,
		To:        to,
		Operation: operation,
		Timestamp: time.Now(),
	}

	u.logger.Debugf("Unit state transition, %s->%s, operation: %s", from, to, operation)

	if notify != nil {
		notify(u, from, to)
	}
	return from
}
