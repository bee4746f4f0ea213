package unit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
)

// Listener observes registry changes. Callbacks run while the registry (and, for state changes,
// the unit) is locked, so they must not call back into the Registry. A UnitAdded error rejects
// the unit.
type Listener interface {
	UnitAdded(u *Unit) error
	UnitRemoved(u *Unit)
	UnitStateChanged(u *Unit, from, to ActiveState)
}

// Registry owns every mock unit, keyed by normalized object path.
type Registry struct {
	logger   logging.Logger
	mutex    sync.RWMutex
	units    map[dbus.ObjectPath]*Unit
	listener Listener
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		logger: logger,
		units:  make(map[dbus.ObjectPath]*Unit),
	}
}

// SetListener installs the observer and replays UnitAdded for every unit already present, in
// path order, under the same lock. If a replay fails the listener is not installed. Pass nil to
// remove it.
func (r *Registry) SetListener(listener Listener) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.listener = nil
	if listener == nil {
		return nil
	}

	paths := make([]dbus.ObjectPath, 0, len(r.units))
	for path := range r.units {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	for _, path := range paths {
		if err := listener.UnitAdded(r.units[path]); err != nil {
			return errors.NewInternalError("failed to replay unit to listener", err).
				WithContext("path", string(path))
		}
	}

	r.listener = listener
	return nil
}

// AddUnit creates an inactive unit. Adding a name whose path is already taken fails with a
// conflict error and changes nothing.
func (r *Registry) AddUnit(name string) (dbus.ObjectPath, error) {
	path, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, exists := r.units[path]; exists {
		r.logger.Errorf("unit already exists: %s", name)
		return "", errors.NewConflictError(fmt.Sprintf("unit '%s' already exists", name), nil).
			WithContext("unit", name).
			WithContext("existing_unit", existing.Name()).
			WithContext("path", string(path))
	}

	u := newUnit(name, path, logging.WithPrefix(r.logger, "unit", name))
	if r.listener != nil {
		if err := r.listener.UnitAdded(u); err != nil {
			r.logger.Errorf("listener rejected unit '%s': %v", name, err)
			return "", errors.NewInternalError(fmt.Sprintf("failed to publish unit '%s'", name), err).
				WithContext("unit", name).
				WithContext("path", string(path))
		}
	}
	r.units[path] = u

	r.logger.Infof("created unit '%s' with path '%s'", name, path)
	return path, nil
}

// RemoveUnit deletes the unit and reports whether anything was removed. Removing an unknown
// unit is not an error.
func (r *Registry) RemoveUnit(name string) (bool, error) {
	path, err := NormalizeName(name)
	if err != nil {
		return false, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	u, exists := r.units[path]
	if !exists {
		return false, nil
	}

	delete(r.units, path)
	if r.listener != nil {
		r.listener.UnitRemoved(u)
	}

	r.logger.Infof("removed unit '%s'", name)
	return true, nil
}

// GetUnit returns the unit's path, or a not-found error.
func (r *Registry) GetUnit(name string) (dbus.ObjectPath, error) {
	path, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if _, exists := r.units[path]; !exists {
		return "", unitNotFound(name, path)
	}
	return path, nil
}

// Lookup returns the unit itself for read access.
func (r *Registry) Lookup(name string) (*Unit, error) {
	path, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return r.LookupPath(path)
}

// LookupPath finds a unit by object path.
func (r *Registry) LookupPath(path dbus.ObjectPath) (*Unit, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, exists := r.units[path]
	if !exists {
		return nil, unitNotFound(string(path), path)
	}
	return u, nil
}

// StartUnit sets the unit active from any state. mode is accepted and ignored.
func (r *Registry) StartUnit(name, mode string) (dbus.ObjectPath, error) {
	if err := r.transitionUnit(name, ActiveStateActive, "start"); err != nil {
		return "", err
	}
	r.logger.Infof("started unit '%s'", name)
	return JobPath, nil
}

// StopUnit sets the unit inactive from any state. mode is accepted and ignored.
func (r *Registry) StopUnit(name, mode string) (dbus.ObjectPath, error) {
	if err := r.transitionUnit(name, ActiveStateInactive, "stop"); err != nil {
		return "", err
	}
	r.logger.Infof("stopped unit '%s'", name)
	return JobPath, nil
}

// RestartUnit sets the unit active directly, without passing through deactivating/activating.
func (r *Registry) RestartUnit(name, mode string) (dbus.ObjectPath, error) {
	if err := r.transitionUnit(name, ActiveStateActive, "restart"); err != nil {
		return "", err
	}
	r.logger.Infof("restarted unit '%s'", name)
	return JobPath, nil
}

// SetUnitState forces any active state, including failed or reloading, which the standard
// verbs cannot reach.
func (r *Registry) SetUnitState(name string, state ActiveState) error {
	state, err := ParseActiveState(string(state))
	if err != nil {
		return err
	}
	if err := r.transitionUnit(name, state, "set"); err != nil {
		return err
	}
	r.logger.Infof("set unit '%s' to '%s'", name, state)
	return nil
}

// transitionUnit keeps the map read-locked for the whole assignment, so a concurrent
// RemoveUnit either happens before the lookup or after the new state is in place.
func (r *Registry) transitionUnit(name string, to ActiveState, operation string) error {
	path, err := NormalizeName(name)
	if err != nil {
		return err
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, exists := r.units[path]
	if !exists {
		return unitNotFound(name, path)
	}

	var notify func(u *Unit, from, to ActiveState)
	if r.listener != nil {
		notify = r.listener.UnitStateChanged
	}
	u.transition(to, operation, notify)
	return nil
}

// Units returns a snapshot of every unit, sorted by path.
func (r *Registry) Units() []StateInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	infos := make([]StateInfo, 0, len(r.units))
	for _, u := range r.units {
		infos = append(infos, u.StateInfo())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos
}

// Len returns the number of units.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.units)
}

// Clear removes every unit and returns how many were removed.
func (r *Registry) Clear() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := len(r.units)
	for path, u := range r.units {
		delete(r.units, path)
		if r.listener != nil {
			r.listener.UnitRemoved(u)
		}
	}

	if removed > 0 {
		r.logger.Infof("removed all %d units", removed)
	}
	return removed
}

func unitNotFound(name string, path dbus.ObjectPath) *errors.DomainError {
	return errors.NewNotFoundError(fmt.Sprintf("unit '%s' not found", name), nil).
		WithContext("unit", name).
		WithContext("path", string(path))
}
