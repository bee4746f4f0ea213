package bus

import (
	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

// ServiceManager is exported at /org/freedesktop/systemd1 as org.freedesktop.systemd1.Manager.
// Every exported method is a bus method; godbus runs each call on its own goroutine.
type ServiceManager struct {
	registry *unit.Registry
	logger   logging.Logger
}

func NewServiceManager(registry *unit.Registry, logger logging.Logger) *ServiceManager {
	return &ServiceManager{
		registry: registry,
		logger:   logger,
	}
}

// MockAddUnit creates an inactive unit. Not part of systemd.
func (s *ServiceManager) MockAddUnit(name string) (dbus.ObjectPath, *dbus.Error) {
	path, err := s.registry.AddUnit(name)
	if err != nil {
		return "", toDBusError(err)
	}
	return path, nil
}

// MockDelUnit removes a unit and reports whether it existed. Not part of systemd.
func (s *ServiceManager) MockDelUnit(name string) (bool, *dbus.Error) {
	removed, err := s.registry.RemoveUnit(name)
	if err != nil {
		return false, toDBusError(err)
	}
	return removed, nil
}

// MockSetUnitState forces a unit into any active state, e.g. failed. Not part of systemd.
func (s *ServiceManager) MockSetUnitState(name, state string) *dbus.Error {
	activeState, err := unit.ParseActiveState(state)
	if err != nil {
		return toDBusError(err)
	}
	return toDBusError(s.registry.SetUnitState(name, activeState))
}

func (s *ServiceManager) GetUnit(name string) (dbus.ObjectPath, *dbus.Error) {
	path, err := s.registry.GetUnit(name)
	if err != nil {
		s.logger.Debugf("GetUnit failed, unit: %s, error: %v", name, err)
		return "", toDBusError(err)
	}
	return path, nil
}

func (s *ServiceManager) StartUnit(name, mode string) (dbus.ObjectPath, *dbus.Error) {
	job, err := s.registry.StartUnit(name, mode)
	if err != nil {
		return "", toDBusError(err)
	}
	return job, nil
}

func (s *ServiceManager) StopUnit(name, mode string) (dbus.ObjectPath, *dbus.Error) {
	job, err := s.registry.StopUnit(name, mode)
	if err != nil {
		return "", toDBusError(err)
	}
	return job, nil
}

func (s *ServiceManager) RestartUnit(name, mode string) (dbus.ObjectPath, *dbus.Error) {
	job, err := s.registry.RestartUnit(name, mode)
	if err != nil {
		return "", toDBusError(err)
	}
	return job, nil
}
