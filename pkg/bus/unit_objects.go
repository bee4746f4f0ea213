package bus

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

// unitObjects exports one bus object per unit and keeps its properties in step with the
// registry. It is installed as the registry's listener, so every callback already runs under
// the registry lock.
type unitObjects struct {
	conn   *dbus.Conn
	logger logging.Logger

	mutex sync.Mutex
	props map[dbus.ObjectPath]*prop.Properties
}

var _ unit.Listener = (*unitObjects)(nil)

func newUnitObjects(conn *dbus.Conn, logger logging.Logger) *unitObjects {
	return &unitObjects{
		conn:   conn,
		logger: logger,
		props:  make(map[dbus.ObjectPath]*prop.Properties),
	}
}

// UnitAdded exports the unit's object. On failure nothing stays exported and the registry drops
// the unit.
func (o *unitObjects) UnitAdded(u *unit.Unit) error {
	info := u.StateInfo()

	props, err := prop.Export(o.conn, info.Path, unitPropertyMap(info))
	if err != nil {
		o.logger.Errorf("Failed to export unit properties, unit: %s, path: %s, error: %v", info.Name, info.Path, err)
		return errors.NewInternalError("failed to export unit properties", err).
			WithContext("unit", info.Name).
			WithContext("path", string(info.Path))
	}

	node := &introspect.Node{
		Name: string(info.Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       UnitInterface,
				Properties: props.Introspection(UnitInterface),
			},
		},
	}
	if err := o.conn.Export(introspect.NewIntrospectable(node), info.Path, IntrospectableInterface); err != nil {
		o.logger.Errorf("Failed to export unit introspection, unit: %s, error: %v", info.Name, err)
		o.unexport(info.Path)
		return errors.NewInternalError("failed to export unit introspection", err).
			WithContext("unit", info.Name).
			WithContext("path", string(info.Path))
	}

	o.mutex.Lock()
	o.props[info.Path] = props
	o.mutex.Unlock()

	o.logger.Debugf("Exported unit object, unit: %s, path: %s", info.Name, info.Path)
	return nil
}

func (o *unitObjects) UnitRemoved(u *unit.Unit) {
	path := u.Path()

	o.mutex.Lock()
	delete(o.props, path)
	o.mutex.Unlock()

	o.unexport(path)

	o.logger.Debugf("Unexported unit object, unit: %s, path: %s", u.Name(), path)
}

// UnitStateChanged runs under the unit lock; it uses to and never reads the unit back.
func (o *unitObjects) UnitStateChanged(u *unit.Unit, from, to unit.ActiveState) {
	o.mutex.Lock()
	props, exists := o.props[u.Path()]
	o.mutex.Unlock()

	if !exists {
		return
	}
	props.SetMust(UnitInterface, "ActiveState", to.String())
}

// unexportAll drops every unit object, used on shutdown.
func (o *unitObjects) unexportAll() {
	o.mutex.Lock()
	paths := make([]dbus.ObjectPath, 0, len(o.props))
	for path := range o.props {
		paths = append(paths, path)
	}
	o.props = make(map[dbus.ObjectPath]*prop.Properties)
	o.mutex.Unlock()

	for _, path := range paths {
		o.unexport(path)
	}
}

func (o *unitObjects) unexport(path dbus.ObjectPath) {
	for _, iface := range []string{PropertiesInterface, IntrospectableInterface} {
		if err := o.conn.Export(nil, path, iface); err != nil {
			o.logger.Warnf("Failed to unexport unit object, path: %s, interface: %s, error: %v", path, iface, err)
		}
	}
}
