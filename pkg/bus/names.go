// Package bus serves the mock service manager and login manager on D-Bus.
//
// Errors use the names systemd itself returns (org.freedesktop.systemd1.NoSuchUnit,
// UnitAlreadyExists, InvalidPath) instead of the org.freedesktop.DBus.Error.* prefix that
// earlier mock implementations used. Clients that switch on the older names must match the
// systemd1 ones.
package bus

import "github.com/godbus/dbus/v5"

const (
	ServiceManagerName      = "org.freedesktop.systemd1"
	ServiceManagerPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	ServiceManagerInterface = "org.freedesktop.systemd1.Manager"
	UnitInterface           = "org.freedesktop.systemd1.Unit"

	LoginManagerName      = "org.freedesktop.login1"
	LoginManagerPath      = dbus.ObjectPath("/org/freedesktop/login1")
	LoginManagerInterface = "org.freedesktop.login1.Manager"

	PropertiesInterface     = "org.freedesktop.DBus.Properties"
	IntrospectableInterface = "org.freedesktop.DBus.Introspectable"
)

// D-Bus error names returned to callers. The systemd ones match what the real manager uses,
// so clients that switch on error names behave the same.
const (
	ErrorNameNoSuchUnit        = "org.freedesktop.systemd1.NoSuchUnit"
	ErrorNameUnitAlreadyExists = "org.freedesktop.systemd1.UnitAlreadyExists"
	ErrorNameInvalidPath       = "org.freedesktop.systemd1.InvalidPath"
	ErrorNameInvalidArgs       = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrorNameFailed            = "org.freedesktop.DBus.Error.Failed"
)
