package bus

import (
	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/power"
)

// LoginManager is exported at /org/freedesktop/login1 as org.freedesktop.login1.Manager.
type LoginManager struct {
	power *power.Manager
}

func NewLoginManager(manager *power.Manager) *LoginManager {
	return &LoginManager{power: manager}
}

func (l *LoginManager) Reboot(interactive bool) *dbus.Error {
	l.power.Reboot(interactive)
	return nil
}

func (l *LoginManager) PowerOff(interactive bool) *dbus.Error {
	l.power.PowerOff(interactive)
	return nil
}

// MockReset puts the machine back to ready. Not part of logind.
func (l *LoginManager) MockReset() *dbus.Error {
	l.power.Reset()
	return nil
}
