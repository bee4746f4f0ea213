package power

import (
	"sync"

	"github.com/core-tools/hsu-sysmock/pkg/logging"
)

// State is the mock machine's power state.
type State string

const (
	// StateReady is the initial state and the target of Reset
	StateReady State = "ready"

	// StateRebooting is entered by Reboot
	StateRebooting State = "rebooting"

	// StateOff is entered by PowerOff
	StateOff State = "off"
)

func (s State) String() string {
	return string(s)
}

// Listener is notified of every transition while the manager is locked.
type Listener func(from, to State)

// Manager tracks the power state. Every transition succeeds and none is terminal.
type Manager struct {
	logger   logging.Logger
	mutex    sync.RWMutex
	state    State
	listener Listener
}

func NewManager(logger logging.Logger) *Manager {
	return &Manager{
		logger: logger,
		state:  StateReady,
	}
}

// SetListener installs the transition observer. It must not call back into the Manager.
func (m *Manager) SetListener(listener Listener) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listener = listener
}

// Reboot moves to rebooting. interactive is accepted for interface compatibility only.
func (m *Manager) Reboot(interactive bool) {
	m.transition(StateRebooting)
	m.logger.Infof("system is rebooting")
}

// PowerOff moves to off. interactive is accepted for interface compatibility only.
func (m *Manager) PowerOff(interactive bool) {
	m.transition(StateOff)
	m.logger.Infof("system is off")
}

// Reset re-arms the machine between test cases.
func (m *Manager) Reset() {
	m.transition(StateReady)
	m.logger.Infof("system is ready")
}

// CurrentState returns the current power state (thread-safe)
func (m *Manager) CurrentState() State {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.state
}

func (m *Manager) transition(to State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	from := m.state
	m.state = to
	if m.listener != nil {
		m.listener(from, to)
	}
}
