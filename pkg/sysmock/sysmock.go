package sysmock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
	corelogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	mockcontrol "github.com/core-tools/hsu-sysmock/pkg/control"
	"github.com/core-tools/hsu-sysmock/pkg/domain"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/power"
	"github.com/core-tools/hsu-sysmock/pkg/readiness"
	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

type MockOptions struct {
	Bus bus.Options
	// Port of the gRPC control endpoint; 0 disables it.
	Port                 int
	ReadyFile            string
	ForceShutdownTimeout time.Duration
}

// MockState represents the lifecycle of the mock server
type MockState string

const (
	MockStateNotStarted MockState = "not_started"
	MockStateRunning    MockState = "running"
	MockStateStopping   MockState = "stopping"
	MockStateStopped    MockState = "stopped"
)

// Mock owns the unit registry and power manager and serves them on the bus and, optionally,
// on the control endpoint.
type Mock struct {
	options   MockOptions
	registry  *unit.Registry
	power     *power.Manager
	busServer *bus.Server
	server    corecontrol.Server
	logger    logging.Logger
	mutex     sync.Mutex
	state     MockState
}

var _ domain.Contract = (*Mock)(nil)

func NewMock(options MockOptions, coreLogger corelogging.Logger, logger logging.Logger) (*Mock, error) {
	registry := unit.NewRegistry(logging.WithPrefix(logger, "module", "registry"))
	powerManager := power.NewManager(logging.WithPrefix(logger, "module", "power"))
	busServer := bus.NewServer(options.Bus, registry, powerManager, logging.WithPrefix(logger, "module", "bus"))

	mock := &Mock{
		options:   options,
		registry:  registry,
		power:     powerManager,
		busServer: busServer,
		logger:    logger,
		state:     MockStateNotStarted,
	}

	if options.Port != 0 {
		server, err := corecontrol.NewServer(corecontrol.ServerOptions{Port: options.Port}, coreLogger)
		if err != nil {
			return nil, errors.NewInternalError("failed to create control server", err).WithContext("port", options.Port)
		}

		coreHandler := coredomain.NewDefaultHandler(coreLogger)
		corecontrol.RegisterGRPCServerHandler(server.GRPC(), coreHandler, coreLogger)
		mockcontrol.RegisterGRPCServerHandler(server.GRPC(), mock, logging.WithPrefix(logger, "module", "control"))

		mock.server = server
	}

	return mock, nil
}

func (m *Mock) Registry() *unit.Registry {
	return m.registry
}

func (m *Mock) Power() *power.Manager {
	return m.power
}

// Seed adds the configured units before the bus names are requested, so they are visible to
// the first client. A non-inactive active state is applied right after the add. A failing unit
// does not stop the others; every failure is returned together.
func (m *Mock) Seed(units []UnitConfig) error {
	errorCollection := errors.NewErrorCollection()
	for _, config := range units {
		if err := m.seedUnit(config); err != nil {
			m.logger.Errorf("Failed to seed unit, unit: %s, error: %v", config.Name, err)
			errorCollection.Add(errors.NewValidationError(fmt.Sprintf("failed to seed unit: %s", config.Name), err).
				WithContext("unit", config.Name))
		}
	}

	if errorCollection.HasErrors() {
		m.logger.Errorf("Some units failed to seed: %v", errorCollection.Error())
		return errorCollection.ToError()
	}

	m.logger.Infof("Seeded %d units", len(units))
	return nil
}

func (m *Mock) seedUnit(config UnitConfig) error {
	state := unit.ActiveStateInactive
	if config.ActiveState != "" {
		parsed, err := unit.ParseActiveState(config.ActiveState)
		if err != nil {
			return err
		}
		state = parsed
	}

	if _, err := m.registry.AddUnit(config.Name); err != nil {
		return err
	}
	if state == unit.ActiveStateInactive {
		return nil
	}
	return m.registry.SetUnitState(config.Name, state)
}

// Start claims the bus names, starts the control endpoint and finally writes the ready file.
func (m *Mock) Start(ctx context.Context) error {
	m.logger.Infof("Starting sysmock...")

	if err := m.busServer.Start(ctx); err != nil {
		return err
	}

	if m.server != nil {
		m.server.Start(ctx)
	}

	if m.options.ReadyFile != "" {
		info := readiness.Info{
			PID:   os.Getpid(),
			Bus:   m.busServer.Address(),
			Units: m.registry.Len(),
		}
		if err := readiness.Write(m.options.ReadyFile, info); err != nil {
			if stopErr := m.stopServers(ctx); stopErr != nil {
				m.logger.Warnf("Failed to stop servers after ready file error: %v", stopErr)
			}
			return err
		}
		m.logger.Infof("Ready file written, path: %s", m.options.ReadyFile)
	}

	m.setState(MockStateRunning)
	m.logger.Infof("Sysmock started")
	return nil
}

// Stop tears everything down even when a step fails, and returns every failure together.
func (m *Mock) Stop(ctx context.Context) error {
	m.logger.Infof("Stopping sysmock...")
	m.setState(MockStateStopping)

	errorCollection := errors.NewErrorCollection()

	if m.options.ReadyFile != "" {
		if err := readiness.Remove(m.options.ReadyFile); err != nil {
			m.logger.Warnf("Failed to remove ready file: %v", err)
			errorCollection.Add(err)
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	forceShutdownTimeout := m.options.ForceShutdownTimeout
	if forceShutdownTimeout <= 0 {
		forceShutdownTimeout = DefaultForceShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, forceShutdownTimeout)
	defer cancel()

	errorCollection.Add(m.stopServers(ctx))

	m.setState(MockStateStopped)
	if errorCollection.HasErrors() {
		m.logger.Errorf("Sysmock stopped with errors: %v", errorCollection.Error())
		return errorCollection.ToError()
	}
	m.logger.Infof("Sysmock stopped")
	return nil
}

// Status implements domain.Contract.
func (m *Mock) Status(ctx context.Context) (*domain.Status, error) {
	infos := m.registry.Units()

	status := &domain.Status{
		PowerState: m.power.CurrentState().String(),
		Units:      make(map[string]string, len(infos)),
	}
	for _, info := range infos {
		status.Units[info.Name] = info.ActiveState.String()
	}
	return status, nil
}

// Reset implements domain.Contract: power back to ready and no units left.
func (m *Mock) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("reset was cancelled", err)
	}

	removed := m.registry.Clear()
	m.power.Reset()

	m.logger.Infof("Sysmock reset, removed units: %d", removed)
	return nil
}

func (m *Mock) GetState() MockState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *Mock) stopServers(ctx context.Context) error {
	if m.server != nil {
		m.server.Shutdown(ctx)
	}
	return m.busServer.Stop()
}

func (m *Mock) setState(state MockState) {
	m.mutex.Lock()
	m.state = state
	m.mutex.Unlock()
}
