package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/power"
	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

const (
	// AddressSystem and AddressSession select the well-known buses; anything else is a
	// D-Bus address such as unix:path=/tmp/bus.
	AddressSystem  = "system"
	AddressSession = "session"
)

type Options struct {
	Address            string
	ServiceManagerName string
	LoginManagerName   string
}

// Server owns one bus connection per service name, as the real services are separate
// processes.
type Server struct {
	options  Options
	registry *unit.Registry
	power    *power.Manager
	logger   logging.Logger

	mutex       sync.Mutex
	started     bool
	systemdConn *dbus.Conn
	loginConn   *dbus.Conn
	units       *unitObjects
}

func NewServer(options Options, registry *unit.Registry, powerManager *power.Manager, logger logging.Logger) *Server {
	if options.Address == "" {
		options.Address = AddressSystem
	}
	if options.ServiceManagerName == "" {
		options.ServiceManagerName = ServiceManagerName
	}
	if options.LoginManagerName == "" {
		options.LoginManagerName = LoginManagerName
	}
	return &Server{
		options:  options,
		registry: registry,
		power:    powerManager,
		logger:   logger,
	}
}

// Start exports every object and only then requests the bus names, so the registry's current
// units are reachable before any client can address the services.
func (s *Server) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return errors.NewValidationError("bus server already started", nil)
	}

	s.logger.Infof("Connecting to bus, address: %s", s.options.Address)

	systemdConn, err := Connect(ctx, s.options.Address)
	if err != nil {
		return errors.NewNetworkError("failed to connect service manager to bus", err).WithContext("address", s.options.Address)
	}
	loginConn, err := Connect(ctx, s.options.Address)
	if err != nil {
		systemdConn.Close()
		return errors.NewNetworkError("failed to connect login manager to bus", err).WithContext("address", s.options.Address)
	}

	s.systemdConn = systemdConn
	s.loginConn = loginConn

	if err := s.serveServiceManager(); err != nil {
		s.closeUnsafe()
		return err
	}
	if err := s.serveLoginManager(); err != nil {
		s.closeUnsafe()
		return err
	}

	s.started = true
	s.logger.Infof("Bus server started, service manager: %s, login manager: %s",
		s.options.ServiceManagerName, s.options.LoginManagerName)
	return nil
}

// Stop releases the names, drops every exported object and closes the connections. Failing to
// release a name does not stop the teardown; every failure is returned together.
func (s *Server) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.started {
		return nil
	}

	errorCollection := errors.NewErrorCollection()
	releases := []struct {
		conn *dbus.Conn
		name string
	}{
		{s.systemdConn, s.options.ServiceManagerName},
		{s.loginConn, s.options.LoginManagerName},
	}
	for _, release := range releases {
		if _, err := release.conn.ReleaseName(release.name); err != nil {
			s.logger.Warnf("Failed to release name %s: %v", release.name, err)
			errorCollection.Add(errors.NewNetworkError("failed to release bus name", err).WithContext("name", release.name))
		}
	}
	if s.units != nil {
		s.units.unexportAll()
	}

	s.closeUnsafe()
	s.started = false
	s.logger.Infof("Bus server stopped")
	return errorCollection.ToError()
}

// Address returns the bus the server was configured for.
func (s *Server) Address() string {
	return s.options.Address
}

func (s *Server) serveServiceManager() error {
	conn := s.systemdConn
	manager := NewServiceManager(s.registry, logging.WithPrefix(s.logger, "module", "service-manager"))

	if err := conn.Export(manager, ServiceManagerPath, ServiceManagerInterface); err != nil {
		return errors.NewInternalError("failed to export service manager", err)
	}

	node := &introspect.Node{
		Name: string(ServiceManagerPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    ServiceManagerInterface,
				Methods: introspect.Methods(manager),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ServiceManagerPath, IntrospectableInterface); err != nil {
		return errors.NewInternalError("failed to export service manager introspection", err)
	}

	// replays the units seeded so far
	s.units = newUnitObjects(conn, logging.WithPrefix(s.logger, "module", "unit-objects"))
	if err := s.registry.SetListener(s.units); err != nil {
		return err
	}

	return requestName(conn, s.options.ServiceManagerName)
}

func (s *Server) serveLoginManager() error {
	conn := s.loginConn
	manager := NewLoginManager(s.power)

	if err := conn.Export(manager, LoginManagerPath, LoginManagerInterface); err != nil {
		return errors.NewInternalError("failed to export login manager", err)
	}

	props, err := prop.Export(conn, LoginManagerPath, loginManagerPropertyMap(s.power.CurrentState().String()))
	if err != nil {
		return errors.NewInternalError("failed to export login manager properties", err)
	}
	s.power.SetListener(func(from, to power.State) {
		props.SetMust(LoginManagerInterface, "MockState", to.String())
	})

	node := &introspect.Node{
		Name: string(LoginManagerPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       LoginManagerInterface,
				Methods:    introspect.Methods(manager),
				Properties: props.Introspection(LoginManagerInterface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), LoginManagerPath, IntrospectableInterface); err != nil {
		return errors.NewInternalError("failed to export login manager introspection", err)
	}

	return requestName(conn, s.options.LoginManagerName)
}

func (s *Server) closeUnsafe() {
	_ = s.registry.SetListener(nil)
	s.power.SetListener(nil)

	if s.systemdConn != nil {
		s.systemdConn.Close()
		s.systemdConn = nil
	}
	if s.loginConn != nil {
		s.loginConn.Close()
		s.loginConn = nil
	}
	s.units = nil
}

// Connect opens an authenticated connection to the bus named by address. The connection is
// closed when ctx is done.
func Connect(ctx context.Context, address string) (*dbus.Conn, error) {
	switch address {
	case AddressSystem, "":
		return dbus.ConnectSystemBus(dbus.WithContext(ctx))
	case AddressSession:
		return dbus.ConnectSessionBus(dbus.WithContext(ctx))
	default:
		return dbus.Connect(address, dbus.WithContext(ctx))
	}
}

func requestName(conn *dbus.Conn, name string) error {
	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return errors.NewNetworkError("failed to request bus name", err).WithContext("name", name)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.NewConflictError(fmt.Sprintf("bus name %s is already owned", name), nil).
			WithContext("name", name).
			WithContext("reply", uint32(reply))
	}
	return nil
}
