package client

import (
	"context"
	"fmt"
	"path"
	"strconv"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/power"
	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

type Options struct {
	Address            string
	ServiceManagerName string
	LoginManagerName   string
}

// Client talks to a running mock over the bus. The standard unit verbs go through go-systemd,
// the same library a system under test would use, whenever the mock owns the real service
// manager name. Under a custom name they are plain method calls.
type Client struct {
	options Options
	logger  logging.Logger
	conn    *dbus.Conn
	systemd *sddbus.Conn
}

// UnitStatus is what a Unit object reports over the bus.
type UnitStatus struct {
	Name        string
	Path        dbus.ObjectPath
	ActiveState unit.ActiveState
	PartOf      []string
}

// New connects to the bus. The connections are closed when ctx is done or on Close.
func New(ctx context.Context, options Options, logger logging.Logger) (*Client, error) {
	if options.Address == "" {
		options.Address = bus.AddressSystem
	}
	if options.ServiceManagerName == "" {
		options.ServiceManagerName = bus.ServiceManagerName
	}
	if options.LoginManagerName == "" {
		options.LoginManagerName = bus.LoginManagerName
	}

	conn, err := bus.Connect(ctx, options.Address)
	if err != nil {
		return nil, errors.NewNetworkError("failed to connect to bus", err).WithContext("address", options.Address)
	}

	client := &Client{
		options: options,
		logger:  logger,
		conn:    conn,
	}

	if options.ServiceManagerName == bus.ServiceManagerName {
		systemd, err := sddbus.NewConnection(func() (*dbus.Conn, error) {
			return bus.Connect(ctx, options.Address)
		})
		if err != nil {
			conn.Close()
			return nil, errors.NewNetworkError("failed to open service manager connection", err).WithContext("address", options.Address)
		}
		client.systemd = systemd
	}

	logger.Debugf("Connected to bus, address: %s, service manager: %s, login manager: %s",
		options.Address, options.ServiceManagerName, options.LoginManagerName)
	return client, nil
}

func (c *Client) Close() {
	if c.systemd != nil {
		c.systemd.Close()
	}
	c.conn.Close()
}

func (c *Client) AddUnit(ctx context.Context, name string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	if err := c.callManager(ctx, "MockAddUnit", name).Store(&path); err != nil {
		return "", fromDBusError(err, name)
	}
	return path, nil
}

func (c *Client) RemoveUnit(ctx context.Context, name string) (bool, error) {
	var removed bool
	if err := c.callManager(ctx, "MockDelUnit", name).Store(&removed); err != nil {
		return false, fromDBusError(err, name)
	}
	return removed, nil
}

func (c *Client) GetUnit(ctx context.Context, name string) (dbus.ObjectPath, error) {
	var path dbus.ObjectPath
	if err := c.callManager(ctx, "GetUnit", name).Store(&path); err != nil {
		return "", fromDBusError(err, name)
	}
	return path, nil
}

func (c *Client) SetUnitState(ctx context.Context, name string, state unit.ActiveState) error {
	if err := c.callManager(ctx, "MockSetUnitState", name, state.String()).Store(); err != nil {
		return fromDBusError(err, name)
	}
	return nil
}

// StartUnit returns the job id, which the mock always reports as 1.
func (c *Client) StartUnit(ctx context.Context, name, mode string) (int, error) {
	if c.systemd != nil {
		job, err := c.systemd.StartUnitContext(ctx, name, mode, nil)
		return job, fromDBusError(err, name)
	}
	return c.unitJob(ctx, "StartUnit", name, mode)
}

func (c *Client) StopUnit(ctx context.Context, name, mode string) (int, error) {
	if c.systemd != nil {
		job, err := c.systemd.StopUnitContext(ctx, name, mode, nil)
		return job, fromDBusError(err, name)
	}
	return c.unitJob(ctx, "StopUnit", name, mode)
}

func (c *Client) RestartUnit(ctx context.Context, name, mode string) (int, error) {
	if c.systemd != nil {
		job, err := c.systemd.RestartUnitContext(ctx, name, mode, nil)
		return job, fromDBusError(err, name)
	}
	return c.unitJob(ctx, "RestartUnit", name, mode)
}

// UnitStatus resolves the unit with GetUnit and reads its properties from the returned path,
// since the mock's paths do not follow systemd's own name escaping.
func (c *Client) UnitStatus(ctx context.Context, name string) (*UnitStatus, error) {
	path, err := c.GetUnit(ctx, name)
	if err != nil {
		return nil, err
	}

	var props map[string]interface{}
	if c.systemd != nil {
		props, err = c.systemd.GetUnitPathPropertiesContext(ctx, path)
	} else {
		props, err = c.getAll(ctx, path)
	}
	if err != nil {
		return nil, fromDBusError(err, name)
	}

	status := &UnitStatus{Name: name, Path: path, PartOf: []string{}}
	if id, ok := props["Id"].(string); ok {
		status.Name = id
	}
	if state, ok := props["ActiveState"].(string); ok {
		status.ActiveState = unit.ActiveState(state)
	}
	if partOf, ok := props["PartOf"].([]string); ok {
		status.PartOf = partOf
	}
	return status, nil
}

func (c *Client) Reboot(ctx context.Context, interactive bool) error {
	return c.callLogin(ctx, "Reboot", interactive)
}

func (c *Client) PowerOff(ctx context.Context, interactive bool) error {
	return c.callLogin(ctx, "PowerOff", interactive)
}

func (c *Client) ResetPower(ctx context.Context) error {
	return c.callLogin(ctx, "MockReset")
}

func (c *Client) PowerState(ctx context.Context) (power.State, error) {
	obj := c.conn.Object(c.options.LoginManagerName, bus.LoginManagerPath)

	var variant dbus.Variant
	err := obj.CallWithContext(ctx, bus.PropertiesInterface+".Get", 0, bus.LoginManagerInterface, "MockState").Store(&variant)
	if err != nil {
		return "", fromDBusError(err, "")
	}
	state, ok := variant.Value().(string)
	if !ok {
		return "", errors.NewInternalError(fmt.Sprintf("unexpected MockState type %T", variant.Value()), nil)
	}
	return power.State(state), nil
}

func (c *Client) callManager(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	obj := c.conn.Object(c.options.ServiceManagerName, bus.ServiceManagerPath)
	return obj.CallWithContext(ctx, bus.ServiceManagerInterface+"."+method, 0, args...)
}

func (c *Client) callLogin(ctx context.Context, method string, args ...interface{}) error {
	obj := c.conn.Object(c.options.LoginManagerName, bus.LoginManagerPath)
	if err := obj.CallWithContext(ctx, bus.LoginManagerInterface+"."+method, 0, args...).Store(); err != nil {
		return fromDBusError(err, "")
	}
	return nil
}

func (c *Client) unitJob(ctx context.Context, method, name, mode string) (int, error) {
	var job dbus.ObjectPath
	if err := c.callManager(ctx, method, name, mode).Store(&job); err != nil {
		return 0, fromDBusError(err, name)
	}
	// same parse as go-systemd: a malformed job path yields 0
	id, _ := strconv.Atoi(path.Base(string(job)))
	return id, nil
}

func (c *Client) getAll(ctx context.Context, unitPath dbus.ObjectPath) (map[string]interface{}, error) {
	obj := c.conn.Object(c.options.ServiceManagerName, unitPath)

	var variants map[string]dbus.Variant
	if err := obj.CallWithContext(ctx, bus.PropertiesInterface+".GetAll", 0, bus.UnitInterface).Store(&variants); err != nil {
		return nil, err
	}
	props := make(map[string]interface{}, len(variants))
	for name, variant := range variants {
		props[name] = variant.Value()
	}
	return props, nil
}
