package client

import (
	"context"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/bus/bustest"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/power"
	"github.com/core-tools/hsu-sysmock/pkg/unit"
)

type testMock struct {
	registry *unit.Registry
	power    *power.Manager
	server   *bus.Server
}

func startTestMock(t *testing.T, ctx context.Context, options bus.Options, seed ...string) *testMock {
	t.Helper()

	logger := logging.NewNopLogger()
	registry := unit.NewRegistry(logger)
	for _, name := range seed {
		_, err := registry.AddUnit(name)
		require.NoError(t, err)
	}
	powerManager := power.NewManager(logger)

	server := bus.NewServer(options, registry, powerManager, logger)
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() {
		assert.NoError(t, server.Stop())
	})

	return &testMock{registry: registry, power: powerManager, server: server}
}

func newTestClient(t *testing.T, ctx context.Context, options Options) *Client {
	t.Helper()

	client, err := New(ctx, options, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestIntegration_SystemdScenario(t *testing.T) {
	address := bustest.NewDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startTestMock(t, ctx, bus.Options{Address: address}, "seeded.service")
	client := newTestClient(t, ctx, Options{Address: address})
	require.NotNil(t, client.systemd)

	// seeded units are reachable as soon as the name is owned
	status, err := client.UnitStatus(ctx, "seeded.service")
	require.NoError(t, err)
	assert.Equal(t, unit.ActiveStateInactive, status.ActiveState)

	path, err := client.AddUnit(ctx, "foo.service")
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/systemd1/unit/foo_service"), path)

	status, err = client.UnitStatus(ctx, "foo.service")
	require.NoError(t, err)
	assert.Equal(t, "foo.service", status.Name)
	assert.Equal(t, path, status.Path)
	assert.Equal(t, unit.ActiveStateInactive, status.ActiveState)
	assert.Empty(t, status.PartOf)

	job, err := client.StartUnit(ctx, "foo.service", "replace")
	require.NoError(t, err)
	assert.Equal(t, 1, job)

	status, err = client.UnitStatus(ctx, "foo.service")
	require.NoError(t, err)
	assert.Equal(t, unit.ActiveStateActive, status.ActiveState)

	job, err = client.StopUnit(ctx, "foo.service", "replace")
	require.NoError(t, err)
	assert.Equal(t, 1, job)

	job, err = client.RestartUnit(ctx, "foo.service", "replace")
	require.NoError(t, err)
	assert.Equal(t, 1, job)

	require.NoError(t, client.SetUnitState(ctx, "foo.service", unit.ActiveStateFailed))
	status, err = client.UnitStatus(ctx, "foo.service")
	require.NoError(t, err)
	assert.Equal(t, unit.ActiveStateFailed, status.ActiveState)

	_, err = client.AddUnit(ctx, "foo.service")
	assert.True(t, errors.IsConflictError(err))

	_, err = client.AddUnit(ctx, "foo-bar.service")
	assert.True(t, errors.IsInvalidAddressError(err))

	removed, err := client.RemoveUnit(ctx, "foo.service")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = client.GetUnit(ctx, "foo.service")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = client.StartUnit(ctx, "foo.service", "replace")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestIntegration_Power(t *testing.T) {
	address := bustest.NewDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mock := startTestMock(t, ctx, bus.Options{Address: address})
	client := newTestClient(t, ctx, Options{Address: address})

	state, err := client.PowerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, power.StateReady, state)

	require.NoError(t, client.Reboot(ctx, false))
	assert.Equal(t, power.StateRebooting, mock.power.CurrentState())

	require.NoError(t, client.PowerOff(ctx, true))
	state, err = client.PowerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, power.StateOff, state)

	require.NoError(t, client.ResetPower(ctx))
	assert.Equal(t, power.StateReady, mock.power.CurrentState())
}

func TestIntegration_CustomNames(t *testing.T) {
	address := bustest.NewDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	names := bus.Options{
		Address:            address,
		ServiceManagerName: "test.sysmock.systemd1",
		LoginManagerName:   "test.sysmock.login1",
	}
	startTestMock(t, ctx, names)

	client := newTestClient(t, ctx, Options{
		Address:            address,
		ServiceManagerName: names.ServiceManagerName,
		LoginManagerName:   names.LoginManagerName,
	})
	assert.Nil(t, client.systemd)

	_, err := client.AddUnit(ctx, "bar.socket")
	require.NoError(t, err)

	job, err := client.StartUnit(ctx, "bar.socket", "replace")
	require.NoError(t, err)
	assert.Equal(t, 1, job)

	status, err := client.UnitStatus(ctx, "bar.socket")
	require.NoError(t, err)
	assert.Equal(t, unit.ActiveStateActive, status.ActiveState)
	assert.Equal(t, "bar.socket", status.Name)

	require.NoError(t, client.PowerOff(ctx, false))
	state, err := client.PowerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, power.StateOff, state)
}

func TestIntegration_NameAlreadyOwned(t *testing.T) {
	address := bustest.NewDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startTestMock(t, ctx, bus.Options{Address: address})

	logger := logging.NewNopLogger()
	second := bus.NewServer(bus.Options{Address: address}, unit.NewRegistry(logger), power.NewManager(logger), logger)
	err := second.Start(ctx)
	assert.True(t, errors.IsConflictError(err))
}

func TestIntegration_StopReleasesNames(t *testing.T) {
	address := bustest.NewDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logging.NewNopLogger()
	first := bus.NewServer(bus.Options{Address: address}, unit.NewRegistry(logger), power.NewManager(logger), logger)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.Stop())
	// stopping twice is a no-op
	require.NoError(t, first.Stop())

	second := bus.NewServer(bus.Options{Address: address}, unit.NewRegistry(logger), power.NewManager(logger), logger)
	require.NoError(t, second.Start(ctx))
	assert.NoError(t, second.Stop())
}

func TestIntegration_PropertiesChanged(t *testing.T) {
	address := bustest.NewDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startTestMock(t, ctx, bus.Options{Address: address}, "watched.service")
	client := newTestClient(t, ctx, Options{Address: address})

	path, err := client.GetUnit(ctx, "watched.service")
	require.NoError(t, err)

	watcher, err := bus.Connect(ctx, address)
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, watcher.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(bus.PropertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	))
	signals := make(chan *dbus.Signal, 4)
	watcher.Signal(signals)

	_, err = client.StartUnit(ctx, "watched.service", "replace")
	require.NoError(t, err)

	select {
	case signal := <-signals:
		require.Len(t, signal.Body, 3)
		assert.Equal(t, bus.UnitInterface, signal.Body[0])
		changed, ok := signal.Body[1].(map[string]dbus.Variant)
		require.True(t, ok)
		assert.Equal(t, "active", changed["ActiveState"].Value())
	case <-ctx.Done():
		t.Fatal("no PropertiesChanged signal received")
	}
}
