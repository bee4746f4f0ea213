package client

import (
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

func TestFromDBusError(t *testing.T) {
	assert.NoError(t, fromDBusError(nil, "foo.service"))

	notFound := fromDBusError(dbus.Error{Name: bus.ErrorNameNoSuchUnit, Body: []interface{}{"unit 'foo.service' not found"}}, "foo.service")
	assert.True(t, errors.IsNotFoundError(notFound))
	assert.Contains(t, notFound.Error(), "unit 'foo.service' not found")

	conflict := fromDBusError(dbus.NewError(bus.ErrorNameUnitAlreadyExists, []interface{}{"exists"}), "foo.service")
	assert.True(t, errors.IsConflictError(conflict))

	invalid := fromDBusError(dbus.Error{Name: bus.ErrorNameInvalidPath, Body: []interface{}{"bad"}}, "a-b")
	assert.True(t, errors.IsInvalidAddressError(invalid))

	args := fromDBusError(dbus.Error{Name: bus.ErrorNameInvalidArgs, Body: []interface{}{"bad state"}}, "foo.service")
	assert.True(t, errors.IsValidationError(args))

	unknown := fromDBusError(dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}, "foo.service")
	assert.True(t, errors.IsNetworkError(unknown))

	transport := fromDBusError(fmt.Errorf("connection closed"), "")
	assert.True(t, errors.IsNetworkError(transport))
}
