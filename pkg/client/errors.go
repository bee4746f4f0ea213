package client

import (
	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

// fromDBusError turns a named D-Bus error back into the matching domain error.
func fromDBusError(err error, name string) error {
	if err == nil {
		return nil
	}

	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	switch {
	case errors.As(err, &dbusErrPtr):
		dbusErr = *dbusErrPtr
	case errors.As(err, &dbusErr):
	default:
		return errors.NewNetworkError("bus call failed", err).WithContext("unit", name)
	}

	message := dbusErr.Error()
	var domainErr *errors.DomainError
	switch dbusErr.Name {
	case bus.ErrorNameNoSuchUnit:
		domainErr = errors.NewNotFoundError(message, nil)
	case bus.ErrorNameUnitAlreadyExists:
		domainErr = errors.NewConflictError(message, nil)
	case bus.ErrorNameInvalidPath:
		domainErr = errors.NewInvalidAddressError(message)
	case bus.ErrorNameInvalidArgs:
		domainErr = errors.NewValidationError(message, nil)
	default:
		return errors.NewNetworkError("bus call failed", err).WithContext("unit", name).WithContext("error_name", dbusErr.Name)
	}
	if name != "" {
		domainErr = domainErr.WithContext("unit", name)
	}
	return domainErr
}
