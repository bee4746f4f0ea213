package bus

import (
	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

// toDBusError maps a domain error onto a named D-Bus error whose body is the message.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}

	message := err.Error()
	var domainErr *errors.DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		message = domainErr.Message
	}

	return dbus.NewError(errorName(errors.TypeOf(err)), []interface{}{message})
}

func errorName(errorType errors.ErrorType) string {
	switch errorType {
	case errors.ErrorTypeNotFound:
		return ErrorNameNoSuchUnit
	case errors.ErrorTypeConflict:
		return ErrorNameUnitAlreadyExists
	case errors.ErrorTypeInvalidAddress:
		return ErrorNameInvalidPath
	case errors.ErrorTypeValidation:
		return ErrorNameInvalidArgs
	default:
		return ErrorNameFailed
	}
}
