package sysmock

import (
	"strings"
	"time"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

const maxBusNameLength = 255

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}

// ValidateBusAddress accepts "system", "session" or a transport address such as
// unix:path=/run/bus.
func ValidateBusAddress(address string) error {
	switch address {
	case bus.AddressSystem, bus.AddressSession:
		return nil
	case "":
		return errors.NewValidationError("bus address cannot be empty", nil)
	}

	if !strings.Contains(address, ":") {
		return errors.NewValidationError("bus address must be system, session or transport:key=value", nil).
			WithContext("address", address)
	}
	return nil
}

// ValidateBusName checks a well-known bus name: two or more dot-separated elements of
// [A-Za-z0-9_-], none empty or starting with a digit.
func ValidateBusName(name string) error {
	if name == "" {
		return errors.NewValidationError("bus name cannot be empty", nil)
	}
	if len(name) > maxBusNameLength {
		return errors.NewValidationError("bus name cannot exceed 255 characters", nil)
	}

	elements := strings.Split(name, ".")
	if len(elements) < 2 {
		return errors.NewValidationError("bus name needs at least two elements", nil).WithContext("name", name)
	}

	for _, element := range elements {
		if element == "" {
			return errors.NewValidationError("bus name contains an empty element", nil).WithContext("name", name)
		}
		if element[0] >= '0' && element[0] <= '9' {
			return errors.NewValidationError("bus name element cannot start with a digit", nil).WithContext("name", name)
		}
		for _, char := range element {
			if !isValidBusNameChar(char) {
				return errors.NewValidationError("bus name contains invalid characters: only letters, numbers, hyphens, and underscores are allowed", nil).
					WithContext("name", name)
			}
		}
	}

	return nil
}

func isValidBusNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_'
}
