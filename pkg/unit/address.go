package unit

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

const (
	// UnitPathPrefix is the parent object path of every unit object.
	UnitPathPrefix = "/org/freedesktop/systemd1/unit"

	// JobPath is returned by every start/stop/restart. Jobs are not tracked.
	JobPath = dbus.ObjectPath("/org/freedesktop/systemd1/job/1")
)

// NormalizeName maps a unit name onto its object path: the name is lower-cased and every '.'
// becomes '_'. Names that differ only by case or by '.' versus '_' share one path.
func NormalizeName(name string) (dbus.ObjectPath, error) {
	segment := strings.ReplaceAll(strings.ToLower(name), ".", "_")

	if err := validatePathElement(segment); err != nil {
		return "", errors.NewInvalidAddressError(err.Error()).WithContext("unit", name)
	}

	path := dbus.ObjectPath(UnitPathPrefix + "/" + segment)
	if !path.IsValid() {
		return "", errors.NewInvalidAddressError(
			fmt.Sprintf("invalid object path '%s'", path),
		).WithContext("unit", name)
	}
	return path, nil
}

// validatePathElement applies the D-Bus rule for a single object path element: non-empty and
// made only of [A-Za-z0-9_].
func validatePathElement(segment string) error {
	if segment == "" {
		return fmt.Errorf("empty object path element")
	}
	for i, char := range segment {
		if !isValidPathChar(char) {
			return fmt.Errorf("invalid character %q at position %d in object path element '%s'", char, i, segment)
		}
	}
	return nil
}

func isValidPathChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}
