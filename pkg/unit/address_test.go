package unit

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected dbus.ObjectPath
	}{
		{"service_suffix", "foo.service", "/org/freedesktop/systemd1/unit/foo_service"},
		{"upper_case", "FOO.SERVICE", "/org/freedesktop/systemd1/unit/foo_service"},
		{"mixed_case", "Foo.Service", "/org/freedesktop/systemd1/unit/foo_service"},
		{"many_dots", "a.b.c.timer", "/org/freedesktop/systemd1/unit/a_b_c_timer"},
		{"underscore_kept", "foo_service", "/org/freedesktop/systemd1/unit/foo_service"},
		{"digits", "agent42", "/org/freedesktop/systemd1/unit/agent42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := NormalizeName(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, path)
			assert.True(t, path.IsValid())
		})
	}
}

func TestNormalizeName_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"dash", "my-app.service"},
		{"slash", "foo/bar"},
		{"space", "foo bar"},
		{"at_sign", "getty@tty1.service"},
		{"non_ascii", "ünit.service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := NormalizeName(tt.input)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidAddressError(err))
			assert.Empty(t, path)

			var domainErr *errors.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.NotEmpty(t, domainErr.Message)
			assert.Equal(t, tt.input, domainErr.Context["unit"])
		})
	}
}

func TestNormalizeName_Deterministic(t *testing.T) {
	first, err := NormalizeName("Web.Socket")
	require.NoError(t, err)
	second, err := NormalizeName("Web.Socket")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
