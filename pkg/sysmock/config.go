package sysmock

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/unit"

	"gopkg.in/yaml.v3"
)

const DefaultForceShutdownTimeout = 10 * time.Second

// SysmockConfig represents the top-level configuration file structure
type SysmockConfig struct {
	Sysmock   SysmockConfigOptions `yaml:"sysmock"`
	Bus       BusConfig            `yaml:"bus"`
	Control   ControlConfig        `yaml:"control"`
	Readiness ReadinessConfig      `yaml:"readiness"`
	Units     []UnitConfig         `yaml:"units"`
}

type SysmockConfigOptions struct {
	LogLevel             string        `yaml:"log_level,omitempty"`
	LogFormat            string        `yaml:"log_format,omitempty"`
	ForceShutdownTimeout time.Duration `yaml:"force_shutdown_timeout,omitempty"`
}

// BusConfig selects the bus and the names the mock claims on it. Custom names let several
// mocks share one bus.
type BusConfig struct {
	Address            string `yaml:"address,omitempty"`
	ServiceManagerName string `yaml:"service_manager_name,omitempty"`
	LoginManagerName   string `yaml:"login_manager_name,omitempty"`
}

// ControlConfig configures the gRPC control endpoint; port 0 disables it.
type ControlConfig struct {
	Port int `yaml:"port,omitempty"`
}

type ReadinessConfig struct {
	File string `yaml:"file,omitempty"`
}

// UnitConfig is a unit seeded at startup. An empty active state means inactive.
type UnitConfig struct {
	Name        string `yaml:"name"`
	ActiveState string `yaml:"active_state,omitempty"`
}

// DefaultConfig is used when no configuration file is given.
func DefaultConfig() *SysmockConfig {
	config := &SysmockConfig{}
	setConfigDefaults(config)
	return config
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filename string) (*SysmockConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := LoadConfig(data)
	if err != nil {
		return nil, errors.NewValidationError("failed to load configuration", err).WithContext("filename", filename)
	}
	return config, nil
}

// LoadConfig parses YAML and applies defaults.
func LoadConfig(data []byte) (*SysmockConfig, error) {
	var config SysmockConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	setConfigDefaults(&config)
	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *SysmockConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateSysmockConfig(&config.Sysmock); err != nil {
		return errors.NewValidationError("invalid sysmock configuration", err)
	}
	if err := validateBusConfig(&config.Bus); err != nil {
		return errors.NewValidationError("invalid bus configuration", err)
	}
	if config.Control.Port != 0 {
		if err := ValidatePort(config.Control.Port); err != nil {
			return errors.NewValidationError("invalid control configuration", err)
		}
	}
	if err := validateUnitsConfig(config.Units); err != nil {
		return errors.NewValidationError("invalid units configuration", err)
	}

	return nil
}

// UnitNames returns the names of the configured units, in order.
func (c *SysmockConfig) UnitNames() []string {
	names := make([]string, 0, len(c.Units))
	for _, u := range c.Units {
		names = append(names, u.Name)
	}
	return names
}

// ZapConfig derives the logging backend settings.
func (c *SysmockConfig) ZapConfig() logging.ZapConfig {
	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = c.Sysmock.LogLevel
	zapConfig.Format = c.Sysmock.LogFormat
	return zapConfig
}

func setConfigDefaults(config *SysmockConfig) {
	if config.Sysmock.LogLevel == "" {
		config.Sysmock.LogLevel = "info"
	}
	if config.Sysmock.LogFormat == "" {
		config.Sysmock.LogFormat = "console"
	}
	if config.Sysmock.ForceShutdownTimeout == 0 {
		config.Sysmock.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}

	if config.Bus.Address == "" {
		config.Bus.Address = bus.AddressSystem
	}
	if config.Bus.ServiceManagerName == "" {
		config.Bus.ServiceManagerName = bus.ServiceManagerName
	}
	if config.Bus.LoginManagerName == "" {
		config.Bus.LoginManagerName = bus.LoginManagerName
	}

	for i := range config.Units {
		if config.Units[i].ActiveState == "" {
			config.Units[i].ActiveState = unit.ActiveStateInactive.String()
		}
	}
}

func validateSysmockConfig(config *SysmockConfigOptions) error {
	if !logging.IsValidLevel(config.LogLevel) {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", config.LogLevel),
			nil,
		).WithContext("valid_levels", "debug, info, warn, error")
	}

	switch config.LogFormat {
	case "console", "json":
	default:
		return errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", config.LogFormat),
			nil,
		).WithContext("valid_formats", "console, json")
	}

	return ValidateTimeout(config.ForceShutdownTimeout, "force shutdown")
}

func validateBusConfig(config *BusConfig) error {
	if err := ValidateBusAddress(config.Address); err != nil {
		return err
	}
	if err := ValidateBusName(config.ServiceManagerName); err != nil {
		return errors.NewValidationError("invalid service manager name", err).WithContext("name", config.ServiceManagerName)
	}
	if err := ValidateBusName(config.LoginManagerName); err != nil {
		return errors.NewValidationError("invalid login manager name", err).WithContext("name", config.LoginManagerName)
	}
	if config.ServiceManagerName == config.LoginManagerName {
		return errors.NewValidationError("service manager and login manager names must differ", nil).
			WithContext("name", config.ServiceManagerName)
	}
	return nil
}

// validateUnitsConfig rejects names that would collide on the same object path, so a bad
// config fails before anything is exported.
func validateUnitsConfig(units []UnitConfig) error {
	seenPaths := make(map[string]int)
	for i, u := range units {
		path, err := unit.NormalizeName(u.Name)
		if err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid unit name at index %d", i),
				err,
			).WithContext("unit", u.Name)
		}

		if prevIndex, exists := seenPaths[string(path)]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("units at indices %d and %d share the object path %s", prevIndex, i, path),
				nil,
			).WithContext("unit", u.Name)
		}
		seenPaths[string(path)] = i

		if _, err := unit.ParseActiveState(u.ActiveState); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid active state for unit at index %d", i),
				err,
			).WithContext("unit", u.Name)
		}
	}
	return nil
}
