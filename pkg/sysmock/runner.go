package sysmock

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	corelogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-sysmock/pkg/bus"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
)

// Overrides are command line values that take precedence over the configuration file. Zero
// values leave the configuration untouched.
type Overrides struct {
	BusAddress string
	Port       int
	ReadyFile  string
	LogLevel   string
	LogFormat  string
	Units      []string
}

// BuildConfig loads configFile (or the defaults when empty), applies overrides and validates
// the result.
func BuildConfig(configFile string, overrides Overrides) (*SysmockConfig, error) {
	var config *SysmockConfig
	if configFile != "" {
		var err error
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	if overrides.BusAddress != "" {
		config.Bus.Address = overrides.BusAddress
	}
	if overrides.Port != 0 {
		config.Control.Port = overrides.Port
	}
	if overrides.ReadyFile != "" {
		config.Readiness.File = overrides.ReadyFile
	}
	if overrides.LogLevel != "" {
		config.Sysmock.LogLevel = overrides.LogLevel
	}
	if overrides.LogFormat != "" {
		config.Sysmock.LogFormat = overrides.LogFormat
	}
	for _, name := range overrides.Units {
		config.Units = append(config.Units, UnitConfig{Name: name})
	}
	setConfigDefaults(config)

	if err := ValidateConfig(config); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return config, nil
}

// Run serves the mock until SIGINT/SIGTERM or, when runDuration is positive, until that many
// seconds have passed.
func Run(config *SysmockConfig, runDuration int, coreLogger corelogging.Logger, logger logging.Logger) error {
	logger.Infof("Sysmock runner starting...")

	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Infof("Bus address: %s, control port: %d, units: %d",
		config.Bus.Address, config.Control.Port, len(config.Units))

	mockOptions := MockOptions{
		Bus: bus.Options{
			Address:            config.Bus.Address,
			ServiceManagerName: config.Bus.ServiceManagerName,
			LoginManagerName:   config.Bus.LoginManagerName,
		},
		Port:                 config.Control.Port,
		ReadyFile:            config.Readiness.File,
		ForceShutdownTimeout: config.Sysmock.ForceShutdownTimeout,
	}

	mock, err := NewMock(mockOptions, coreLogger, logger)
	if err != nil {
		return errors.NewInternalError("failed to create sysmock", err)
	}

	logger.Infof("Seeding units: %v", config.UnitNames())
	if err := mock.Seed(config.Units); err != nil {
		return err
	}

	// the bus connections live until Stop, not until the run duration expires
	if err := mock.Start(context.Background()); err != nil {
		return err
	}

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	logger.Infof("Sysmock is ready")

	select {
	case receivedSignal := <-sig:
		logger.Infof("Sysmock runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Sysmock runner timed out")
	}

	if err := mock.Stop(context.Background()); err != nil {
		return err
	}

	logger.Infof("Sysmock runner stopped")
	return nil
}
