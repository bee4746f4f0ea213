package main

import (
	"fmt"
	"os"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	sysmockLogging "github.com/core-tools/hsu-sysmock/pkg/logging"
	"github.com/core-tools/hsu-sysmock/pkg/sysmock"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the YAML configuration file"`
	BusAddress  string `long:"bus-address" description:"bus to serve on: system, session or a transport address"`
	Port        int    `long:"port" description:"control endpoint port, 0 disables it"`
	ReadyFile   string `long:"ready-file" description:"file written once the bus names are owned"`
	LogLevel    string `long:"log-level" description:"debug, info, warn or error"`
	LogFormat   string `long:"log-format" description:"console or json"`
	RunDuration int    `long:"run-duration" description:"stop after this many seconds, 0 runs until signalled"`

	Args struct {
		Units []string `positional-arg-name:"unit" description:"units to create at startup"`
	} `positional-args:"yes"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config, err := sysmock.BuildConfig(opts.Config, sysmock.Overrides{
		BusAddress: opts.BusAddress,
		Port:       opts.Port,
		ReadyFile:  opts.ReadyFile,
		LogLevel:   opts.LogLevel,
		LogFormat:  opts.LogFormat,
		Units:      opts.Args.Units,
	})
	if err != nil {
		fmt.Printf("Configuration failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := sysmockLogging.NewZapLogger(config.ZapConfig())
	if err != nil {
		fmt.Printf("Logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("opts: %+v", opts)
	logger.Infof("Starting...")

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	sysmockLogger := sysmockLogging.NewLogger(
		logPrefix("sysmock"), sysmockLogging.FuncsOf(logger))

	if err := sysmock.Run(config, opts.RunDuration, coreLogger, sysmockLogger); err != nil {
		logger.Errorf("Sysmock failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}
