package main

import (
	"fmt"
	"os"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	sysmockLogging "github.com/core-tools/hsu-sysmock/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type globalOptions struct {
	BusAddress         string `long:"bus-address" default:"system" description:"bus the mock serves on: system, session or a transport address"`
	ServiceManagerName string `long:"service-manager-name" default:"org.freedesktop.systemd1" description:"bus name of the mock service manager"`
	LoginManagerName   string `long:"login-manager-name" default:"org.freedesktop.login1" description:"bus name of the mock login manager"`
	Timeout            int    `long:"timeout" default:"10" description:"seconds to wait for each call"`
	LogLevel           string `long:"log-level" default:"warn" description:"debug, info, warn or error"`
}

type ControlOptions struct {
	ServerPath string `long:"server" description:"path to the sysmock server executable"`
	AttachPort int    `long:"port" description:"control endpoint port of a running sysmock"`
}

var opts globalOptions

var (
	logger        *sysmockLogging.ZapLogger
	coreLogger    coreLogging.Logger
	sysmockLogger sysmockLogging.Logger
)

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func main() {
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}
		if err := setupLogging(); err != nil {
			return err
		}
		defer logger.Sync()
		return command.Execute(args)
	}
	registerCommands(parser)

	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintf(os.Stderr, "sysmockctl: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	zapConfig := sysmockLogging.DefaultZapConfig()
	zapConfig.Level = opts.LogLevel

	var err error
	logger, err = sysmockLogging.NewZapLogger(zapConfig)
	if err != nil {
		return err
	}

	coreLogger = coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	sysmockLogger = sysmockLogging.NewLogger(
		logPrefix("sysmock"), sysmockLogging.FuncsOf(logger))
	return nil
}
