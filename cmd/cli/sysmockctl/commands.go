package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"

	"github.com/core-tools/hsu-sysmock/pkg/client"
	mockControl "github.com/core-tools/hsu-sysmock/pkg/control"
	"github.com/core-tools/hsu-sysmock/pkg/domain"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/readiness"
	"github.com/core-tools/hsu-sysmock/pkg/unit"

	flags "github.com/jessevdk/go-flags"
)

type unitArgs struct {
	Name string `positional-arg-name:"unit" required:"yes"`
}

type ModeOptions struct {
	Mode string `long:"mode" default:"replace" description:"job mode, accepted and ignored by the mock"`
}

type PowerOptions struct {
	Interactive bool `long:"interactive" description:"pass interactive=true"`
}

func registerCommands(parser *flags.Parser) {
	commands := []struct {
		name  string
		short string
		data  interface{}
	}{
		{"add", "Create an inactive unit", &addCommand{}},
		{"del", "Remove a unit", &delCommand{}},
		{"get", "Print a unit's object path", &getCommand{}},
		{"start", "Start a unit", &startCommand{}},
		{"stop", "Stop a unit", &stopCommand{}},
		{"restart", "Restart a unit", &restartCommand{}},
		{"state", "Print a unit's active state", &stateCommand{}},
		{"set-state", "Force a unit into any active state", &setStateCommand{}},
		{"reboot", "Ask the login manager to reboot", &rebootCommand{}},
		{"poweroff", "Ask the login manager to power off", &powerOffCommand{}},
		{"reset", "Put the power state back to ready", &resetCommand{}},
		{"power-state", "Print the power state", &powerStateCommand{}},
		{"status", "Print power state and units over the control endpoint", &statusCommand{}},
		{"reset-all", "Reset power and remove every unit over the control endpoint", &resetAllCommand{}},
		{"wait-ready", "Wait for a ready file to appear", &waitReadyCommand{}},
	}
	for _, command := range commands {
		if _, err := parser.AddCommand(command.name, command.short, command.short, command.data); err != nil {
			panic(err)
		}
	}
}

// withClient runs fn with a bus client bounded by the global timeout.
func withClient(fn func(ctx context.Context, busClient *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	busClient, err := client.New(ctx, client.Options{
		Address:            opts.BusAddress,
		ServiceManagerName: opts.ServiceManagerName,
		LoginManagerName:   opts.LoginManagerName,
	}, sysmockLogger)
	if err != nil {
		return err
	}
	defer busClient.Close()

	return fn(ctx, busClient)
}

// withControl connects to the control endpoint, waits until it answers pings and runs fn.
func withControl(options ControlOptions, fn func(ctx context.Context, gateway domain.Contract) error) error {
	if options.ServerPath == "" && options.AttachPort == 0 {
		return errors.NewValidationError("server path or attach port is required", nil)
	}

	coreConnection, err := coreControl.NewConnection(coreControl.ConnectionOptions{
		ServerPath: options.ServerPath,
		AttachPort: options.AttachPort,
	}, coreLogger)
	if err != nil {
		return errors.NewNetworkError("failed to create core connection", err)
	}

	coreClientGateway := coreControl.NewGRPCClientGateway(coreConnection.GRPC(), coreLogger)
	mockClientGateway := mockControl.NewGRPCClientGateway(coreConnection.GRPC(), sysmockLogger)

	ctx := context.Background()

	retryPingOptions := coreDomain.RetryPingOptions{
		RetryAttempts: 10,
		RetryInterval: 1 * time.Second,
	}
	if err := coreDomain.RetryPing(ctx, coreClientGateway, retryPingOptions, coreLogger); err != nil {
		return errors.NewNetworkError("failed to ping sysmock server", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
	defer cancel()
	return fn(ctx, mockClientGateway)
}

type addCommand struct {
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *addCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		path, err := busClient.AddUnit(ctx, c.Args.Name)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	})
}

type delCommand struct {
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *delCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		removed, err := busClient.RemoveUnit(ctx, c.Args.Name)
		if err != nil {
			return err
		}
		fmt.Println(removed)
		return nil
	})
}

type getCommand struct {
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *getCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		path, err := busClient.GetUnit(ctx, c.Args.Name)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	})
}

type startCommand struct {
	ModeOptions
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *startCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		job, err := busClient.StartUnit(ctx, c.Args.Name, c.Mode)
		if err != nil {
			return err
		}
		fmt.Printf("job %d\n", job)
		return nil
	})
}

type stopCommand struct {
	ModeOptions
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *stopCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		job, err := busClient.StopUnit(ctx, c.Args.Name, c.Mode)
		if err != nil {
			return err
		}
		fmt.Printf("job %d\n", job)
		return nil
	})
}

type restartCommand struct {
	ModeOptions
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *restartCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		job, err := busClient.RestartUnit(ctx, c.Args.Name, c.Mode)
		if err != nil {
			return err
		}
		fmt.Printf("job %d\n", job)
		return nil
	})
}

type stateCommand struct {
	Args unitArgs `positional-args:"yes" required:"yes"`
}

func (c *stateCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		status, err := busClient.UnitStatus(ctx, c.Args.Name)
		if err != nil {
			return err
		}
		fmt.Println(status.ActiveState)
		return nil
	})
}

type setStateCommand struct {
	Args struct {
		Name  string `positional-arg-name:"unit" required:"yes"`
		State string `positional-arg-name:"state" required:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (c *setStateCommand) Execute(args []string) error {
	state, err := unit.ParseActiveState(c.Args.State)
	if err != nil {
		return err
	}
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		return busClient.SetUnitState(ctx, c.Args.Name, state)
	})
}

type rebootCommand struct {
	PowerOptions
}

func (c *rebootCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		return busClient.Reboot(ctx, c.Interactive)
	})
}

type powerOffCommand struct {
	PowerOptions
}

func (c *powerOffCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		return busClient.PowerOff(ctx, c.Interactive)
	})
}

type resetCommand struct{}

func (c *resetCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		return busClient.ResetPower(ctx)
	})
}

type powerStateCommand struct{}

func (c *powerStateCommand) Execute(args []string) error {
	return withClient(func(ctx context.Context, busClient *client.Client) error {
		state, err := busClient.PowerState(ctx)
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	})
}

type statusCommand struct {
	ControlOptions
}

func (c *statusCommand) Execute(args []string) error {
	return withControl(c.ControlOptions, func(ctx context.Context, gateway domain.Contract) error {
		status, err := gateway.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("power: %s\n", status.PowerState)
		names := make([]string, 0, len(status.Units))
		for name := range status.Units {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %s\n", name, status.Units[name])
		}
		return nil
	})
}

type resetAllCommand struct {
	ControlOptions
}

func (c *resetAllCommand) Execute(args []string) error {
	return withControl(c.ControlOptions, func(ctx context.Context, gateway domain.Contract) error {
		return gateway.Reset(ctx)
	})
}

type waitReadyCommand struct {
	File string `long:"file" required:"yes" description:"ready file written by the server"`
}

func (c *waitReadyCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	info, err := readiness.Wait(ctx, c.File)
	if err != nil {
		return err
	}
	fmt.Printf("pid=%d bus=%s units=%d\n", info.PID, info.Bus, info.Units)
	return nil
}
