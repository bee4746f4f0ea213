package domain

import (
	"context"
)

// Status is a point-in-time view of the mock machine.
type Status struct {
	PowerState string
	// Units maps unit name to active state.
	Units map[string]string
}

type Contract interface {
	Status(ctx context.Context) (*Status, error)
	// Reset powers the machine back to ready and removes every unit.
	Reset(ctx context.Context) error
}
