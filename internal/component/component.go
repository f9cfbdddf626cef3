// Package component defines the Component contract every worker must
// satisfy and the factory registry the Controller uses to instantiate
// components from configuration.
package component

import (
	"context"

	"github.com/nrao/matrixcore/internal/keymaster"
)

// Required per-component states. Every Component's own FSM must be able
// to reach each of these, plus the Exiting terminal reachable from any
// state.
const (
	StateCreated  = "Created"
	StateStandby  = "Standby"
	StateReady    = "Ready"
	StateRunning  = "Running"
	StateExiting  = "Exiting"
)

// Lifecycle events a Component's own FSM must accept, matching the
// events the Controller fans out to active components.
const (
	EventInit       = "init"
	EventDoReady    = "do_ready"
	EventStart      = "start"
	EventStop       = "stop"
	EventDoStandby  = "do_standby"
	EventExit       = "exit"
)

// Component is the contract a worker implements. After construction it
// must publish its initial state as Created and expose either an RPC or a
// writable command node at components.<name>.command by which the
// Controller delivers events; this repo's Controller uses RPC.
type Component interface {
	// Name returns the component's unique instance name.
	Name() string

	// HandleEvent delivers a lifecycle event to the component's own FSM.
	// Returns an error if the transition is not reachable from the
	// component's current state (a hard error reported via status).
	HandleEvent(ctx context.Context, event string) error

	// CurrentState returns the component's last-known own-FSM state.
	CurrentState() string

	// Shutdown releases any resources the component holds (its
	// goroutine, connections, etc). The Controller calls it from
	// Terminate after delivering exit and waiting (bounded) for Exiting,
	// and from a failed BasicInit for every component already built.
	Shutdown(ctx context.Context) error
}

// Factory constructs a Component instance of the given type, named name,
// wired to km.
type Factory func(componentType, name string, km keymaster.Client) (Component, error)
