package component

import (
	"context"
	"fmt"

	"github.com/nrao/matrixcore/internal/fsm"
	"github.com/nrao/matrixcore/internal/keymaster"
	"github.com/nrao/matrixcore/internal/logging"
)

// Base provides the shared plumbing every concrete Component needs: an
// own-instance FSM wired to the required states/events, automatic
// publication of state transitions to components.<name>.state, and an
// RPC command handler registered at components.<name>.command so the
// Controller can deliver events. Concrete components embed Base and add
// their own domain behavior on top of its entry actions.
type Base struct {
	name string
	km   keymaster.Client
	fsm  *fsm.FSM
	log  interface {
		Infof(format string, args ...interface{})
	}
}

// NewBase constructs a Base named name, publishes the Created state, and
// registers the standard lifecycle transitions:
//
//	Created  --init-->      Standby
//	Standby  --do_ready-->  Ready
//	Ready    --start-->     Running
//	Running  --stop-->      Ready
//	Ready    --do_standby-->Standby
//	*        --exit-->      Exiting
func NewBase(name string, km keymaster.Client) (*Base, error) {
	b := &Base{name: name, km: km, log: logging.Component(name)}
	b.fsm = fsm.New(StateCreated)

	b.fsm.AddTransition(fsm.Transition{From: StateCreated, Event: EventInit, To: StateStandby})
	b.fsm.AddTransition(fsm.Transition{From: StateStandby, Event: EventDoReady, To: StateReady})
	b.fsm.AddTransition(fsm.Transition{From: StateReady, Event: EventStart, To: StateRunning})
	b.fsm.AddTransition(fsm.Transition{From: StateRunning, Event: EventStop, To: StateReady})
	b.fsm.AddTransition(fsm.Transition{From: StateReady, Event: EventDoStandby, To: StateStandby})
	for _, from := range []string{StateCreated, StateStandby, StateReady, StateRunning} {
		b.fsm.AddTransition(fsm.Transition{From: from, Event: EventExit, To: StateExiting})
	}

	for _, s := range []string{StateCreated, StateStandby, StateReady, StateRunning, StateExiting} {
		state := s
		b.fsm.AddEntryAction(state, func(string) { b.publishState(state) })
	}

	if err := km.Put(fmt.Sprintf("components.%s.state", name), keymaster.Str(StateCreated)); err != nil {
		return nil, fmt.Errorf("component %s: publish initial state: %w", name, err)
	}

	return b, nil
}

func (b *Base) publishState(state string) {
	if err := b.km.Put(fmt.Sprintf("components.%s.state", b.name), keymaster.Str(state)); err != nil {
		b.log.Infof("failed to publish state %s: %v", state, err)
	}
}

// Name implements Component.
func (b *Base) Name() string { return b.name }

// CurrentState implements Component.
func (b *Base) CurrentState() string { return b.fsm.Current() }

// HandleEvent implements Component. Concrete components that need to run
// domain logic on a transition call this from their own HandleEvent and
// run that logic once it returns nil, as internal/demo's Generator and
// Sink do.
func (b *Base) HandleEvent(ctx context.Context, event string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !b.fsm.HandleEvent(event) {
		return fmt.Errorf("component %s: event %q not valid from state %q", b.name, event, b.fsm.Current())
	}
	return nil
}

// RegisterCommandRPC exposes the Keymaster-visible command path
// components.<name>.command as an RPC that dispatches to handle.
func (b *Base) RegisterCommandRPC(handle func(ctx context.Context, event string) error) {
	path := fmt.Sprintf("components.%s.command", b.name)
	b.km.RegisterRPC(path, func(_ string, args keymaster.Node) (keymaster.Node, error) {
		if err := handle(context.Background(), args.Scalar); err != nil {
			return keymaster.Node{}, err
		}
		return keymaster.Str("ok"), nil
	})
}
