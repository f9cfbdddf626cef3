// Package demo provides two small illustrative Components — a periodic
// data generator and a sink that counts what it receives — wired through
// the Keymaster instead of a direct channel, so a running matrixd can
// demonstrate the full Controller lifecycle end to end without any
// domain-specific hardware behind it.
package demo

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nrao/matrixcore/internal/component"
	"github.com/nrao/matrixcore/internal/keymaster"
	"github.com/nrao/matrixcore/internal/logging"
)

// Generator publishes an incrementing counter to components.<name>.output
// on a fixed period while in the Running state.
type Generator struct {
	*component.Base

	km       keymaster.Client
	period   time.Duration
	outPath  string
	counter  int64
	stopOnce sync.Once
	stopC    chan struct{}
	doneC    chan struct{}
}

// NewGeneratorFactory returns a component.Factory that builds Generators.
// The per-instance period is read from components.<name>.period_ms,
// defaulting to 100ms if absent or malformed.
func NewGeneratorFactory() component.Factory {
	return func(componentType, name string, km keymaster.Client) (component.Component, error) {
		base, err := component.NewBase(name, km)
		if err != nil {
			return nil, err
		}
		period := 100 * time.Millisecond
		if n, err := km.Get(fmt.Sprintf("components.%s.period_ms", name)); err == nil && n.Kind == keymaster.KindScalar {
			if ms, err := strconv.Atoi(n.Scalar); err == nil && ms > 0 {
				period = time.Duration(ms) * time.Millisecond
			}
		}
		g := &Generator{
			Base:    base,
			km:      km,
			period:  period,
			outPath: fmt.Sprintf("components.%s.output", name),
			stopC:   make(chan struct{}),
			doneC:   make(chan struct{}),
		}
		close(g.doneC) // no run loop active until Start
		g.RegisterCommandRPC(g.HandleEvent)
		return g, nil
	}
}

// HandleEvent starts the publish loop on "start" and stops it on "stop" or
// "exit", delegating the state transition itself to Base.
func (g *Generator) HandleEvent(ctx context.Context, event string) error {
	if err := g.Base.HandleEvent(ctx, event); err != nil {
		return err
	}
	switch event {
	case component.EventStart:
		g.startLoop()
	case component.EventStop, component.EventExit:
		g.stopLoop()
	}
	return nil
}

func (g *Generator) startLoop() {
	g.doneC = make(chan struct{})
	go func() {
		defer close(g.doneC)
		ticker := time.NewTicker(g.period)
		defer ticker.Stop()
		for {
			select {
			case <-g.stopC:
				return
			case <-ticker.C:
				n := atomic.AddInt64(&g.counter, 1)
				_ = g.km.Put(g.outPath, keymaster.Str(strconv.FormatInt(n, 10)))
			}
		}
	}()
}

func (g *Generator) stopLoop() {
	select {
	case <-g.stopC:
	default:
		close(g.stopC)
	}
	<-g.doneC
	g.stopC = make(chan struct{})
}

// Shutdown implements component.Component.
func (g *Generator) Shutdown(ctx context.Context) error {
	g.stopOnce.Do(g.stopLoop)
	logging.Component(g.Name()).Info("generator shut down")
	return nil
}
