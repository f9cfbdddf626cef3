package demo

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/nrao/matrixcore/internal/component"
	"github.com/nrao/matrixcore/internal/keymaster"
	"github.com/nrao/matrixcore/internal/logging"
)

// Sink subscribes to another component's output path while Running and
// counts the values it receives, publishing the running total to
// components.<name>.received.
type Sink struct {
	*component.Base

	km        keymaster.Client
	sourcePath string
	countPath string
	received  int64
	subscribed bool
}

// NewSinkFactory returns a component.Factory that builds Sinks. The
// source path to subscribe to is read from components.<name>.source,
// expected to name another component's output, e.g. "components.gen1.output".
func NewSinkFactory() component.Factory {
	return func(componentType, name string, km keymaster.Client) (component.Component, error) {
		base, err := component.NewBase(name, km)
		if err != nil {
			return nil, err
		}
		sourcePath := fmt.Sprintf("components.%s.output", name)
		if n, err := km.Get(fmt.Sprintf("components.%s.source", name)); err == nil && n.Kind == keymaster.KindScalar && n.Scalar != "" {
			sourcePath = n.Scalar
		}
		s := &Sink{
			Base:       base,
			km:         km,
			sourcePath: sourcePath,
			countPath:  fmt.Sprintf("components.%s.received", name),
		}
		s.RegisterCommandRPC(s.HandleEvent)
		return s, nil
	}
}

func (s *Sink) HandleEvent(ctx context.Context, event string) error {
	if err := s.Base.HandleEvent(ctx, event); err != nil {
		return err
	}
	switch event {
	case component.EventStart:
		s.subscribe()
	case component.EventStop, component.EventExit:
		s.unsubscribe()
	}
	return nil
}

func (s *Sink) subscribe() {
	if s.subscribed {
		return
	}
	err := s.km.Subscribe(s.sourcePath, func(path string, n keymaster.Node) {
		count := atomic.AddInt64(&s.received, 1)
		_ = s.km.Put(s.countPath, keymaster.Str(strconv.FormatInt(count, 10)))
	})
	if err != nil {
		logging.Component(s.Name()).Warnf("subscribe to %s: %v", s.sourcePath, err)
		return
	}
	s.subscribed = true
}

func (s *Sink) unsubscribe() {
	if !s.subscribed {
		return
	}
	_ = s.km.Unsubscribe(s.sourcePath)
	s.subscribed = false
}

// Shutdown implements component.Component.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	logging.Component(s.Name()).Infof("sink shut down, received %d", atomic.LoadInt64(&s.received))
	return nil
}
