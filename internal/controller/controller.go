// Package controller implements the top-level orchestrator: it reads
// configuration from a Keymaster, builds Components via a factory
// registry, owns the global FSM, aggregates component state arriving
// asynchronously through a SemFIFO, and drives the shared lifecycle
// (initialize/ready/start/stop/standby/exit).
//
// The component map is a plain map guarded by a mutex, with a dedicated
// service goroutine draining state reports off the SemFIFO and applying
// them under that same lock.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/nrao/matrixcore/internal/component"
	"github.com/nrao/matrixcore/internal/fsm"
	"github.com/nrao/matrixcore/internal/keymaster"
	"github.com/nrao/matrixcore/internal/matrixerr"
	"github.com/nrao/matrixcore/internal/metrics"
	"github.com/nrao/matrixcore/internal/semfifo"
)

// Global FSM states and events driving the Controller's lifecycle.
const (
	StateCreated = "Created"
	StateStandby = "Standby"
	StateReady   = "Ready"
	StateRunning = "Running"
	StateExiting = "Exiting"

	EventInit      = "init"
	EventGetReady  = "get_ready"
	EventStart     = "start"
	EventStop      = "stop"
	EventDoStandby = "do_standby"
	EventExit      = "exit"
)

// ComponentInfo is the Controller's view of one registered component:
// its instance, last-observed state/status, and whether it participates
// in the current mode. Mirrors Controller.h's ComponentInfo struct.
type ComponentInfo struct {
	Instance component.Component
	State    string
	Status   string
	Active   bool
}

// Snapshot is an immutable copy of the component map handed to FSM
// guards, so guard evaluation never needs to acquire compMu itself and
// risk inverting the component-map-before-FSM lock order.
type Snapshot map[string]ComponentInfo

type stateReport struct {
	componentName string
	newState      keymaster.Node
}

// Controller is the top-level orchestrator: it owns the global FSM,
// the component registry, and the lifecycle calls that drive both.
type Controller struct {
	configPath string

	callMu sync.Mutex // serializes lifecycle calls end-to-end

	factories *component.FactoryRegistry

	km   *keymaster.InProcessClient
	tree *keymaster.Tree

	compMu       sync.Mutex
	components   map[string]*ComponentInfo
	componentSeq []string // registration order, for deterministic command fan-out
	stateCond    *sync.Cond
	terminating  bool // set by Terminate; wakes and fails waiters that will never see their target state

	modeConnections map[string][]endpoint
	currentMode     string

	globalFSM *fsm.FSM
	snapshot  atomic.Value // holds Snapshot

	reports     *semfifo.SemFIFO[stateReport]
	serviceWG   sync.WaitGroup
	serviceStop chan struct{}

	statusMu sync.Mutex
	status   string // "" or "degraded"

	log *log.Entry
}

// New constructs a Controller for the configuration at configPath. Call
// AddComponentFactory for every needed type, then BasicInit.
func New(configPath string) *Controller {
	c := &Controller{
		configPath:  configPath,
		factories:   component.NewFactoryRegistry(),
		components:  make(map[string]*ComponentInfo),
		serviceStop: make(chan struct{}),
		log:         log.WithField("component", "controller"),
	}
	c.stateCond = sync.NewCond(&c.compMu)
	c.snapshot.Store(Snapshot{})
	return c
}

// AddComponentFactory registers factory under componentType for later use
// by BasicInit. Must be called before BasicInit. A duplicate registration
// overwrites the previous factory and returns it (see DESIGN.md for the
// documented resolution of this Open Question).
func (c *Controller) AddComponentFactory(componentType string, factory component.Factory) (component.Factory, bool) {
	return c.factories.Add(componentType, factory)
}

// Keymaster returns the Controller's Keymaster client, primarily so a
// daemon binary can also expose it over HTTP.
func (c *Controller) Keymaster() *keymaster.InProcessClient { return c.km }

// BasicInit creates the Keymaster, reads configuration, builds the global
// FSM, instantiates every declared component via its registered factory,
// subscribes to their state keys, computes active-mode sets for every
// mode, and starts the service thread. Returns once every component has
// published Created.
func (c *Controller) BasicInit(ctx context.Context, configYAML []byte) error {
	tree, err := keymaster.LoadYAML(configYAML)
	if err != nil {
		return matrixerr.Wrap(matrixerr.ConfigurationMalformed, "load configuration", err)
	}
	c.tree = tree
	c.km = keymaster.NewInProcessClient(tree)

	comps, err := parseComponents(tree)
	if err != nil {
		return err
	}
	connections, err := parseConnections(tree)
	if err != nil {
		return err
	}
	c.modeConnections = connections

	c.buildGlobalFSM()

	// Deterministic registration order in place of true document order,
	// since the YAML decode step collapses map key order.
	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })

	c.reports = semfifo.New[stateReport](256)

	for _, cc := range comps {
		factory, ok := c.factories.Lookup(cc.Type)
		if !ok {
			c.rollbackPartialComponents(ctx)
			return matrixerr.New(matrixerr.UnknownComponentType, fmt.Sprintf("no factory registered for type %q (component %q)", cc.Type, cc.Name))
		}
		instance, err := factory(cc.Type, cc.Name, c.km)
		if err != nil {
			c.rollbackPartialComponents(ctx)
			return matrixerr.Wrap(matrixerr.ConfigurationMalformed, fmt.Sprintf("construct component %q", cc.Name), err)
		}

		c.compMu.Lock()
		// Active until a set_system_mode call narrows the set: initialize()
		// fires before any mode has been chosen and must still command
		// every declared component (cold-start scenario), so a component
		// starts active and only drops out once its owning mode is known
		// not to include it.
		c.components[cc.Name] = &ComponentInfo{Instance: instance, State: component.StateCreated, Active: true}
		c.componentSeq = append(c.componentSeq, cc.Name)
		c.compMu.Unlock()

		name := cc.Name
		if err := c.km.Subscribe(fmt.Sprintf("components.%s.state", name), func(path string, n keymaster.Node) {
			if !c.reports.TryPut(stateReport{componentName: name, newState: n}) {
				metrics.StateReportsDropped.Inc()
			}
		}); err != nil {
			c.rollbackPartialComponents(ctx)
			return matrixerr.Wrap(matrixerr.ResourceError, fmt.Sprintf("subscribe to component %q state", name), err)
		}
	}

	c.refreshSnapshot()
	c.startServiceLoop()
	c.registerControlRPCs()

	if err := c.km.Put("controller.state", keymaster.Str(c.globalFSM.Current())); err != nil {
		return matrixerr.Wrap(matrixerr.ResourceError, "publish controller.state", err)
	}
	if err := c.km.Put("controller.mode", keymaster.Str("")); err != nil {
		return matrixerr.Wrap(matrixerr.ResourceError, "publish controller.mode", err)
	}
	if err := c.km.Put("controller.status", keymaster.Str("")); err != nil {
		return matrixerr.Wrap(matrixerr.ResourceError, "publish controller.status", err)
	}

	return nil
}

// rollbackPartialComponents tears down every component BasicInit managed
// to construct before a later component failed, so an aborted basic_init
// never leaves a partially-registered component running: its Keymaster
// state subscription stays live and its instance keeps whatever
// resources Shutdown would otherwise release.
func (c *Controller) rollbackPartialComponents(ctx context.Context) {
	c.compMu.Lock()
	names := append([]string(nil), c.componentSeq...)
	c.compMu.Unlock()

	for _, name := range names {
		_ = c.km.Unsubscribe(fmt.Sprintf("components.%s.state", name))
		if inst := c.instanceOf(name); inst != nil {
			_ = inst.Shutdown(ctx)
		}
	}

	c.compMu.Lock()
	c.components = make(map[string]*ComponentInfo)
	c.componentSeq = nil
	c.compMu.Unlock()
}

// registerControlRPCs exposes the lifecycle surface at controller.command
// and controller.set_mode so a remote client such as matrixctl can drive
// the Controller purely through the Keymaster, the same transport
// Components use to receive their own events.
func (c *Controller) registerControlRPCs() {
	timeout := 10 * time.Second

	c.km.RegisterRPC("controller.command", func(_ string, args keymaster.Node) (keymaster.Node, error) {
		ctx := context.Background()
		var ok bool
		var err error
		switch args.Scalar {
		case EventInit:
			ok, err = c.Initialize(ctx, timeout)
		case EventGetReady:
			ok, err = c.Ready(ctx, timeout)
		case EventStart:
			ok, err = c.Start(ctx, timeout)
		case EventStop:
			ok, err = c.Stop(ctx, timeout)
		case EventDoStandby:
			ok, err = c.Standby(ctx, timeout)
		case EventExit:
			ok, err = c.ExitSystem(ctx, timeout)
		default:
			return keymaster.Node{}, matrixerr.New(matrixerr.InvalidState, fmt.Sprintf("unrecognized command %q", args.Scalar))
		}
		if err != nil {
			return keymaster.Node{}, err
		}
		return keymaster.Str(fmt.Sprintf("%v", ok)), nil
	})

	c.km.RegisterRPC("controller.set_mode", func(_ string, args keymaster.Node) (keymaster.Node, error) {
		if err := c.SetSystemMode(args.Scalar); err != nil {
			return keymaster.Node{}, err
		}
		return keymaster.Str("ok"), nil
	})
}

func (c *Controller) buildGlobalFSM() {
	c.globalFSM = fsm.New(StateCreated)
	c.globalFSM.AddTransition(fsm.Transition{From: StateCreated, Event: EventInit, To: StateStandby})
	c.globalFSM.AddTransition(fsm.Transition{From: StateStandby, Event: EventGetReady, To: StateReady})
	c.globalFSM.AddTransition(fsm.Transition{From: StateReady, Event: EventStart, To: StateRunning})
	c.globalFSM.AddTransition(fsm.Transition{From: StateRunning, Event: EventStop, To: StateReady})
	c.globalFSM.AddTransition(fsm.Transition{From: StateReady, Event: EventDoStandby, To: StateStandby})
	for _, from := range []string{StateCreated, StateStandby, StateReady, StateRunning} {
		c.globalFSM.AddTransition(fsm.Transition{From: from, Event: EventExit, To: StateExiting})
	}
	for _, s := range []string{StateCreated, StateStandby, StateReady, StateRunning, StateExiting} {
		state := s
		c.globalFSM.AddEntryAction(state, func(string) {
			if c.km != nil {
				_ = c.km.Put("controller.state", keymaster.Str(state))
			}
		})
	}
}

// SetSystemMode looks up connections.<mode> and recomputes the active
// flag for every component. May only be called while the global FSM is
// in Standby; otherwise fails with InvalidState.
func (c *Controller) SetSystemMode(mode string) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if c.globalFSM.Current() != StateStandby {
		return matrixerr.New(matrixerr.InvalidState, "set_system_mode is only valid while the global FSM is in Standby")
	}

	eps, ok := c.modeConnections[mode]
	if !ok {
		return matrixerr.New(matrixerr.UnknownMode, fmt.Sprintf("no connections defined for mode %q", mode))
	}

	activeNames := make(map[string]bool, len(eps))
	for _, ep := range eps {
		activeNames[ep.Component] = true
	}

	c.compMu.Lock()
	for name, info := range c.components {
		info.Active = activeNames[name]
	}
	c.compMu.Unlock()

	c.currentMode = mode
	metrics.ActiveComponents.Set(float64(len(activeNames)))
	c.refreshSnapshot()

	if c.km != nil {
		if err := c.km.Put("controller.mode", keymaster.Str(mode)); err != nil {
			return matrixerr.Wrap(matrixerr.ResourceError, "publish controller.mode", err)
		}
	}
	return nil
}

// refreshSnapshot copies the component map into an immutable Snapshot for
// FSM guards, taking compMu then publishing without holding it —
// preserving the component-map-before-FSM lock order without ever
// holding both locks at once.
func (c *Controller) refreshSnapshot() {
	c.compMu.Lock()
	snap := make(Snapshot, len(c.components))
	for name, info := range c.components {
		snap[name] = *info
	}
	c.compMu.Unlock()
	c.snapshot.Store(snap)
}

func (c *Controller) currentSnapshot() Snapshot {
	return c.snapshot.Load().(Snapshot)
}

// startServiceLoop launches the dedicated goroutine that drains
// state-report events from the internal SemFIFO and applies them to
// the component map.
func (c *Controller) startServiceLoop() {
	c.serviceWG.Add(1)
	go func() {
		defer c.serviceWG.Done()
		for {
			report, ok := c.reports.Get()
			if !ok {
				return
			}
			c.applyStateReport(report)
		}
	}()
}

func (c *Controller) applyStateReport(r stateReport) {
	c.compMu.Lock()
	info, ok := c.components[r.componentName]
	if ok {
		info.State = r.newState.Scalar
	}
	c.compMu.Unlock()

	if !ok {
		c.log.Warnf("state report for unknown component %q", r.componentName)
		return
	}

	c.refreshSnapshot()

	c.compMu.Lock()
	c.stateCond.Broadcast()
	c.compMu.Unlock()

	// Self-event: re-evaluate the global FSM's registered guards (if any)
	// against the freshly updated snapshot. No transition in this
	// Controller's table currently depends on component state at fire
	// time - quorum is enforced explicitly by wait_all_in_state after
	// commanding - but the hook exists for callers that register
	// additional guarded transitions keyed off component state.
	c.globalFSM.HandleEvent("__recheck__")
}

// CheckAllInState returns true iff every active component's
// last-observed state equals state.
func (c *Controller) CheckAllInState(state string) bool {
	snap := c.currentSnapshot()
	for _, info := range snap {
		if info.Active && info.State != state {
			return false
		}
	}
	return true
}

// WaitAllInState blocks until CheckAllInState(state) or timeout elapses.
// A negative timeout waits indefinitely. Implemented with the condition
// variable the service loop broadcasts on every component-map update.
// Terminate also broadcasts, after marking the Controller as
// terminating, so a caller parked here on a state teardown will never
// produce is released rather than left waiting forever, returning false
// same as a timeout would.
func (c *Controller) WaitAllInState(state string, timeout time.Duration) bool {
	c.compMu.Lock()
	defer c.compMu.Unlock()

	allIn := func() bool {
		for _, info := range c.components {
			if info.Active && info.State != state {
				return false
			}
		}
		return true
	}

	if allIn() {
		return true
	}
	if c.terminating {
		return false
	}
	if timeout < 0 {
		for !allIn() {
			c.stateCond.Wait()
			if c.terminating {
				return false
			}
		}
		return true
	}

	deadline := time.Now().Add(timeout)
	for !allIn() {
		if c.terminating {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, func() {
			c.compMu.Lock()
			c.stateCond.Broadcast()
			c.compMu.Unlock()
		})
		c.stateCond.Wait()
		timer.Stop()
	}
	return true
}

// activeComponentsInOrder returns the names of active components in
// registration order, the order in which they are commanded.
func (c *Controller) activeComponentsInOrder() []string {
	c.compMu.Lock()
	defer c.compMu.Unlock()
	var out []string
	for _, name := range c.componentSeq {
		if c.components[name].Active {
			out = append(out, name)
		}
	}
	return out
}

func (c *Controller) instanceOf(name string) component.Component {
	c.compMu.Lock()
	defer c.compMu.Unlock()
	return c.components[name].Instance
}

func (c *Controller) setStatus(s string) {
	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
	if c.km != nil {
		_ = c.km.Put("controller.status", keymaster.Str(s))
	}
}

// Status returns the Controller's current status advisory ("" or
// "degraded").
func (c *Controller) Status() string {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// runLifecycle is the shared implementation behind initialize/ready/
// start/stop/standby/exit_system: fire the global FSM event, fan the
// same event out to every active component in registration order, then
// wait for quorum on expectedState. No rollback on timeout: the global
// FSM keeps the state it already transitioned to and status is set to
// "degraded".
func (c *Controller) runLifecycle(ctx context.Context, globalEvent, componentEvent, expectedState string, timeout time.Duration) (bool, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if !c.globalFSM.HandleEvent(globalEvent) {
		return false, matrixerr.New(matrixerr.InvalidState, fmt.Sprintf("event %q not valid from state %q", globalEvent, c.globalFSM.Current()))
	}

	for _, name := range c.activeComponentsInOrder() {
		inst := c.instanceOf(name)
		if err := inst.HandleEvent(ctx, componentEvent); err != nil {
			c.setStatus("degraded")
			return false, matrixerr.Wrap(matrixerr.ComponentError, fmt.Sprintf("component %q rejected event %q", name, componentEvent), err)
		}
	}

	timer := prometheusTimer(globalEvent)
	ok := c.WaitAllInState(expectedState, timeout)
	timer()

	if !ok {
		c.setStatus("degraded")
		return false, matrixerr.New(matrixerr.QuorumTimeout, fmt.Sprintf("timed out waiting for all active components to reach %q", expectedState))
	}

	c.setStatus("")
	return true, nil
}

// Initialize sends the init event: Created -> Standby, commanding every
// active component to reach Standby.
func (c *Controller) Initialize(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.runLifecycle(ctx, EventInit, component.EventInit, component.StateStandby, timeout)
}

// Ready sends the get_ready event: Standby -> Ready.
func (c *Controller) Ready(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.runLifecycle(ctx, EventGetReady, component.EventDoReady, component.StateReady, timeout)
}

// Start sends the start event: Ready -> Running.
func (c *Controller) Start(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.runLifecycle(ctx, EventStart, component.EventStart, component.StateRunning, timeout)
}

// Stop sends the stop event: Running -> Ready.
func (c *Controller) Stop(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.runLifecycle(ctx, EventStop, component.EventStop, component.StateReady, timeout)
}

// Standby sends the do_standby event: Ready -> Standby.
func (c *Controller) Standby(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.runLifecycle(ctx, EventDoStandby, component.EventDoStandby, component.StateStandby, timeout)
}

// ExitSystem sends the exit event to the global FSM and every active
// component, then waits for them to reach Exiting.
func (c *Controller) ExitSystem(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.runLifecycle(ctx, EventExit, component.EventExit, component.StateExiting, timeout)
}

// SendEvent injects an arbitrary user-defined event into the global FSM
// without any component fan-out, for application-specific transitions
// registered by a subclassing daemon.
func (c *Controller) SendEvent(event string) bool {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	return c.globalFSM.HandleEvent(event)
}

// AddGlobalTransition exposes the global FSM's transition table for
// application-specific extension, mirroring Controller.h's intent that
// "applications would typically derive from the Controller to implement
// additional application-specific control logic."
func (c *Controller) AddGlobalTransition(t fsm.Transition) {
	c.globalFSM.AddTransition(t)
}

// GlobalState returns the current global FSM state.
func (c *Controller) GlobalState() string { return c.globalFSM.Current() }

// Terminate issues exit to every active component, waits (bounded) for
// them to reach Exiting, shuts down every component, releases the SemFIFO
// to unblock the service loop, joins it, and destroys the Keymaster.
func (c *Controller) Terminate(ctx context.Context, timeout time.Duration) {
	c.callMu.Lock()
	for _, name := range c.activeComponentsInOrder() {
		inst := c.instanceOf(name)
		_ = inst.HandleEvent(ctx, component.EventExit)
	}
	c.callMu.Unlock()

	c.WaitAllInState(component.StateExiting, timeout)

	// Release any caller still parked in wait_all_in_state on a state this
	// teardown will never produce (e.g. "Running" while everything is
	// headed to Exiting). applyStateReport only broadcasts on a genuine
	// component transition, and none of the exiting components will ever
	// report the state such a waiter is blocked on.
	c.compMu.Lock()
	c.terminating = true
	c.stateCond.Broadcast()
	names := append([]string(nil), c.componentSeq...)
	c.compMu.Unlock()
	for _, name := range names {
		_ = c.km.Unsubscribe(fmt.Sprintf("components.%s.state", name))
		inst := c.instanceOf(name)
		_ = inst.Shutdown(ctx)
	}

	c.reports.Release()
	c.serviceWG.Wait()

	if c.km != nil {
		_ = c.km.Close()
	}
}

func prometheusTimer(event string) func() {
	start := time.Now()
	return func() {
		metrics.QuorumWaitSeconds.WithLabelValues(event).Observe(time.Since(start).Seconds())
	}
}

// NewCorrelationID returns a fresh random UUID string suitable for RPC
// correlation. No code in this module calls it.
func NewCorrelationID() string {
	return uuid.NewString()
}
