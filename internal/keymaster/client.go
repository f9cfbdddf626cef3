package keymaster

import (
	"fmt"
	"sync"
)

// Callback receives change notifications for a subscribed path. It must
// be non-blocking beyond a bounded try-enqueue: it runs on a
// Keymaster-owned delivery goroutine of its own subscription, and a slow
// callback delays that subscription's later notifications until its
// queue fills, after which further notifications to it are dropped.
type Callback func(path string, node Node)

// RPCHandler answers an RPC call at a given path.
type RPCHandler func(path string, args Node) (Node, error)

// Client is the interface the orchestration core requires of the
// Keymaster: synchronous tree read/write, path subscriptions delivered in
// write order per path, and an optional RPC surface used for the
// lifecycle-command surface.
type Client interface {
	Get(path string) (Node, error)
	Put(path string, node Node) error
	Subscribe(path string, cb Callback) error
	Unsubscribe(path string) error
	RPC(path string, args Node) (Node, error)
	RegisterRPC(path string, handler RPCHandler)
	Close() error
}

// subscription serializes callback delivery for one path on its own
// goroutine so that, per path, callbacks observe writes in the order Put
// accepted them, even though Put itself may be called concurrently from
// many goroutines.
type subscription struct {
	path  string
	cb    Callback
	queue chan Node
	done  chan struct{}
}

func newSubscription(path string, cb Callback) *subscription {
	s := &subscription{
		path:  path,
		cb:    cb,
		queue: make(chan Node, 64),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *subscription) loop() {
	for {
		select {
		case n := <-s.queue:
			s.cb(s.path, n)
		case <-s.done:
			// drain remaining queued notifications before exiting so a
			// write accepted just before Unsubscribe is still delivered
			for {
				select {
				case n := <-s.queue:
					s.cb(s.path, n)
				default:
					return
				}
			}
		}
	}
}

func (s *subscription) notify(n Node) {
	// The Keymaster never blocks a writer on a slow subscriber: if the
	// per-subscription queue is saturated, the oldest guarantee we keep
	// is ordering, not delivery, so we drop silently here. Put holds the
	// client lock across the enqueue, which keeps the order of what is
	// delivered; it does not prevent this drop.
	select {
	case s.queue <- n:
	default:
	}
}

func (s *subscription) stop() {
	close(s.done)
}

// InProcessClient is a Client implementation backed by an in-memory Tree,
// used by single-process deployments and by tests. All operations are
// synchronous except subscription delivery, which happens on a
// per-subscription goroutine as described above.
type InProcessClient struct {
	mu   sync.Mutex
	tree *Tree

	subs map[string][]*subscription
	rpcs map[string]RPCHandler
}

var _ Client = (*InProcessClient)(nil)

// NewInProcessClient returns a Client wrapping tree. If tree is nil, an
// empty tree is created.
func NewInProcessClient(tree *Tree) *InProcessClient {
	if tree == nil {
		tree = NewTree()
	}
	return &InProcessClient{
		tree: tree,
		subs: make(map[string][]*subscription),
		rpcs: make(map[string]RPCHandler),
	}
}

func (c *InProcessClient) Get(path string) (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Get(path)
}

// Put writes node at path and notifies subscribers of path itself, of
// every ancestor path, and of every descendant path that still exists
// after the write, each with the node now at its own path, in the order
// Put calls were accepted — the tree lock is held across notification
// enqueue so two concurrent Puts to related paths cannot reorder their
// deliveries to a shared subscriber.
func (c *InProcessClient) Put(path string, node Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.tree.Put(path, node); err != nil {
		return err
	}

	for subPath, subs := range c.subs {
		if !isDescendantOrSelf(subPath, path) && !isDescendantOrSelf(path, subPath) {
			continue
		}
		current, err := c.tree.Get(subPath)
		if err != nil {
			continue
		}
		for _, s := range subs {
			s.notify(current)
		}
	}
	return nil
}

// isDescendantOrSelf reports whether candidate is path or a descendant of
// path in dotted-path terms.
func isDescendantOrSelf(path, candidate string) bool {
	if path == candidate {
		return true
	}
	if path == "" {
		return true
	}
	return len(candidate) > len(path) && candidate[:len(path)] == path && candidate[len(path)] == '.'
}

func (c *InProcessClient) Subscribe(path string, cb Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := newSubscription(path, cb)
	c.subs[path] = append(c.subs[path], sub)
	return nil
}

func (c *InProcessClient) Unsubscribe(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.subs[path]
	if !ok {
		return fmt.Errorf("keymaster: no subscription on %q", path)
	}
	for _, s := range subs {
		s.stop()
	}
	delete(c.subs, path)
	return nil
}

func (c *InProcessClient) RegisterRPC(path string, handler RPCHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rpcs[path] = handler
}

func (c *InProcessClient) RPC(path string, args Node) (Node, error) {
	c.mu.Lock()
	handler, ok := c.rpcs[path]
	c.mu.Unlock()
	if !ok {
		return Node{}, fmt.Errorf("keymaster: no RPC handler registered at %q", path)
	}
	return handler(path, args)
}

func (c *InProcessClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, subs := range c.subs {
		for _, s := range subs {
			s.stop()
		}
	}
	c.subs = make(map[string][]*subscription)
	return nil
}
