package keymaster

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := NewInProcessClient(nil)
	require.NoError(t, c.Put("components.c1.state", Str("Created")))

	n, err := c.Get("components.c1.state")
	require.NoError(t, err)
	assert.Equal(t, "Created", n.Scalar)
}

func TestGetMissingPathErrors(t *testing.T) {
	c := NewInProcessClient(nil)
	_, err := c.Get("nope.nothing")
	assert.Error(t, err)
}

func TestSubscriptionDeliversInWriteOrder(t *testing.T) {
	c := NewInProcessClient(nil)

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 1)

	require.NoError(t, c.Subscribe("components.c1.state", func(path string, n Node) {
		mu.Lock()
		seen = append(seen, n.Scalar)
		if len(seen) == 4 {
			done <- struct{}{}
		}
		mu.Unlock()
	}))

	states := []string{"Created", "Standby", "Ready", "Running"}
	for _, s := range states {
		require.NoError(t, c.Put("components.c1.state", Str(s)))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscription callback never saw all writes")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, states, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := NewInProcessClient(nil)
	var count int
	var mu sync.Mutex

	require.NoError(t, c.Subscribe("x.y", func(path string, n Node) {
		mu.Lock()
		count++
		mu.Unlock()
	}))
	require.NoError(t, c.Put("x.y", Str("1")))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Unsubscribe("x.y"))
	require.NoError(t, c.Put("x.y", Str("2")))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestRPCRoundTrip(t *testing.T) {
	c := NewInProcessClient(nil)
	c.RegisterRPC("components.c1.command", func(path string, args Node) (Node, error) {
		return Str("ack:" + args.Scalar), nil
	})

	res, err := c.RPC("components.c1.command", Str("start"))
	require.NoError(t, err)
	assert.Equal(t, "ack:start", res.Scalar)
}

func TestRPCUnregisteredErrors(t *testing.T) {
	c := NewInProcessClient(nil)
	_, err := c.RPC("nope", Node{})
	assert.Error(t, err)
}
