package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrao/matrixcore/internal/keymaster"
)

func noopFactory(componentType, name string, km keymaster.Client) (Component, error) {
	return nil, nil
}

func TestRegistryLookupMissingReturnsFalse(t *testing.T) {
	r := NewFactoryRegistry()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistryAddThenLookup(t *testing.T) {
	r := NewFactoryRegistry()
	_, hadPrevious := r.Add("gen", noopFactory)
	assert.False(t, hadPrevious)

	f, ok := r.Lookup("gen")
	require.True(t, ok)
	require.NotNil(t, f)
}

func TestRegistryDuplicateAddOverwritesAndReturnsPrevious(t *testing.T) {
	r := NewFactoryRegistry()
	first, _ := r.Add("gen", noopFactory)
	assert.Nil(t, first)

	second := func(componentType, name string, km keymaster.Client) (Component, error) { return nil, nil }
	previous, hadPrevious := r.Add("gen", second)
	assert.True(t, hadPrevious)
	assert.NotNil(t, previous)

	f, ok := r.Lookup("gen")
	require.True(t, ok)
	require.NotNil(t, f)
}

func TestBaseStartsInCreatedAndPublishesState(t *testing.T) {
	km := keymaster.NewInProcessClient(nil)
	b, err := NewBase("c1", km)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, b.CurrentState())

	n, err := km.Get("components.c1.state")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, n.Scalar)
}

func TestBaseHandleEventAdvancesAndPublishes(t *testing.T) {
	km := keymaster.NewInProcessClient(nil)
	b, err := NewBase("c1", km)
	require.NoError(t, err)

	require.NoError(t, b.HandleEvent(context.Background(), EventInit))
	assert.Equal(t, StateStandby, b.CurrentState())

	n, err := km.Get("components.c1.state")
	require.NoError(t, err)
	assert.Equal(t, StateStandby, n.Scalar)
}

func TestBaseHandleEventRejectsIllegalTransition(t *testing.T) {
	km := keymaster.NewInProcessClient(nil)
	b, err := NewBase("c1", km)
	require.NoError(t, err)

	err = b.HandleEvent(context.Background(), EventStart)
	assert.Error(t, err)
}

func TestBaseRegisterCommandRPCDispatchesEvents(t *testing.T) {
	km := keymaster.NewInProcessClient(nil)
	b, err := NewBase("c1", km)
	require.NoError(t, err)

	var received string
	b.RegisterCommandRPC(func(ctx context.Context, event string) error {
		received = event
		return b.HandleEvent(ctx, event)
	})

	_, err = km.RPC("components.c1.command", keymaster.Str(EventInit))
	require.NoError(t, err)
	assert.Equal(t, EventInit, received)
	assert.Equal(t, StateStandby, b.CurrentState())
}
