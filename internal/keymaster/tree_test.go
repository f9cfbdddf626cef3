package keymaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreePutCreatesIntermediateMaps(t *testing.T) {
	tr := NewTree()
	require.NoError(t, tr.Put("a.b.c", Str("leaf")))

	n, err := tr.Get("a.b.c")
	require.NoError(t, err)
	assert.Equal(t, "leaf", n.Scalar)
}

func TestTreeGetMissingSegmentErrors(t *testing.T) {
	tr := NewTree()
	require.NoError(t, tr.Put("a.b", Str("x")))

	_, err := tr.Get("a.b.c")
	assert.Error(t, err, "b is a scalar, not a map, so descending into it must fail")
}

func TestTreeWalkVisitsAllLeaves(t *testing.T) {
	tr := NewTree()
	require.NoError(t, tr.Put("components.c1.state", Str("Created")))
	require.NoError(t, tr.Put("components.c2.state", Str("Standby")))

	seen := map[string]string{}
	require.NoError(t, tr.Walk("components", func(path string, n Node) {
		seen[path] = n.Scalar
	}))

	assert.Equal(t, map[string]string{
		"components.c1.state": "Created",
		"components.c2.state": "Standby",
	}, seen)
}

func TestTreePutOverwritesExisting(t *testing.T) {
	tr := NewTree()
	require.NoError(t, tr.Put("x", Str("1")))
	require.NoError(t, tr.Put("x", Str("2")))

	n, err := tr.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "2", n.Scalar)
}
