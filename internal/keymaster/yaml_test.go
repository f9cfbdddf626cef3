package keymaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLNestedMapsAndLists(t *testing.T) {
	doc := []byte(`
components:
  gen1:
    type: generator
    period_ms: "50"
connections:
  active:
    - [gen1.output, sink1.output]
`)
	tr, err := LoadYAML(doc)
	require.NoError(t, err)

	typeNode, err := tr.Get("components.gen1.type")
	require.NoError(t, err)
	assert.Equal(t, "generator", typeNode.Scalar)

	connNode, err := tr.Get("connections.active")
	require.NoError(t, err)
	require.Equal(t, KindList, connNode.Kind)
	require.Len(t, connNode.List, 1)
	require.Equal(t, KindList, connNode.List[0].Kind)
	assert.Equal(t, "gen1.output", connNode.List[0].List[0].Scalar)
}

func TestLoadYAMLMalformedDocumentErrors(t *testing.T) {
	_, err := LoadYAML([]byte("components: [unbalanced"))
	assert.Error(t, err)
}
