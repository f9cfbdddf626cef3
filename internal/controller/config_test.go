package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrao/matrixcore/internal/keymaster"
)

func TestParseComponentsMissingSectionIsLegalEmpty(t *testing.T) {
	tr, err := keymaster.LoadYAML([]byte(`connections: {}`))
	require.NoError(t, err)

	comps, err := parseComponents(tr)
	require.NoError(t, err)
	assert.Empty(t, comps)
}

func TestParseComponentsRequiresType(t *testing.T) {
	tr, err := keymaster.LoadYAML([]byte(`
components:
  a: {}
`))
	require.NoError(t, err)

	_, err = parseComponents(tr)
	assert.Error(t, err)
}

func TestParseComponentsReadsTypePerEntry(t *testing.T) {
	tr, err := keymaster.LoadYAML([]byte(`
components:
  a:
    type: generator
  b:
    type: sink
`))
	require.NoError(t, err)

	comps, err := parseComponents(tr)
	require.NoError(t, err)
	assert.Len(t, comps, 2)
}

func TestParseConnectionsBuildsEndpointPairs(t *testing.T) {
	tr, err := keymaster.LoadYAML([]byte(`
connections:
  active:
    - [a.output, b.output]
`))
	require.NoError(t, err)

	conns, err := parseConnections(tr)
	require.NoError(t, err)
	require.Len(t, conns["active"], 2)
	assert.Equal(t, "a", conns["active"][0].Component)
	assert.Equal(t, "output", conns["active"][0].Channel)
	assert.Equal(t, "b", conns["active"][1].Component)
}

func TestParseConnectionsRejectsNonPairEntries(t *testing.T) {
	tr, err := keymaster.LoadYAML([]byte(`
connections:
  active:
    - [a.output]
`))
	require.NoError(t, err)

	_, err = parseConnections(tr)
	assert.Error(t, err)
}

func TestParseEndpointSplitsOnLastDot(t *testing.T) {
	ep, err := parseEndpoint("gen1.output")
	require.NoError(t, err)
	assert.Equal(t, "gen1", ep.Component)
	assert.Equal(t, "output", ep.Channel)
}

func TestParseEndpointRejectsMissingDot(t *testing.T) {
	_, err := parseEndpoint("nodots")
	assert.Error(t, err)
}
