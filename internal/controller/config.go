package controller

import (
	"fmt"

	"github.com/nrao/matrixcore/internal/keymaster"
	"github.com/nrao/matrixcore/internal/matrixerr"
)

// componentConfig is one entry of the "components" section: a name and
// its declared factory type. Opaque per-component configuration is left
// in the Keymaster tree for the component itself to read at
// components.<name>.
type componentConfig struct {
	Name string
	Type string
}

// endpoint is one half of a connection: "component.channel".
type endpoint struct {
	Component string
	Channel   string
}

// parseComponents reads the "components" section of the configuration
// tree: components.<name>.type = <factory type>.
func parseComponents(tree *keymaster.Tree) ([]componentConfig, error) {
	root, err := tree.Get("components")
	if err != nil {
		// No components declared is a legal, if useless, configuration.
		return nil, nil
	}
	if root.Kind != keymaster.KindMap {
		return nil, matrixerr.New(matrixerr.ConfigurationMalformed, `"components" must be a map`)
	}

	var out []componentConfig
	for name, node := range root.Map {
		if node.Kind != keymaster.KindMap {
			return nil, matrixerr.New(matrixerr.ConfigurationMalformed, fmt.Sprintf("components.%s must be a map", name))
		}
		typeNode, ok := node.Map["type"]
		if !ok || typeNode.Kind != keymaster.KindScalar || typeNode.Scalar == "" {
			return nil, matrixerr.New(matrixerr.ConfigurationMalformed, fmt.Sprintf("components.%s.type is required", name))
		}
		out = append(out, componentConfig{Name: name, Type: typeNode.Scalar})
	}
	return out, nil
}

// parseConnections reads the "connections" section: a map from mode name
// to a list of "component.channel -> component.channel" pairs. Each
// connection entry in the tree is itself a two-element list of endpoint
// strings [source, sink].
func parseConnections(tree *keymaster.Tree) (map[string][]endpoint, error) {
	root, err := tree.Get("connections")
	if err != nil {
		return map[string][]endpoint{}, nil
	}
	if root.Kind != keymaster.KindMap {
		return nil, matrixerr.New(matrixerr.ConfigurationMalformed, `"connections" must be a map`)
	}

	modes := make(map[string][]endpoint, len(root.Map))
	for mode, listNode := range root.Map {
		if listNode.Kind != keymaster.KindList {
			return nil, matrixerr.New(matrixerr.ConfigurationMalformed, fmt.Sprintf("connections.%s must be a list", mode))
		}
		var eps []endpoint
		for _, pairNode := range listNode.List {
			if pairNode.Kind != keymaster.KindList || len(pairNode.List) != 2 {
				return nil, matrixerr.New(matrixerr.ConfigurationMalformed, fmt.Sprintf("connections.%s entries must be [source, sink] pairs", mode))
			}
			for _, epNode := range pairNode.List {
				ep, err := parseEndpoint(epNode.Scalar)
				if err != nil {
					return nil, matrixerr.Wrap(matrixerr.ConfigurationMalformed, fmt.Sprintf("connections.%s", mode), err)
				}
				eps = append(eps, ep)
			}
		}
		modes[mode] = eps
	}
	return modes, nil
}

func parseEndpoint(s string) (endpoint, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return endpoint{Component: s[:i], Channel: s[i+1:]}, nil
		}
	}
	return endpoint{}, fmt.Errorf("endpoint %q is not of the form component.channel", s)
}
