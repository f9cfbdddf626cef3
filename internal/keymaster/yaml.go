package keymaster

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadYAML parses a YAML document into a Tree. Generalizes the original
// Matrix Keymaster's yaml-cpp-backed configuration load.
func LoadYAML(data []byte) (*Tree, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("keymaster: parse config: %w", err)
	}
	return NewTreeFromNode(fromYAML(raw)), nil
}

func fromYAML(v interface{}) Node {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]Node, len(t))
		for k, val := range t {
			m[k] = fromYAML(val)
		}
		return MapNode(m)
	case map[interface{}]interface{}:
		m := make(map[string]Node, len(t))
		for k, val := range t {
			m[fmt.Sprintf("%v", k)] = fromYAML(val)
		}
		return MapNode(m)
	case []interface{}:
		items := make([]Node, len(t))
		for i, val := range t {
			items[i] = fromYAML(val)
		}
		return ListNode(items)
	case nil:
		return Node{Kind: KindNull}
	default:
		return Str(fmt.Sprintf("%v", t))
	}
}
