package canonical

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML document into the same shape ParseJSON
// produces: mapping order is kept, integers and floats become json.Number,
// and every other scalar tag is read as text.
func ParseYAML(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	return fromYAML(&doc)
}

// ParseYAMLObject is ParseYAML for documents that must be mappings.
func ParseYAMLObject(data []byte) (*Map, error) {
	v, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, fmt.Errorf("expected a YAML mapping, got %s", Kind(v))
	}
	return m, nil
}

func fromYAML(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return fromYAML(node.Content[0])

	case yaml.AliasNode:
		return fromYAML(node.Alias)

	case yaml.MappingNode:
		m := newMap(len(node.Content) / 2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			value, err := fromYAML(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.set(keyNode.Value, value)
		}
		return m, nil

	case yaml.SequenceNode:
		list := make(List, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := fromYAML(item)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil

	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!int", "!!float":
			return json.Number(node.Value), nil
		default:
			return node.Value, nil
		}
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", node.Line)
}

// UnmarshalJSON lets a Map be embedded in decoded configuration.
func (m *Map) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSONObject(data)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// UnmarshalYAML is UnmarshalJSON for YAML documents.
func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	v, err := fromYAML(node)
	if err != nil {
		return err
	}
	parsed, ok := v.(*Map)
	if !ok {
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, Kind(v))
	}
	*m = *parsed
	return nil
}

// Merge returns a new map holding base overlaid by override at the top
// level only: keys of override replace whole values of base, new keys are
// appended in override order. Neither input is modified.
func Merge(base, override *Map) *Map {
	out := newMap(base.Len() + override.Len())
	base.Range(func(k string, v any) bool {
		out.set(k, v)
		return true
	})
	override.Range(func(k string, v any) bool {
		out.set(k, v)
		return true
	})
	return out
}
