package canonical

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// mxj marks attributes with this prefix by default.
const mxjAttrPrefix = "-"

// ParseXML converts an XML document into a tree whose single top-level key
// is the root element name. Attributes become "@name" keys, text beside
// attributes becomes "#text", and repeated sibling elements become a List
// in document order. mxj does not keep the order of differently named
// siblings, so map keys are emitted in lexical order.
func ParseXML(data []byte) (*Map, error) {
	mv, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}

	root, ok := fromMXJ(map[string]interface{}(mv)).(*Map)
	if !ok {
		return nil, fmt.Errorf("invalid XML: no root element")
	}
	return root, nil
}

func fromMXJ(v interface{}) any {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		converted := make(map[string]string, len(keys))
		for i, k := range keys {
			name := k
			if strings.HasPrefix(k, mxjAttrPrefix) {
				name = AttrPrefix + strings.TrimPrefix(k, mxjAttrPrefix)
			}
			converted[name] = k
			keys[i] = name
		}
		sort.Strings(keys)

		m := newMap(len(keys))
		for _, name := range keys {
			m.set(name, fromMXJ(t[converted[name]]))
		}
		return m

	case []interface{}:
		list := make(List, 0, len(t))
		for _, item := range t {
			list = append(list, fromMXJ(item))
		}
		return list

	case nil:
		return ""

	case string:
		return t

	default:
		return fmt.Sprint(t)
	}
}
