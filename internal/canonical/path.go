package canonical

import (
	"strconv"
	"strings"

	"metadata-enricher/internal/common/errors"
)

// Lookup walks a dot-separated path. Numeric segments index lists.
func Lookup(v any, path string) (any, bool) {
	result, failed := walk(v, path)
	return result, failed == ""
}

// Traverse is Lookup that reports the first missing segment as a
// MetadataPathNotFound error. An empty path returns v.
func Traverse(v any, path string) (any, error) {
	if path == "" {
		return v, nil
	}
	result, failed := walk(v, path)
	if failed != "" {
		return nil, errors.MetadataPathNotFoundError(path, failed)
	}
	return result, nil
}

func walk(v any, path string) (any, string) {
	current := v
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case *Map:
			next, ok := node.Get(segment)
			if !ok {
				return nil, segment
			}
			current = next
		case List:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, segment
			}
			current = node[idx]
		default:
			return nil, segment
		}
	}
	return current, ""
}
