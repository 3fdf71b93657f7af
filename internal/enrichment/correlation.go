package enrichment

import (
	"path"
	"regexp"
	"strings"
)

// ExtractCorrelationID returns the id used to look the asset up in the
// source system. A non-blank override wins. Otherwise, with a pattern, the
// first capture group (or the whole match) of the pattern applied to the
// file's base name is used; without one, the base name minus its
// extension. An empty result means the asset cannot be identified.
func ExtractCorrelationID(fileName, override, pattern string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}

	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if base == "." || base == "/" {
		return "", nil
	}

	if pattern == "" {
		return strings.TrimSpace(strings.TrimSuffix(base, path.Ext(base))), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", err
	}
	m := re.FindStringSubmatch(base)
	switch {
	case m == nil:
		return "", nil
	case len(m) > 1:
		return strings.TrimSpace(m[1]), nil
	default:
		return strings.TrimSpace(m[0]), nil
	}
}
