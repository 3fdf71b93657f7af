package validation

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"metadata-enricher/internal/common/errors"
)

// Validator collects every failed check so a config reports all of its
// problems in one error instead of stopping at the first.
type Validator struct {
	prefix   string
	problems []error
}

func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithPrefix prepends "prefix: " to every message.
func NewValidatorWithPrefix(prefix string) *Validator {
	return &Validator{prefix: prefix}
}

func (v *Validator) RequireString(value, name string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.fail("%s is required", name)
	}
	return v
}

// RequireURL accepts absolute URLs only.
func (v *Validator) RequireURL(value, name string) *Validator {
	if value == "" {
		return v.fail("%s is required", name)
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.fail("%s must be a valid URL: %v", name, err)
	case u.Scheme == "" || u.Host == "":
		v.fail("%s must be a complete URL with scheme and host", name)
	}
	return v
}

func (v *Validator) RequireOneOf(value string, allowed []string, name string) *Validator {
	if value == "" {
		return v.fail("%s is required", name)
	}
	if !slices.Contains(allowed, value) {
		v.fail("%s must be one of: %s", name, strings.Join(allowed, ", "))
	}
	return v
}

// RequireIntInRange parses value as a base 10 integer within [lo, hi].
func (v *Validator) RequireIntInRange(value string, lo, hi int, name string) *Validator {
	n, err := strconv.Atoi(value)
	if err != nil || n < lo || n > hi {
		v.fail("%s must be a number between %d and %d", name, lo, hi)
	}
	return v
}

// Validate records fn's error, if any, as is.
func (v *Validator) Validate(fn func() error) *Validator {
	if err := fn(); err != nil {
		v.problems = append(v.problems, err)
	}
	return v
}

func (v *Validator) ValidateIf(condition bool, fn func() error) *Validator {
	if !condition {
		return v
	}
	return v.Validate(fn)
}

func (v *Validator) fail(format string, args ...any) *Validator {
	msg := fmt.Sprintf(format, args...)
	if v.prefix != "" {
		msg = v.prefix + ": " + msg
	}
	v.problems = append(v.problems, fmt.Errorf("%s", msg))
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.problems) > 0
}

func (v *Validator) Errors() []error {
	return v.problems
}

// Error returns nil when every check passed, otherwise one config error
// joining the messages in the order they were recorded.
func (v *Validator) Error() error {
	switch len(v.problems) {
	case 0:
		return nil
	case 1:
		return errors.ConfigError(v.problems[0].Error())
	}
	msgs := make([]string, 0, len(v.problems))
	for _, p := range v.problems {
		msgs = append(msgs, p.Error())
	}
	return errors.ConfigError("validation failed: " + strings.Join(msgs, "; "))
}
