// Package checks evaluates assertions over response bodies. A check is
// written as "json:<path>[==value]" or "regex:<pattern>"; an iteration whose
// response fails any check is recorded as a failure.
package checks

import (
	"fmt"
	"regexp"
	"strings"
)

type Kind string

const (
	KindJSON  Kind = "json"
	KindRegex Kind = "regex"
)

// Check is a single parsed assertion. The zero value is not usable; build
// checks with Parse.
type Check struct {
	Kind Kind
	// Path is the JSON path for KindJSON checks, or the pattern for KindRegex.
	Path string
	// Want is the expected value. Empty with HasWant false means the path
	// only needs to exist.
	Want    string
	HasWant bool

	raw string
	re  *regexp.Regexp
}

// Parse compiles a check expression.
func Parse(expr string) (Check, error) {
	raw := strings.TrimSpace(expr)
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Check{}, fmt.Errorf("check %q: expected json:<path> or regex:<pattern>", expr)
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Check{}, fmt.Errorf("check %q: empty expression", expr)
	}

	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindJSON:
		c := Check{Kind: KindJSON, raw: raw, Path: rest}
		// The last "==" outside a gjson query such as items.#(id==1) separates
		// the expected value.
		if idx := strings.LastIndex(rest, "=="); idx >= 0 && !strings.ContainsAny(rest[idx+2:], ")]") {
			c.Path = normalizePath(strings.TrimSpace(rest[:idx]))
			c.Want = strings.TrimSpace(rest[idx+2:])
			c.HasWant = true
		} else {
			c.Path = normalizePath(rest)
		}
		if c.Path == "" {
			return Check{}, fmt.Errorf("check %q: empty JSON path", expr)
		}
		return c, nil
	case KindRegex:
		re, err := regexp.Compile(rest)
		if err != nil {
			return Check{}, fmt.Errorf("check %q: %w", expr, err)
		}
		return Check{Kind: KindRegex, raw: raw, Path: rest, re: re}, nil
	default:
		return Check{}, fmt.Errorf("check %q: unknown kind %q", expr, kind)
	}
}

// ParseAll compiles every expression, stopping at the first invalid one.
func ParseAll(exprs []string) ([]Check, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Check, 0, len(exprs))
	for _, expr := range exprs {
		c, err := Parse(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (c Check) String() string {
	return c.raw
}

// Evaluate returns a non-nil error describing why body does not satisfy c.
func (c Check) Evaluate(body []byte) error {
	switch c.Kind {
	case KindJSON:
		return evaluateJSON(body, c)
	case KindRegex:
		return evaluateRegex(body, c)
	default:
		return fmt.Errorf("check %q: not parsed", c.raw)
	}
}

// EvaluateAll runs checks in order and returns the first failure.
func EvaluateAll(body []byte, checks []Check) error {
	for _, c := range checks {
		if err := c.Evaluate(body); err != nil {
			return err
		}
	}
	return nil
}
