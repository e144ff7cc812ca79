package checks

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// normalizePath accepts both $.field and field syntax.
func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		} else if len(path) == 1 {
			// Bare "$" means the entire document
			return "@this"
		}
	}
	return path
}

func evaluateJSON(body []byte, c Check) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("check %s: response is not valid JSON", c.raw)
	}
	result := gjson.GetBytes(body, c.Path)
	if !result.Exists() {
		return fmt.Errorf("check %s: path %q not found", c.raw, c.Path)
	}
	if c.HasWant && result.String() != c.Want {
		return fmt.Errorf("check %s: got %q", c.raw, truncate(result.String(), 64))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
