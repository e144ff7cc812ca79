package checks

import "fmt"

func evaluateRegex(body []byte, c Check) error {
	if c.re == nil {
		return fmt.Errorf("check %s: not parsed", c.raw)
	}
	if !c.re.Match(body) {
		return fmt.Errorf("check %s: pattern not found", c.raw)
	}
	return nil
}
