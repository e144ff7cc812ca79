package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Status classifies the outcome of one iteration.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as its lowercase name in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "success":
		*s = StatusSuccess
	case "failure":
		*s = StatusFailure
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}

// Iteration is the record of one workload invocation by one virtual user.
type Iteration struct {
	VU      int           // virtual user that ran the iteration
	Seq     int64         // per-VU iteration number, starting at 0
	Start   time.Time     // wall-clock start of the invocation
	Elapsed time.Duration // time spent inside the workload
	Status  Status
	Detail  string // failure reason or error text; empty on success
}
