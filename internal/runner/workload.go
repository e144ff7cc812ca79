package runner

import (
	"context"

	"github.com/torosent/vuload/internal/metrics"
)

// Workload is one unit of user-supplied work. Invoke is called repeatedly by
// a single virtual user and must classify its own result.
type Workload interface {
	Invoke(ctx context.Context) Outcome
}

// WorkloadFunc adapts a function to the Workload interface.
type WorkloadFunc func(ctx context.Context) Outcome

func (f WorkloadFunc) Invoke(ctx context.Context) Outcome {
	return f(ctx)
}

// Factory creates the workload owned by virtual user vu (1-based). A returned
// error marks that virtual user as failed to start.
type Factory func(ctx context.Context, vu int) (Workload, error)

// Shared returns a Factory that hands the same workload to every virtual user.
// w must be safe for concurrent use.
func Shared(w Workload) Factory {
	return func(context.Context, int) (Workload, error) {
		return w, nil
	}
}

// Outcome is the tri-state result of one workload invocation.
// The zero value is a success.
type Outcome struct {
	Status metrics.Status
	Detail string
	Err    error
}

func Succeeded() Outcome {
	return Outcome{Status: metrics.StatusSuccess}
}

// Failed reports a logical failure, such as an unexpected response status.
func Failed(reason string) Outcome {
	return Outcome{Status: metrics.StatusFailure, Detail: reason}
}

// Faulted reports that the invocation could not complete, such as a refused
// connection.
func Faulted(err error) Outcome {
	return Outcome{Status: metrics.StatusError, Err: err}
}

type ctxKey int

const (
	vuKey ctxKey = iota
	iterationKey
)

// WithIteration returns ctx carrying the virtual user and sequence number of an
// iteration, as the scheduler passes to Invoke.
func WithIteration(ctx context.Context, vu int, seq int64) context.Context {
	ctx = context.WithValue(ctx, vuKey, vu)
	return context.WithValue(ctx, iterationKey, seq)
}

// VUFromContext returns the virtual user running the current iteration.
func VUFromContext(ctx context.Context) (int, bool) {
	vu, ok := ctx.Value(vuKey).(int)
	return vu, ok
}

// IterationFromContext returns the per-VU sequence number of the current
// iteration.
func IterationFromContext(ctx context.Context) (int64, bool) {
	seq, ok := ctx.Value(iterationKey).(int64)
	return seq, ok
}
