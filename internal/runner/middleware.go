package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/torosent/vuload/internal/metrics"
)

// Middleware decorates a Workload.
type Middleware func(Workload) Workload

// Wrap applies middlewares to every workload built by f. The first middleware
// is the outermost.
func Wrap(f Factory, mws ...Middleware) Factory {
	if len(mws) == 0 {
		return f
	}
	return func(ctx context.Context, vu int) (Workload, error) {
		w, err := f(ctx, vu)
		if err != nil || w == nil {
			return w, err
		}
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				w = mws[i](w)
			}
		}
		return w, nil
	}
}

// loggingWorkload wraps a Workload with failure logging.
type loggingWorkload struct {
	inner  Workload
	logger *zap.Logger
}

// WithLogging wraps a Workload to log every iteration that does not succeed.
func WithLogging(w Workload, logger *zap.Logger) Workload {
	if logger == nil {
		return w
	}
	return &loggingWorkload{
		inner:  w,
		logger: logger,
	}
}

// Logging is WithLogging as a Middleware.
func Logging(logger *zap.Logger) Middleware {
	return func(w Workload) Workload {
		return WithLogging(w, logger)
	}
}

func (l *loggingWorkload) Invoke(ctx context.Context) Outcome {
	out := l.inner.Invoke(ctx)
	if out.Status == metrics.StatusSuccess && out.Err == nil {
		return out
	}
	fields := []zap.Field{zap.Stringer("status", out.Status)}
	if vu, ok := VUFromContext(ctx); ok {
		fields = append(fields, zap.Int("vu", vu))
	}
	if seq, ok := IterationFromContext(ctx); ok {
		fields = append(fields, zap.Int64("iteration", seq))
	}
	if out.Detail != "" {
		fields = append(fields, zap.String("detail", out.Detail))
	}
	if out.Err != nil {
		fields = append(fields, zap.Error(out.Err))
	}
	l.logger.Warn("iteration did not succeed", fields...)
	return out
}

// Close forwards to the wrapped workload.
func (l *loggingWorkload) Close() error {
	return closeInner(l.inner)
}

func closeInner(w Workload) error {
	if c, ok := w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
