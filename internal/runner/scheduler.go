package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/vuload/internal/metrics"
)

// State is the lifecycle phase of a Scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var errNilWorkload = errors.New("factory returned a nil workload")

// Scheduler runs a fixed number of virtual users for a fixed duration.
// A Scheduler runs once; create a new one for every run.
type Scheduler struct {
	opt   Options
	runID string

	state  atomic.Int32
	active atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func New(opt Options) *Scheduler {
	opt.normalize()
	runID := opt.RunID
	if runID == "" {
		runID = NewRunID()
	}
	return &Scheduler{opt: opt, runID: runID}
}

// NewRunID returns a fresh, lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// RunID identifies this run in logs and exported summaries.
func (s *Scheduler) RunID() string {
	return s.runID
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// ActiveVUs reports how many virtual users are currently looping.
func (s *Scheduler) ActiveVUs() int {
	return int(s.active.Load())
}

// Aggregator returns the aggregator iterations are recorded into.
func (s *Scheduler) Aggregator() *metrics.Aggregator {
	return s.opt.Aggregator
}

// Stop asks all virtual users to finish their current iteration and exit.
// Calling Stop before Run makes Run return as soon as initialization ends.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Run initializes every virtual user, runs them until the configured duration
// elapses (or ctx is cancelled, or Stop is called), waits for in-flight
// iterations to finish and returns the final summary.
//
// The duration is measured from T0, the moment initialization ends, not from
// the call to Run. Wall time is therefore initialization (WebSocket dials are
// bounded by their handshake timeout) plus the duration plus the slowest
// in-flight iteration. Summary.Duration covers only the part after T0.
//
// Invalid options yield a *ConfigurationError before any workload is created.
// Virtual users whose factory fails are excluded from the run; when all of
// them fail Run returns an error wrapping ErrAllRunnersFailed.
func (s *Scheduler) Run(ctx context.Context) (metrics.Summary, error) {
	if err := s.opt.validate(); err != nil {
		return metrics.Summary{}, err
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return metrics.Summary{}, ErrAlreadyStarted
	}

	log := s.opt.Logger.With(zap.String("run_id", s.runID))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	workloads, startupErrs := s.initWorkloads(runCtx, log)
	effective := len(workloads) - len(startupErrs)
	if effective == 0 {
		s.state.Store(int32(StateCompleted))
		log.Error("no virtual user could be started", zap.Int("failed_vus", len(startupErrs)))
		summary := metrics.Summary{RunID: s.runID, FailedVUs: len(startupErrs)}
		return summary, fmt.Errorf("%w: %w", ErrAllRunnersFailed, errors.Join(startupErrs...))
	}
	defer closeWorkloads(workloads, log)

	log.Info("run started",
		zap.Int("vus", effective),
		zap.Int("failed_vus", len(startupErrs)),
		zap.Duration("duration", s.opt.Duration),
	)

	s.opt.Aggregator.Start()
	stop, cancelDeadline := context.WithTimeout(runCtx, s.opt.Duration)
	defer cancelDeadline()

	shared := newPacer(s.opt)
	var wg sync.WaitGroup
	for i, w := range workloads {
		if w == nil {
			continue
		}
		v := &vu{
			id:       i + 1,
			workload: w,
			agg:      s.opt.Aggregator,
			pacer:    shared,
			sleep:    s.opt.SleepBetween,
		}
		wg.Add(1)
		s.active.Add(1)
		go func() {
			defer wg.Done()
			defer s.active.Add(-1)
			v.loop(stop)
		}()
	}

	<-stop.Done()
	s.state.Store(int32(StateDraining))
	log.Debug("draining virtual users", zap.Int("active", s.ActiveVUs()))
	wg.Wait()

	summary := s.opt.Aggregator.Finalize()
	summary.RunID = s.runID
	summary.VirtualUsers = effective
	summary.FailedVUs = len(startupErrs)
	s.state.Store(int32(StateCompleted))

	log.Info("run completed",
		zap.Int64("iterations", summary.Total),
		zap.Int64("failures", summary.Failures),
		zap.Int64("errors", summary.Errors),
		zap.Duration("elapsed", summary.Duration),
	)
	return summary, nil
}

// initWorkloads calls the factory for every virtual user, at most
// InitParallelism at a time. Failed slots are left nil.
func (s *Scheduler) initWorkloads(ctx context.Context, log *zap.Logger) ([]Workload, []error) {
	workloads := make([]Workload, s.opt.VirtualUsers)
	failures := make([]error, s.opt.VirtualUsers)

	var g errgroup.Group
	g.SetLimit(s.opt.InitParallelism)
	for i := range workloads {
		g.Go(func() error {
			id := i + 1
			w, err := s.build(ctx, id)
			if err == nil && w == nil {
				err = errNilWorkload
			}
			if err != nil {
				failures[i] = &StartupError{VU: id, Err: err}
				log.Warn("virtual user failed to start", zap.Int("vu", id), zap.Error(err))
				return nil
			}
			workloads[i] = w
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return workloads, errs
}

func (s *Scheduler) build(ctx context.Context, id int) (w Workload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return s.opt.Factory(ctx, id)
}

func closeWorkloads(workloads []Workload, log *zap.Logger) {
	seen := make(map[io.Closer]struct{})
	for i, w := range workloads {
		c, ok := w.(io.Closer)
		if !ok {
			continue
		}
		if reflect.TypeOf(c).Comparable() {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
		}
		if err := c.Close(); err != nil {
			log.Debug("closing workload failed", zap.Int("vu", i+1), zap.Error(err))
		}
	}
}
