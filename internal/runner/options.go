package runner

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/vuload/internal/metrics"
)

// ArrivalModel selects how iteration starts are spaced when a rate is set.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Scheduler. They are copied by New and must not be
// changed afterwards.
type Options struct {
	VirtualUsers int           // concurrent virtual users, at least 1
	Duration     time.Duration // wall-clock run length, must be positive
	SleepBetween time.Duration // pause after each iteration of a virtual user

	Rate           int            // global iterations per second (0 means unlimited)
	ArrivalModel   ArrivalModel   // spacing model applied when Rate > 0
	RandomSeed     int64          // seed for the Poisson sampler
	PoissonSampler func() float64 // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter

	InitParallelism int     // virtual users initialized at once (0 means all)
	Factory         Factory // builds the workload of each virtual user (required)

	RunID      string              // optional; a new ULID is generated when empty
	Aggregator *metrics.Aggregator // optional; a fresh one is created when nil
	Logger     *zap.Logger
}

func (o *Options) normalize() {
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
	if o.InitParallelism <= 0 || o.InitParallelism > o.VirtualUsers {
		o.InitParallelism = o.VirtualUsers
	}
	if o.InitParallelism < 1 {
		o.InitParallelism = 1
	}
	if o.Aggregator == nil {
		o.Aggregator = metrics.NewAggregator()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// validate reports every invalid field at once.
func (o Options) validate() error {
	var errs []error
	if o.VirtualUsers < 1 {
		errs = append(errs, &ConfigurationError{Field: "VirtualUsers", Reason: "must be at least 1"})
	}
	if o.Duration <= 0 {
		errs = append(errs, &ConfigurationError{Field: "Duration", Reason: "must be greater than zero"})
	}
	if o.SleepBetween < 0 {
		errs = append(errs, &ConfigurationError{Field: "SleepBetween", Reason: "must not be negative"})
	}
	if o.Rate < 0 {
		errs = append(errs, &ConfigurationError{Field: "Rate", Reason: "must not be negative"})
	}
	switch o.ArrivalModel {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		errs = append(errs, &ConfigurationError{Field: "ArrivalModel", Reason: "must be uniform or poisson"})
	}
	if o.Factory == nil {
		errs = append(errs, &ConfigurationError{Field: "Factory", Reason: "is required"})
	}
	return errors.Join(errs...)
}
