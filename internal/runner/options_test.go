package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func noopFactory(context.Context, int) (Workload, error) {
	return WorkloadFunc(func(context.Context) Outcome { return Succeeded() }), nil
}

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{VirtualUsers: 4},
			validate: func(t *testing.T, o Options) {
				if o.ArrivalModel != ArrivalModelUniform {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelUniform)
				}
				if o.RandomSeed == 0 {
					t.Error("RandomSeed should be non-zero")
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
				if o.InitParallelism != 4 {
					t.Errorf("InitParallelism = %d, want 4", o.InitParallelism)
				}
				if o.Aggregator == nil {
					t.Error("Aggregator should not be nil")
				}
				if o.Logger == nil {
					t.Error("Logger should not be nil")
				}
			},
		},
		{
			name:  "init parallelism capped by virtual users",
			input: Options{VirtualUsers: 2, InitParallelism: 10},
			validate: func(t *testing.T, o Options) {
				if o.InitParallelism != 2 {
					t.Errorf("InitParallelism = %d, want 2", o.InitParallelism)
				}
			},
		},
		{
			name:  "init parallelism never below one",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.InitParallelism != 1 {
					t.Errorf("InitParallelism = %d, want 1", o.InitParallelism)
				}
			},
		},
		{
			name: "preserve valid values",
			input: Options{
				VirtualUsers:    10,
				InitParallelism: 3,
				Rate:            50,
				ArrivalModel:    ArrivalModelPoisson,
				RandomSeed:      12345,
			},
			validate: func(t *testing.T, o Options) {
				if o.InitParallelism != 3 {
					t.Errorf("InitParallelism = %d, want 3", o.InitParallelism)
				}
				if o.Rate != 50 {
					t.Errorf("Rate = %d, want 50", o.Rate)
				}
				if o.ArrivalModel != ArrivalModelPoisson {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelPoisson)
				}
				if o.RandomSeed != 12345 {
					t.Errorf("RandomSeed = %d, want 12345", o.RandomSeed)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			tt.validate(t, opts)
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{VirtualUsers: 1, Duration: time.Second, Factory: noopFactory}

	tests := []struct {
		name   string
		mutate func(*Options)
		fields []string
	}{
		{name: "valid", mutate: func(*Options) {}},
		{name: "zero virtual users", mutate: func(o *Options) { o.VirtualUsers = 0 }, fields: []string{"VirtualUsers"}},
		{name: "negative virtual users", mutate: func(o *Options) { o.VirtualUsers = -3 }, fields: []string{"VirtualUsers"}},
		{name: "zero duration", mutate: func(o *Options) { o.Duration = 0 }, fields: []string{"Duration"}},
		{name: "negative sleep", mutate: func(o *Options) { o.SleepBetween = -time.Millisecond }, fields: []string{"SleepBetween"}},
		{name: "negative rate", mutate: func(o *Options) { o.Rate = -1 }, fields: []string{"Rate"}},
		{name: "unknown arrival model", mutate: func(o *Options) { o.ArrivalModel = "burst" }, fields: []string{"ArrivalModel"}},
		{name: "missing factory", mutate: func(o *Options) { o.Factory = nil }, fields: []string{"Factory"}},
		{
			name:   "several fields",
			mutate: func(o *Options) { o.VirtualUsers = 0; o.Duration = -time.Second },
			fields: []string{"VirtualUsers", "Duration"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			err := opts.validate()
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validate() = nil, want errors for %v", tt.fields)
			}
			joined, ok := err.(interface{ Unwrap() []error })
			if !ok {
				t.Fatalf("validate() error %T does not unwrap to a list", err)
			}
			got := joined.Unwrap()
			if len(got) != len(tt.fields) {
				t.Fatalf("validate() returned %d errors, want %d: %v", len(got), len(tt.fields), err)
			}
			for i, field := range tt.fields {
				var cfgErr *ConfigurationError
				if !errors.As(got[i], &cfgErr) {
					t.Fatalf("error %d is %T, want *ConfigurationError", i, got[i])
				}
				if cfgErr.Field != field {
					t.Errorf("error %d field = %q, want %q", i, cfgErr.Field, field)
				}
			}
		})
	}
}

func TestLimiterFactory(t *testing.T) {
	opts := Options{}
	opts.normalize()

	limiter := opts.LimiterFactory(0)
	if limiter.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", limiter.Limit())
	}

	rps := 100
	limiter = opts.LimiterFactory(rps)
	if limiter.Limit() != rate.Limit(rps) {
		t.Errorf("Limit(%d) = %v, want %v", rps, limiter.Limit(), rate.Limit(rps))
	}
	if limiter.Burst() != rps {
		t.Errorf("Burst(%d) = %d, want %d", rps, limiter.Burst(), rps)
	}
}
