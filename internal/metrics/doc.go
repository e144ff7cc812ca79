// Package metrics aggregates iteration outcomes into run statistics.
//
// Every virtual user reports one [Iteration] per workload invocation. The
// [Aggregator] tallies them under a single lock so it can be shared by all
// runners of a load test:
//
//	agg := metrics.NewAggregator()
//	agg.Start() // mark T0 for accurate iterations/sec
//
//	agg.Record(metrics.Iteration{
//		VU:      1,
//		Start:   start,
//		Elapsed: time.Since(start),
//		Status:  metrics.StatusSuccess,
//	})
//
//	summary := agg.Finalize()
//
// # Summaries
//
// [Aggregator.Finalize] computes exact nearest-rank percentiles over every
// recorded elapsed value and caches the result: calling it again returns the
// same [Summary]. Iterations recorded after finalization are dropped.
//
// [Aggregator.Snapshot] is the cheap, live view used by progress reporting. Its
// percentiles come from an HDR histogram and are approximate.
//
// # Observers
//
// An [Observer] registered with [Aggregator.AddObserver] sees every recorded
// iteration. The Prometheus exporter uses this hook.
//
// # Invariant
//
// Total == Successes + Failures + Errors holds for every snapshot and for the
// final summary.
package metrics
