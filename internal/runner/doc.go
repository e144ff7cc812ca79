// Package runner provides the virtual-user execution engine for vuload.
//
// A [Scheduler] starts a fixed number of virtual users at the same instant,
// lets each of them run a [Workload] in a loop for a fixed duration, and
// returns the aggregated [metrics.Summary] once every virtual user has
// finished its last iteration.
//
// # Basic Usage
//
//	s := runner.New(runner.Options{
//		VirtualUsers: 10,
//		Duration:     time.Minute,
//		Factory:      runner.Shared(myWorkload),
//	})
//	summary, err := s.Run(ctx)
//
// # Workload Interface
//
// The [Workload] interface defines what a virtual user executes:
//
//	type Workload interface {
//		Invoke(ctx context.Context) Outcome
//	}
//
// Invoke classifies its own result with [Succeeded], [Failed] or [Faulted].
// A panic inside Invoke is recovered and recorded as an error.
// A [Factory] builds one workload per virtual user, which lets protocols that
// hold a connection (WebSocket) keep it for the lifetime of the user. A
// factory error keeps that virtual user out of the run without aborting it.
// Workloads implementing io.Closer are closed when the run ends.
//
// # Stopping
//
// Virtual users check for the stop signal between iterations only. The
// context handed to Invoke is detached from the run's deadline, so an
// iteration in flight when the deadline passes always completes and is
// recorded. Stop and cancellation of the context passed to Run end the run
// the same way.
//
// # Pacing
//
// Options.Rate caps iteration starts across all virtual users:
//   - [ArrivalModelUniform]: starts at fixed intervals (golang.org/x/time/rate)
//   - [ArrivalModelPoisson]: exponentially distributed gaps
//
// # Middleware
//
// [Wrap] applies [Middleware] to every workload a factory builds; [Logging]
// logs iterations that did not succeed.
package runner
