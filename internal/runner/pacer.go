package runner

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer gates iteration starts across all virtual users.
type pacer interface {
	Wait(ctx context.Context) error
}

func newPacer(opt Options) pacer {
	if opt.ArrivalModel == ArrivalModelPoisson && opt.Rate > 0 {
		sampler := opt.PoissonSampler
		if sampler == nil {
			seeded := rand.New(rand.NewSource(opt.RandomSeed))
			sampler = seeded.ExpFloat64
		}
		return &poissonPacer{rate: float64(opt.Rate), sample: sampler, next: time.Now()}
	}
	return &uniformPacer{limiter: opt.LimiterFactory(opt.Rate)}
}

var errRateUnsatisfiable = errors.New("rate limiter cannot grant an iteration")

// uniformPacer delegates pacing to a rate.Limiter (uniform spacing). It
// reserves a slot and sleeps for it instead of calling Limiter.Wait, which
// gives up as soon as the slot lies beyond the ctx deadline.
type uniformPacer struct {
	limiter *rate.Limiter
}

func (u *uniformPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u == nil || u.limiter == nil {
		return nil
	}
	r := u.limiter.Reserve()
	if !r.OK() {
		return errRateUnsatisfiable
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// poissonPacer hands out start slots separated by exponential gaps, which
// approximates a Poisson arrival process across all virtual users.
type poissonPacer struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
	next   time.Time
}

func (p *poissonPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := p.reserve()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve claims the next free slot and returns how long to wait for it.
func (p *poissonPacer) reserve() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.next.Before(now) {
		p.next = now
	}
	slot := p.next
	p.next = p.next.Add(p.nextDelay())
	return slot.Sub(now)
}

func (p *poissonPacer) nextDelay() time.Duration {
	if p.rate <= 0 || p.sample == nil {
		return 0
	}
	delay := float64(time.Second) * p.sample() / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
