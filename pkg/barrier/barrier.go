// Package barrier implements the polling and event-stream wait
// primitives the Scene Executor gates checkpoints on, plus the concrete
// barriers built from them. Polling is paced with golang.org/x/time/rate
// rather than a bare time.Sleep loop, following the teacher's proxy
// throttling (proxy/proxy.go) use of rate.Limiter for paced work.
package barrier

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/scenegaze/scenegaze/pkg/types"
)

// PollingCheck is polled at interval until it returns true or timeout
// elapses. Transient errors are swallowed; the loop continues.
type PollingCheck func(ctx context.Context) (bool, error)

// PollingValue extracts the success value once Check has returned true.
type PollingValue func(ctx context.Context) any

// PollingDiagnostics is invoked once on timeout to build a diagnostic
// string.
type PollingDiagnostics func(ctx context.Context) string

// Poll runs the classic polling-barrier loop: check, sleep, repeat,
// paced by a rate.Limiter so a fast check function never busy-loops.
func Poll(ctx context.Context, timeout, interval time.Duration, check PollingCheck, value PollingValue, diagnostics PollingDiagnostics) types.BarrierResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// A new limiter starts with a full bucket; spend that token so the
	// first Wait below sleeps a whole interval like every later one.
	limiter.Allow()

	for {
		ok, err := check(ctx)
		if err == nil && ok {
			return types.Success(value(ctx), time.Since(start))
		}
		// err is swallowed deliberately: a transient check failure (e.g. a
		// single flaky ADB call) must not abort the barrier early.

		if waitErr := limiter.Wait(ctx); waitErr != nil {
			return types.Timeout(time.Since(start), diagnostics(ctx))
		}
	}
}

// EventMatcher reports whether an event satisfies the barrier.
type EventMatcher func(event any) bool

// EventExtractor pulls the success value out of a matched event.
type EventExtractor func(event any) any

// EventFastPath reports whether the condition is already known to hold,
// letting a barrier succeed without waiting on the stream at all.
type EventFastPath func(ctx context.Context) (any, bool)

// WaitForEvent subscribes to events, racing the first match against a
// timeout. A fast path check runs first; if it reports success, no
// subscription is needed at all.
func WaitForEvent(ctx context.Context, timeout time.Duration, events <-chan any, errs <-chan error, fastPath EventFastPath, matches EventMatcher, extract EventExtractor, diagnostics PollingDiagnostics) types.BarrierResult {
	start := time.Now()

	if fastPath != nil {
		if value, ok := fastPath(ctx); ok {
			return types.Success(value, time.Since(start))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return types.Failure(time.Since(start), nil, "event source closed")
			}
			if matches(ev) {
				return types.Success(extract(ev), time.Since(start))
			}
		case err := <-errs:
			return types.Failure(time.Since(start), err, err.Error())
		case <-ctx.Done():
			return types.Timeout(time.Since(start), diagnostics(ctx))
		}
	}
}
