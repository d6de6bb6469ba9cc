package types

import "time"

// BarrierOutcome discriminates a BarrierResult's variant.
type BarrierOutcome string

const (
	BarrierSuccess BarrierOutcome = "success"
	BarrierTimeout BarrierOutcome = "timeout"
	BarrierFailure BarrierOutcome = "failure"
)

// BarrierResult is the tagged outcome of a barrier wait.
type BarrierResult struct {
	Outcome    BarrierOutcome
	Value      any
	Elapsed    time.Duration
	Diagnostic string
	Err        error
}

// Success builds a successful BarrierResult.
func Success(value any, elapsed time.Duration) BarrierResult {
	return BarrierResult{Outcome: BarrierSuccess, Value: value, Elapsed: elapsed}
}

// Timeout builds a timed-out BarrierResult.
func Timeout(elapsed time.Duration, diagnostic string) BarrierResult {
	return BarrierResult{Outcome: BarrierTimeout, Elapsed: elapsed, Diagnostic: diagnostic}
}

// Failure builds a failed BarrierResult.
func Failure(elapsed time.Duration, err error, diagnostic string) BarrierResult {
	return BarrierResult{Outcome: BarrierFailure, Elapsed: elapsed, Err: err, Diagnostic: diagnostic}
}

// Ok reports whether the result is a success.
func (r BarrierResult) Ok() bool {
	return r.Outcome == BarrierSuccess
}
