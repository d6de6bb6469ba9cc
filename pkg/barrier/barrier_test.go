package barrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scenegaze/scenegaze/pkg/types"
)

func TestPollSucceedsOnFirstTrueCheck(t *testing.T) {
	calls := 0
	result := Poll(context.Background(), time.Second, 10*time.Millisecond,
		func(context.Context) (bool, error) {
			calls++
			return calls >= 2, nil
		},
		func(context.Context) any { return "ready" },
		func(context.Context) string { return "should not be reached" },
	)
	if !result.Ok() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Value != "ready" {
		t.Errorf("got value %v", result.Value)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 checks, got %d", calls)
	}
}

func TestPollSwallowsTransientErrors(t *testing.T) {
	attempts := 0
	result := Poll(context.Background(), 200*time.Millisecond, 10*time.Millisecond,
		func(context.Context) (bool, error) {
			attempts++
			if attempts < 3 {
				return false, errors.New("flaky")
			}
			return true, nil
		},
		func(context.Context) any { return attempts },
		func(context.Context) string { return "timed out" },
	)
	if !result.Ok() {
		t.Fatalf("expected eventual success despite transient errors, got %+v", result)
	}
}

func TestPollTimesOutAndCollectsDiagnostics(t *testing.T) {
	result := Poll(context.Background(), 50*time.Millisecond, 10*time.Millisecond,
		func(context.Context) (bool, error) { return false, nil },
		func(context.Context) any { return nil },
		func(context.Context) string { return "never ready" },
	)
	if result.Outcome != types.BarrierTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if result.Diagnostic != "never ready" {
		t.Errorf("got diagnostic %q", result.Diagnostic)
	}
}

func TestWaitForEventFastPathShortCircuits(t *testing.T) {
	events := make(chan any)
	errs := make(chan error)
	result := WaitForEvent(context.Background(), time.Second, events, errs,
		func(context.Context) (any, bool) { return "already-done", true },
		func(any) bool { return false },
		func(any) any { return nil },
		func(context.Context) string { return "" },
	)
	if !result.Ok() || result.Value != "already-done" {
		t.Fatalf("expected fast-path success, got %+v", result)
	}
}

func TestWaitForEventMatchesFirstQualifyingEvent(t *testing.T) {
	events := make(chan any, 2)
	errs := make(chan error)
	events <- "not-it"
	events <- "the-one"

	result := WaitForEvent(context.Background(), time.Second, events, errs, nil,
		func(ev any) bool { return ev == "the-one" },
		func(ev any) any { return ev },
		func(context.Context) string { return "" },
	)
	if !result.Ok() || result.Value != "the-one" {
		t.Fatalf("got %+v", result)
	}
}

func TestWaitForEventTimesOut(t *testing.T) {
	events := make(chan any)
	errs := make(chan error)
	result := WaitForEvent(context.Background(), 50*time.Millisecond, events, errs, nil,
		func(any) bool { return false },
		func(any) any { return nil },
		func(context.Context) string { return "no match" },
	)
	if result.Ok() {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if result.Diagnostic != "no match" {
		t.Errorf("got diagnostic %q", result.Diagnostic)
	}
}

func TestWaitForEventPropagatesStreamError(t *testing.T) {
	events := make(chan any)
	errs := make(chan error, 1)
	errs <- errors.New("stream broke")

	result := WaitForEvent(context.Background(), time.Second, events, errs, nil,
		func(any) bool { return false },
		func(any) any { return nil },
		func(context.Context) string { return "" },
	)
	if result.Ok() {
		t.Fatal("expected failure")
	}
	if result.Err == nil || result.Err.Error() != "stream broke" {
		t.Errorf("got err %v", result.Err)
	}
}
