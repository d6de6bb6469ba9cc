package types

import (
	"fmt"
	"strings"
)

// Named key-code synonyms, per spec.
const (
	KeyBack   = 4
	KeyHome   = 3
	KeyTab    = 61
	KeyEnter  = 66
	KeyEscape = 111
)

// DefaultSwipeDurationMs is used when a Swipe interaction omits DurationMs.
const DefaultSwipeDurationMs = 300

// Interaction is a tagged variant over the seven interaction shapes a
// scene step may describe. Implementations are exhaustively matched by
// the Interaction Controller and Scene Executor via a type switch.
type Interaction interface {
	interactionTag()
}

// Tap taps a fixed screen-space coordinate.
type Tap struct {
	X int
	Y int
}

func (Tap) interactionTag() {}

// TextInput types a verbatim string. Shell escaping is the executor's
// responsibility, not the caller's.
type TextInput struct {
	Text string
}

func (TextInput) interactionTag() {}

// KeyEvent sends a single Android key code.
type KeyEvent struct {
	KeyCode int
}

func (KeyEvent) interactionTag() {}

// Swipe drags from one point to another over DurationMs.
type Swipe struct {
	StartX, StartY int
	EndX, EndY     int
	DurationMs     int
}

func (Swipe) interactionTag() {}

// EffectiveDurationMs returns DurationMs, defaulting to
// DefaultSwipeDurationMs when unset (zero value).
func (s Swipe) EffectiveDurationMs() int {
	if s.DurationMs <= 0 {
		return DefaultSwipeDurationMs
	}
	return s.DurationMs
}

// WaitForBarrier forwards to the Scene Executor's barrier machinery.
type WaitForBarrier struct {
	BarrierType       string
	TimeoutOverrideMs *int
}

func (WaitForBarrier) interactionTag() {}

// TapByLabel resolves a namespaced semantic identifier to a tap target via
// the Scene Executor's semantics-tree walk (exact match).
type TapByLabel struct {
	Label      string
	Occurrence *int
	Within     string
}

func (TapByLabel) interactionTag() {}

// TapByText resolves free text to a tap target via the Scene Executor's
// semantics-tree walk (substring match).
type TapByText struct {
	Text       string
	Occurrence *int
	Within     string
}

func (TapByText) interactionTag() {}

// IsNamespacedLabel reports whether label satisfies the namespaced
// semantic identifier predicate required by TapByLabel: it must contain a
// '.' or begin with the literal prefix "screen:".
func IsNamespacedLabel(label string) bool {
	return strings.Contains(label, ".") || strings.HasPrefix(label, "screen:")
}

// ValidateTapByLabel returns an error if label fails the namespace
// predicate, per the scene-validation-time invariant.
func ValidateTapByLabel(label string) error {
	if !IsNamespacedLabel(label) {
		return fmt.Errorf("%w: tap_by_label requires a namespaced semantic id (contains '.' or begins with 'screen:'); got %q — use tap_by_text for free-text matching", ErrSceneValidation, label)
	}
	return nil
}
