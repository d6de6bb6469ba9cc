package types

import "errors"

// Sentinel errors for the taxonomy in spec §7. Call sites wrap these with
// %w so errors.Is keeps working after context is added.
var (
	// ErrTransport covers ADB subprocess failure, non-zero exit, or timeout.
	ErrTransport = errors.New("transport error")

	// ErrProtocol covers daemon RPC error responses for a tracked request id.
	ErrProtocol = errors.New("protocol error")

	// ErrVMService covers VM inspection failures: no isolate, empty
	// response, base64 decode failure.
	ErrVMService = errors.New("vm service error")

	// ErrSessionInvariant covers operations requested while the session is
	// not in the required state (e.g. hot-reload before app.started).
	ErrSessionInvariant = errors.New("session invariant violated")

	// ErrSceneValidation covers scene-definition errors caught before
	// execution begins (non-namespaced tap_by_label, unknown step shape,
	// duplicate checkpoint names).
	ErrSceneValidation = errors.New("scene validation error")

	// ErrAmbiguousMatch covers tap_by_label/tap_by_text resolving to 2+
	// candidates without an occurrence hint.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrNoMatch covers tap_by_label/tap_by_text resolving to 0 candidates.
	ErrNoMatch = errors.New("no matching element")
)
