package types

// SessionState is the lifecycle state of a UI-framework Session.
type SessionState string

const (
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
	SessionStopped  SessionState = "stopped"
	SessionError    SessionState = "error"
)

// CanTransition reports whether moving from state `from` to state `to` is
// permitted. Transitions are monotonic except that {starting,running} ->
// stopped is always permitted (e.g. the child process died unexpectedly).
func CanTransition(from, to SessionState) bool {
	if from == to {
		return true
	}
	if to == SessionStopped && (from == SessionStarting || from == SessionRunning || from == SessionStopping) {
		return true
	}
	order := map[SessionState]int{
		SessionStarting: 0,
		SessionRunning:  1,
		SessionStopping: 2,
		SessionStopped:  3,
	}
	fromN, fromOK := order[from]
	toN, toOK := order[to]
	if fromOK && toOK {
		return toN >= fromN
	}
	// SessionError is reachable from any state and is terminal-ish but
	// not further constrained here.
	return to == SessionError
}

// AppInfo describes the application instance a Session is driving.
type AppInfo struct {
	AppID           string
	DeviceID        string
	ProjectDir      string
	SupportsRestart bool
	VMServiceURI    string
}

// HasVMService reports whether a VM service WebSocket URI has been
// recorded for this app.
func (a AppInfo) HasVMService() bool {
	return a.VMServiceURI != ""
}
