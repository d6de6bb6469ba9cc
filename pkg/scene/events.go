package scene

import (
	"time"

	"github.com/scenegaze/scenegaze/pkg/types"
)

// EventKind discriminates the shape of an Event.
type EventKind string

const (
	EventSceneStarted       EventKind = "scene_started"
	EventStepStarted        EventKind = "step_started"
	EventCheckpointCaptured EventKind = "checkpoint_captured"
	EventInteractionDone    EventKind = "interaction_completed"
	EventStepCompleted      EventKind = "step_completed"
	EventStepFailed         EventKind = "step_failed"
	EventSceneCompleted     EventKind = "scene_completed"
	EventWarning            EventKind = "warning"
	EventLog                EventKind = "log"
)

// Event is one totally-ordered occurrence during scene execution.
type Event struct {
	Kind           EventKind
	RunID          string
	SceneName      string
	StepIndex      int
	CheckpointName string
	Bundle         *types.ObservationBundle
	Interaction    types.Interaction
	Message        string
}

// StepError records a non-fatal step-level failure.
type StepError struct {
	StepIndex int
	Message   string
}

// Result is the outcome of one Execute call.
type Result struct {
	SceneName    string
	Observations []types.ObservationBundle
	Errors       []StepError
	Elapsed      time.Duration
	Success      bool
}
