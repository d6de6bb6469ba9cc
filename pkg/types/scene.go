package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CheckpointDef declares a point in a scene at which an observation bundle
// is captured.
type CheckpointDef struct {
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	DeviceScreenshot    bool   `json:"deviceScreenshot"`
	FrameworkScreenshot bool   `json:"frameworkScreenshot"`
	WidgetTree          bool   `json:"widgetTree"`
	SemanticsTree       bool   `json:"semanticsTree"`
	Logs                bool   `json:"logs"`
}

// NewCheckpointDef returns a CheckpointDef with all five capture toggles
// defaulted to on, per spec.
func NewCheckpointDef(name string) CheckpointDef {
	return CheckpointDef{
		Name:                name,
		DeviceScreenshot:    true,
		FrameworkScreenshot: true,
		WidgetTree:          true,
		SemanticsTree:       true,
		Logs:                true,
	}
}

// SceneSetup configures the pre-step-loop phase of a scene.
type SceneSetup struct {
	HotRestart   bool   `json:"hotRestart"`
	NavigateTo   string `json:"navigateTo,omitempty"`
	SetupDelayMs int    `json:"setupDelayMs,omitempty"`
}

// Duration is an ms-or-suffixed-string duration value ("5000",
// "5s", "500ms"), per spec §3.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a bare integer (milliseconds) or a
// suffixed duration string ("5s", "500ms").
func (d *Duration) UnmarshalJSON(data []byte) error {
	var asInt int64
	if err := json.Unmarshal(data, &asInt); err == nil {
		d.Duration = time.Duration(asInt) * time.Millisecond
		return nil
	}
	var asStr string
	if err := json.Unmarshal(data, &asStr); err != nil {
		return fmt.Errorf("duration: expected integer ms or suffixed string, got %s", string(data))
	}
	asStr = strings.TrimSpace(asStr)
	if n, err := strconv.ParseInt(asStr, 10, 64); err == nil {
		d.Duration = time.Duration(n) * time.Millisecond
		return nil
	}
	parsed, err := time.ParseDuration(asStr)
	if err != nil {
		return fmt.Errorf("duration: cannot parse %q: %w", asStr, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalJSON renders the duration in milliseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.Milliseconds())
}

// BarrierConfig tunes a barrier's timeout and polling behaviour.
type BarrierConfig struct {
	TimeoutMs          Duration `json:"timeoutMs"`
	ConsecutiveMatches int      `json:"consecutiveMatches"`
	PollingIntervalMs  Duration `json:"pollingIntervalMs"`
}

// DefaultBarrierConfig returns the spec's defaults: 5s timeout, 3
// consecutive matches, 100ms polling interval.
func DefaultBarrierConfig() BarrierConfig {
	return BarrierConfig{
		TimeoutMs:          Duration{5 * time.Second},
		ConsecutiveMatches: 3,
		PollingIntervalMs:  Duration{100 * time.Millisecond},
	}
}

// Normalize fills zero-valued fields with spec defaults.
func (c BarrierConfig) Normalize() BarrierConfig {
	def := DefaultBarrierConfig()
	if c.TimeoutMs.Duration <= 0 {
		c.TimeoutMs = def.TimeoutMs
	}
	if c.ConsecutiveMatches < 1 {
		c.ConsecutiveMatches = def.ConsecutiveMatches
	}
	if c.PollingIntervalMs.Duration < time.Millisecond {
		c.PollingIntervalMs = def.PollingIntervalMs
	}
	return c
}

// Step is a single scene element: either a checkpoint or an interaction.
// Exactly one of the two fields is non-nil.
type Step struct {
	Checkpoint  *CheckpointDef
	Interaction Interaction
}

// IsCheckpoint reports whether this step is a checkpoint step.
func (s Step) IsCheckpoint() bool { return s.Checkpoint != nil }

// Scene is the declarative script the Scene Executor interprets.
type Scene struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Setup       SceneSetup               `json:"setup"`
	Steps       []Step                   `json:"steps"`
	Barriers    map[string]BarrierConfig `json:"barriers,omitempty"`
}

// BarrierConfigFor returns the configured BarrierConfig for barrierType,
// normalized with defaults, or the all-defaults config if the name is
// absent from the scene's barrier map.
func (s Scene) BarrierConfigFor(barrierName string) BarrierConfig {
	if cfg, ok := s.Barriers[barrierName]; ok {
		return cfg.Normalize()
	}
	return DefaultBarrierConfig()
}

// Validate checks the scene invariants from spec §3 that must be caught
// before any execution begins: non-empty name, unique checkpoint names,
// and namespaced tap_by_label labels.
func (s Scene) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: scene name must not be empty", ErrSceneValidation)
	}
	seen := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if step.Checkpoint == nil && step.Interaction == nil {
			return fmt.Errorf("%w: step %d has neither a checkpoint nor an interaction", ErrSceneValidation, i)
		}
		if step.Checkpoint != nil && step.Interaction != nil {
			return fmt.Errorf("%w: step %d has both a checkpoint and an interaction", ErrSceneValidation, i)
		}
		if cp := step.Checkpoint; cp != nil {
			if cp.Name == "" {
				return fmt.Errorf("%w: checkpoint at step %d has an empty name", ErrSceneValidation, i)
			}
			if seen[cp.Name] {
				return fmt.Errorf("%w: duplicate checkpoint name %q", ErrSceneValidation, cp.Name)
			}
			seen[cp.Name] = true
		}
		if tbl, ok := step.Interaction.(TapByLabel); ok {
			if err := ValidateTapByLabel(tbl.Label); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}
