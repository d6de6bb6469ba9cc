package types

import "time"

// StabilityStatus records whether the device frame was observed to be
// visually stable before a checkpoint was captured.
type StabilityStatus string

const (
	StabilityUnknown  StabilityStatus = "unknown"
	StabilityStable   StabilityStatus = "stable"
	StabilityUnstable StabilityStatus = "unstable"
)

// DefaultSchemaVersion is stamped into every ObservationMetadata unless
// overridden.
const DefaultSchemaVersion = "1.0.0"

// ObservationMetadata is the meta.json payload written alongside every
// checkpoint's artifacts.
type ObservationMetadata struct {
	SchemaVersion   string            `json:"schema_version"`
	SceneName       string            `json:"scene"`
	CheckpointName  string            `json:"checkpoint"`
	Timestamp       time.Time         `json:"timestamp"`
	OverlayPresent  bool              `json:"overlay_present"`
	ReloadID        *int              `json:"reload_id,omitempty"`
	DeviceID        string            `json:"device_id"`
	StabilityStatus StabilityStatus   `json:"stability_status"`
	Description     string            `json:"description,omitempty"`
	Extensions      map[string]string `json:"extensions,omitempty"`
}

// OverlayRegion is a bounding box of mismatching pixels.
type OverlayRegion struct {
	X, Y, Width, Height int
}

// OverlayResult is the output of the Overlay Detector.
type OverlayResult struct {
	OverlayPresent bool
	Confidence     float64
	DiffPercentage float64
	DiffRegions    []OverlayRegion
	Reason         string
}

// ObservationBundle is the full, immutable result of one checkpoint
// capture.
type ObservationBundle struct {
	SceneName           string
	CheckpointName      string
	DeviceScreenshot    []byte
	FrameworkScreenshot []byte
	WidgetTree          JSONTree
	SemanticsTree       JSONTree
	Logs                []string
	Metadata            ObservationMetadata
	Overlay             *OverlayResult
}
