// Package bundle assembles and persists one checkpoint's observation
// artifacts: the two screenshots, widget and semantics trees, recent
// logs, and the derived overlay result, stamped into a meta.json
// alongside them. It follows the teacher's session_export.go pattern of
// building a directory tree of named artifacts under an output root.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scenegaze/scenegaze/pkg/overlay"
	"github.com/scenegaze/scenegaze/pkg/types"
)

const (
	deviceScreenshotFile    = "device.png"
	frameworkScreenshotFile = "flutter.png"
	widgetTreeFile          = "widget_tree.json"
	semanticsTreeFile       = "semantics.json"
	logsFile                = "logs.txt"
	metaFile                = "meta.json"
	diffImageFile           = "diff.png"
)

// Builder accumulates one checkpoint's optional artifacts before Build
// assembles them into an immutable ObservationBundle.
type Builder struct {
	sceneName      string
	checkpointName string
	deviceID       string

	deviceScreenshot    []byte
	frameworkScreenshot []byte
	widgetTree          types.JSONTree
	semanticsTree       types.JSONTree
	logs                []string
	reloadID            *int
	stability           types.StabilityStatus
	description         string
	runID               string

	detector *overlay.Detector
}

// New starts a Builder for the required identifying fields.
func New(sceneName, checkpointName, deviceID string) *Builder {
	return &Builder{
		sceneName:      sceneName,
		checkpointName: checkpointName,
		deviceID:       deviceID,
		stability:      types.StabilityUnknown,
		detector:       overlay.NewDetector(overlay.DefaultConfig()),
	}
}

// WithDetector overrides the overlay detector used by Build (default:
// overlay.DefaultConfig()).
func (b *Builder) WithDetector(d *overlay.Detector) *Builder {
	b.detector = d
	return b
}

// WithDeviceScreenshot attaches the raw device-captured PNG.
func (b *Builder) WithDeviceScreenshot(png []byte) *Builder {
	b.deviceScreenshot = png
	return b
}

// WithFrameworkScreenshot attaches the raw engine-rendered PNG.
func (b *Builder) WithFrameworkScreenshot(png []byte) *Builder {
	b.frameworkScreenshot = png
	return b
}

// WithWidgetTree attaches the widget tree snapshot.
func (b *Builder) WithWidgetTree(tree types.JSONTree) *Builder {
	b.widgetTree = tree
	return b
}

// WithSemanticsTree attaches the semantics tree snapshot.
func (b *Builder) WithSemanticsTree(tree types.JSONTree) *Builder {
	b.semanticsTree = tree
	return b
}

// WithLogs attaches recent log lines (the Scene Executor passes device
// logcat output).
func (b *Builder) WithLogs(logs []string) *Builder {
	b.logs = logs
	return b
}

// WithReloadID records the hot-reload generation this checkpoint was
// captured under, if any.
func (b *Builder) WithReloadID(id int) *Builder {
	b.reloadID = &id
	return b
}

// WithStability records the VisualStabilityBarrier's outcome for this
// checkpoint.
func (b *Builder) WithStability(status types.StabilityStatus) *Builder {
	b.stability = status
	return b
}

// WithDescription attaches a free-text annotation.
func (b *Builder) WithDescription(desc string) *Builder {
	b.description = desc
	return b
}

// WithRunID records the scene execution run this checkpoint belongs to,
// stamped into Metadata.Extensions["run_id"].
func (b *Builder) WithRunID(id string) *Builder {
	b.runID = id
	return b
}

// Build runs the overlay detector when both screenshots are present and
// returns the immutable ObservationBundle. The timestamp is stamped at
// call time in UTC.
func (b *Builder) Build() types.ObservationBundle {
	bundle := types.ObservationBundle{
		SceneName:           b.sceneName,
		CheckpointName:      b.checkpointName,
		DeviceScreenshot:    b.deviceScreenshot,
		FrameworkScreenshot: b.frameworkScreenshot,
		WidgetTree:          b.widgetTree,
		SemanticsTree:       b.semanticsTree,
		Logs:                b.logs,
		Metadata: types.ObservationMetadata{
			SchemaVersion:   types.DefaultSchemaVersion,
			SceneName:       b.sceneName,
			CheckpointName:  b.checkpointName,
			Timestamp:       time.Now().UTC().Truncate(time.Millisecond),
			DeviceID:        b.deviceID,
			StabilityStatus: b.stability,
			ReloadID:        b.reloadID,
			Description:     b.description,
		},
	}
	if b.runID != "" {
		bundle.Metadata.Extensions = map[string]string{"run_id": b.runID}
	}

	if len(b.deviceScreenshot) > 0 && len(b.frameworkScreenshot) > 0 {
		result := b.detector.Detect(b.frameworkScreenshot, b.deviceScreenshot)
		bundle.Overlay = &result
		bundle.Metadata.OverlayPresent = result.OverlayPresent
	}

	return bundle
}

// Write creates <outputDir>/<scene>/<checkpoint>/ and writes every
// present artifact into it concurrently.
func Write(ctx context.Context, outputDir string, bundle types.ObservationBundle) (string, error) {
	dir := filepath.Join(outputDir, bundle.SceneName, bundle.CheckpointName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("bundle: create %s: %w", dir, err)
	}

	g, _ := errgroup.WithContext(ctx)

	if len(bundle.DeviceScreenshot) > 0 {
		g.Go(func() error { return writeFile(dir, deviceScreenshotFile, bundle.DeviceScreenshot) })
	}
	if len(bundle.FrameworkScreenshot) > 0 {
		g.Go(func() error { return writeFile(dir, frameworkScreenshotFile, bundle.FrameworkScreenshot) })
	}
	if !bundle.WidgetTree.IsZero() {
		g.Go(func() error {
			pretty, err := bundle.WidgetTree.Pretty()
			if err != nil {
				return fmt.Errorf("bundle: format widget tree: %w", err)
			}
			return writeFile(dir, widgetTreeFile, pretty)
		})
	}
	if !bundle.SemanticsTree.IsZero() {
		g.Go(func() error {
			pretty, err := bundle.SemanticsTree.Pretty()
			if err != nil {
				return fmt.Errorf("bundle: format semantics tree: %w", err)
			}
			return writeFile(dir, semanticsTreeFile, pretty)
		})
	}
	if len(bundle.Logs) > 0 {
		g.Go(func() error {
			return writeFile(dir, logsFile, []byte(strings.Join(bundle.Logs, "\n")))
		})
	}
	if bundle.Overlay != nil && bundle.Overlay.OverlayPresent && len(bundle.DeviceScreenshot) > 0 && len(bundle.FrameworkScreenshot) > 0 {
		g.Go(func() error {
			diffDetector := overlay.NewDetector(overlay.DefaultConfig())
			diff, err := diffDetector.GenerateDiffImage(bundle.FrameworkScreenshot, bundle.DeviceScreenshot)
			if err != nil {
				return fmt.Errorf("bundle: generate diff image: %w", err)
			}
			return writeFile(dir, diffImageFile, diff)
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	meta, err := json.MarshalIndent(bundle.Metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("bundle: marshal metadata: %w", err)
	}
	if err := writeFile(dir, metaFile, meta); err != nil {
		return "", err
	}

	return dir, nil
}

func writeFile(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("bundle: write %s: %w", name, err)
	}
	return nil
}

// Read re-assembles an ObservationBundle from a checkpoint directory
// previously produced by Write. The overlay result is recomputed from
// the stored screenshots rather than trusted from meta.json, since the
// detector is authoritative over the persisted flag.
func Read(directory string) (types.ObservationBundle, error) {
	var bundle types.ObservationBundle

	metaBytes, err := os.ReadFile(filepath.Join(directory, metaFile))
	if err != nil {
		return bundle, fmt.Errorf("bundle: read %s: %w", metaFile, err)
	}
	var meta types.ObservationMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return bundle, fmt.Errorf("bundle: unmarshal %s: %w", metaFile, err)
	}
	bundle.Metadata = meta
	bundle.SceneName = meta.SceneName
	bundle.CheckpointName = meta.CheckpointName

	if b, err := os.ReadFile(filepath.Join(directory, deviceScreenshotFile)); err == nil {
		bundle.DeviceScreenshot = b
	}
	if b, err := os.ReadFile(filepath.Join(directory, frameworkScreenshotFile)); err == nil {
		bundle.FrameworkScreenshot = b
	}
	if b, err := os.ReadFile(filepath.Join(directory, widgetTreeFile)); err == nil {
		bundle.WidgetTree = types.NewJSONTree(b)
	}
	if b, err := os.ReadFile(filepath.Join(directory, semanticsTreeFile)); err == nil {
		bundle.SemanticsTree = types.NewJSONTree(b)
	}
	if b, err := os.ReadFile(filepath.Join(directory, logsFile)); err == nil && len(b) > 0 {
		bundle.Logs = strings.Split(string(b), "\n")
	}

	if len(bundle.DeviceScreenshot) > 0 && len(bundle.FrameworkScreenshot) > 0 {
		result := overlay.NewDetector(overlay.DefaultConfig()).Detect(bundle.FrameworkScreenshot, bundle.DeviceScreenshot)
		bundle.Overlay = &result
		bundle.Metadata.OverlayPresent = result.OverlayPresent
	}

	return bundle, nil
}
