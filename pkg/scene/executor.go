// Package scene interprets a declarative Scene script against one
// device: it runs setup, then each step strictly in order, capturing
// observation bundles at checkpoints and dispatching interactions
// through the Interaction Controller (resolving tap_by_label/tap_by_text
// itself, since that requires the semantics tree the controller does not
// have).
package scene

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/barrier"
	"github.com/scenegaze/scenegaze/pkg/bundle"
	"github.com/scenegaze/scenegaze/pkg/camera"
	"github.com/scenegaze/scenegaze/pkg/interaction"
	"github.com/scenegaze/scenegaze/pkg/session"
	"github.com/scenegaze/scenegaze/pkg/types"
	"github.com/scenegaze/scenegaze/pkg/vmservice"
)

// Executor runs scenes against one device through a Session and ADB
// Client. The Framework Camera is optional and wired in after
// construction via ConnectVMService, once the session's VM service URI
// is known.
type Executor struct {
	session    *session.Session
	adbClient  *adb.Client
	deviceID   string
	outputDir  string
	controller *interaction.Controller
	deviceCam  *camera.DeviceCamera

	mu           sync.RWMutex
	frameworkCam *camera.FrameworkCamera
}

// NewExecutor binds an Executor to a running session, ADB client,
// device, and output directory.
func NewExecutor(sess *session.Session, adbClient *adb.Client, deviceID, outputDir string) *Executor {
	return &Executor{
		session:    sess,
		adbClient:  adbClient,
		deviceID:   deviceID,
		outputDir:  outputDir,
		controller: interaction.NewController(adbClient),
		deviceCam:  camera.NewDeviceCamera(adbClient, deviceID),
	}
}

// ConnectVMService instantiates the Framework Camera from a connected VM
// inspection client, enabling framework screenshots, widget trees,
// semantics trees, and label/text-based tap resolution.
func (e *Executor) ConnectVMService(vm *vmservice.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameworkCam = camera.NewFrameworkCamera(vm)
}

func (e *Executor) framework() *camera.FrameworkCamera {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frameworkCam
}

// Execute runs scene to completion on the calling goroutine and returns
// the result alongside the full, closed event log.
func (e *Executor) Execute(ctx context.Context, sc types.Scene) (Result, <-chan Event) {
	runID := uuid.NewString()
	var recorded []Event
	emit := func(ev Event) {
		ev.RunID = runID
		ev.SceneName = sc.Name
		recorded = append(recorded, ev)
	}

	if err := sc.Validate(); err != nil {
		ch := make(chan Event)
		close(ch)
		return Result{
			SceneName: sc.Name,
			Errors:    []StepError{{StepIndex: -1, Message: err.Error()}},
			Success:   false,
		}, ch
	}

	start := time.Now()
	emit(Event{Kind: EventSceneStarted, Message: sc.Name})

	e.runSetup(ctx, sc, emit)

	var observations []types.ObservationBundle
	var stepErrors []StepError

	for i, step := range sc.Steps {
		emit(Event{Kind: EventStepStarted, StepIndex: i})

		var err error
		if step.IsCheckpoint() {
			var built types.ObservationBundle
			built, err = e.captureCheckpoint(ctx, sc, *step.Checkpoint, runID, emit)
			if err == nil {
				observations = append(observations, built)
				emit(Event{Kind: EventCheckpointCaptured, StepIndex: i, CheckpointName: step.Checkpoint.Name, Bundle: &built})
			}
		} else {
			err = e.executeInteraction(ctx, sc, step.Interaction, emit)
			if err == nil {
				emit(Event{Kind: EventInteractionDone, StepIndex: i, Interaction: step.Interaction})
			}
		}

		if err != nil {
			stepErrors = append(stepErrors, StepError{StepIndex: i, Message: err.Error()})
			emit(Event{Kind: EventStepFailed, StepIndex: i, Message: err.Error()})
			continue
		}
		emit(Event{Kind: EventStepCompleted, StepIndex: i})
	}

	elapsed := time.Since(start)
	emit(Event{Kind: EventSceneCompleted, Message: fmt.Sprintf("%d observations", len(observations))})

	result := Result{
		SceneName:    sc.Name,
		Observations: observations,
		Errors:       stepErrors,
		Elapsed:      elapsed,
		Success:      len(stepErrors) == 0,
	}

	ch := make(chan Event, len(recorded))
	for _, ev := range recorded {
		ch <- ev
	}
	close(ch)

	return result, ch
}

func (e *Executor) runSetup(ctx context.Context, sc types.Scene, emit func(Event)) {
	if sc.Setup.HotRestart {
		if _, err := e.session.HotRestart(ctx); err != nil {
			emit(Event{Kind: EventWarning, Message: fmt.Sprintf("setup hot_restart failed: %v", err)})
		} else {
			sleep(ctx, time.Second)
		}
	}
	if sc.Setup.NavigateTo != "" {
		emit(Event{Kind: EventLog, Message: fmt.Sprintf("navigate_to %q is a no-op in the core; deep-link delivery is the application's responsibility", sc.Setup.NavigateTo)})
	}
	if sc.Setup.SetupDelayMs > 0 {
		sleep(ctx, time.Duration(sc.Setup.SetupDelayMs)*time.Millisecond)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (e *Executor) executeInteraction(ctx context.Context, sc types.Scene, in types.Interaction, emit func(Event)) error {
	switch v := in.(type) {
	case types.WaitForBarrier:
		e.waitForBarrier(ctx, sc, v, emit)
		return nil
	case types.TapByLabel:
		return e.resolveAndTap(ctx, v.Label, false, v.Occurrence, v.Within)
	case types.TapByText:
		return e.resolveAndTap(ctx, v.Text, true, v.Occurrence, v.Within)
	default:
		result := e.controller.Execute(ctx, e.deviceID, in)
		if !result.Success {
			return errors.New(result.Error)
		}
		return nil
	}
}

// waitForBarrier is advisory: a timeout is logged as a warning, never
// returned as a step error.
func (e *Executor) waitForBarrier(ctx context.Context, sc types.Scene, wfb types.WaitForBarrier, emit func(Event)) {
	cfg := sc.BarrierConfigFor(wfb.BarrierType)
	if wfb.TimeoutOverrideMs != nil {
		cfg.TimeoutMs = types.Duration{Duration: time.Duration(*wfb.TimeoutOverrideMs) * time.Millisecond}
	}

	switch wfb.BarrierType {
	case "visual_stability":
		result, _ := barrier.VisualStabilityBarrierWithFrame(ctx, e.deviceCam, cfg)
		if !result.Ok() {
			emit(Event{Kind: EventWarning, Message: fmt.Sprintf("wait_for_barrier visual_stability timed out: %s", result.Diagnostic)})
		}
	case "delay":
		sleep(ctx, cfg.TimeoutMs.Duration)
	default:
		emit(Event{Kind: EventWarning, Message: fmt.Sprintf("wait_for_barrier: unknown barrier type %q skipped", wfb.BarrierType)})
	}
}

func (e *Executor) resolveAndTap(ctx context.Context, target string, substring bool, occurrence *int, within string) error {
	fw := e.framework()
	if fw == nil {
		return fmt.Errorf("%w: tap_by_label/tap_by_text requires a connected vm service", types.ErrSceneValidation)
	}

	tree, err := fw.GetSemanticsTree(ctx)
	if err != nil {
		return fmt.Errorf("fetch semantics tree: %w", err)
	}
	resolution, err := e.adbClient.ScreenResolution(ctx, e.deviceID)
	if err != nil {
		return fmt.Errorf("fetch screen resolution: %w", err)
	}

	root, ok := findSubtreeRoot(tree.Raw(), within)
	if !ok {
		return fmt.Errorf("%w: within node %q not found in semantics tree", types.ErrNoMatch, within)
	}

	predicate := func(label string) bool {
		if substring {
			return strings.Contains(label, target)
		}
		return label == target
	}
	candidates := filterOnScreen(collectCandidates(root, predicate), resolution.Width, resolution.Height)

	if len(candidates) == 0 {
		return fmt.Errorf("%w: no on-screen node matching %q", types.ErrNoMatch, target)
	}

	idx := 0
	if occurrence != nil {
		idx = *occurrence
	} else if len(candidates) > 1 {
		bounds := make([]string, len(candidates))
		for i, c := range candidates {
			bounds[i] = c.bounds
		}
		return fmt.Errorf("%w: %d nodes match %q without an occurrence hint: %s", types.ErrAmbiguousMatch, len(candidates), target, strings.Join(bounds, ", "))
	}
	if idx < 0 || idx >= len(candidates) {
		return fmt.Errorf("%w: occurrence %d out of range for %d matches of %q", types.ErrNoMatch, idx, len(candidates), target)
	}

	return e.adbClient.Tap(ctx, e.deviceID, candidates[idx].centerX, candidates[idx].centerY)
}

func (e *Executor) captureCheckpoint(ctx context.Context, sc types.Scene, cp types.CheckpointDef, runID string, emit func(Event)) (types.ObservationBundle, error) {
	cfg := sc.BarrierConfigFor("visual_stability")
	stabilityResult, lastFrame := barrier.VisualStabilityBarrierWithFrame(ctx, e.deviceCam, cfg)

	stability := types.StabilityUnstable
	if stabilityResult.Ok() {
		stability = types.StabilityStable
	}

	b := bundle.New(sc.Name, cp.Name, e.deviceID).WithStability(stability).WithReloadID(e.session.ReloadCount()).WithRunID(runID)
	if cp.Description != "" {
		b = b.WithDescription(cp.Description)
	}

	if cp.DeviceScreenshot {
		frame := lastFrame
		if frame == nil {
			captured, err := e.deviceCam.Capture(ctx)
			if err != nil {
				emit(Event{Kind: EventWarning, Message: fmt.Sprintf("device screenshot capture failed: %v", err)})
			} else {
				frame = captured
			}
		}
		if frame != nil {
			b = b.WithDeviceScreenshot(frame)
		}
	}

	e.captureFrameworkArtifacts(ctx, cp, b, emit)

	if cp.Logs {
		out, err := e.adbClient.Logcat(ctx, e.deviceID, 50, "")
		if err != nil {
			emit(Event{Kind: EventWarning, Message: fmt.Sprintf("logcat capture failed: %v", err)})
		} else if trimmed := strings.TrimRight(out, "\n"); trimmed != "" {
			b = b.WithLogs(strings.Split(trimmed, "\n"))
		}
	}

	built := b.Build()
	if _, err := bundle.Write(ctx, e.outputDir, built); err != nil {
		return types.ObservationBundle{}, fmt.Errorf("write checkpoint %s: %w", cp.Name, err)
	}
	return built, nil
}

// captureFrameworkArtifacts issues the enabled framework-side captures
// concurrently, since each is an independent VM inspection call on the
// same isolate; a failure in one is logged as a warning and does not
// block the others.
func (e *Executor) captureFrameworkArtifacts(ctx context.Context, cp types.CheckpointDef, b *bundle.Builder, emit func(Event)) {
	fw := e.framework()
	wantsAny := cp.FrameworkScreenshot || cp.WidgetTree || cp.SemanticsTree
	if !wantsAny {
		return
	}
	if fw == nil {
		emit(Event{Kind: EventWarning, Message: "framework camera unavailable; skipping framework_screenshot/widget_tree/semantics_tree capture"})
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var screenshot []byte
	var widgetTree, semanticsTree types.JSONTree
	var warnings []string

	warn := func(msg string) {
		mu.Lock()
		warnings = append(warnings, msg)
		mu.Unlock()
	}

	if cp.FrameworkScreenshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := fw.CaptureScreenshot(ctx)
			if err != nil {
				warn(fmt.Sprintf("framework screenshot capture failed: %v", err))
				return
			}
			mu.Lock()
			screenshot = data
			mu.Unlock()
		}()
	}
	if cp.WidgetTree {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := fw.GetWidgetTree(ctx, true)
			if err != nil {
				warn(fmt.Sprintf("widget tree capture failed: %v", err))
				return
			}
			mu.Lock()
			widgetTree = tree
			mu.Unlock()
		}()
	}
	if cp.SemanticsTree {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := fw.GetSemanticsTree(ctx)
			if err != nil {
				warn(fmt.Sprintf("semantics tree capture failed: %v", err))
				return
			}
			mu.Lock()
			semanticsTree = tree
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, w := range warnings {
		emit(Event{Kind: EventWarning, Message: w})
	}
	if screenshot != nil {
		b.WithFrameworkScreenshot(screenshot)
	}
	if !widgetTree.IsZero() {
		b.WithWidgetTree(widgetTree)
	}
	if !semanticsTree.IsZero() {
		b.WithSemanticsTree(semanticsTree)
	}
}
