package bundle

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/scenegaze/scenegaze/pkg/types"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestBuildRunsOverlayDetectorWhenBothScreenshotsPresent(t *testing.T) {
	shot := solidPNG(t, 100, 200, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	b := New("login", "after-submit", "emulator-5554").
		WithDeviceScreenshot(shot).
		WithFrameworkScreenshot(shot)

	result := b.Build()
	if result.Overlay == nil {
		t.Fatal("expected overlay result to be populated")
	}
	if result.Overlay.OverlayPresent {
		t.Errorf("expected no overlay for identical screenshots, got %+v", result.Overlay)
	}
	if result.Metadata.OverlayPresent {
		t.Error("expected metadata.overlay_present to mirror the detector result")
	}
	if result.Metadata.SchemaVersion != types.DefaultSchemaVersion {
		t.Errorf("got schema version %q", result.Metadata.SchemaVersion)
	}
	if result.Metadata.Timestamp.IsZero() {
		t.Error("expected a stamped timestamp")
	}
}

func TestBuildSkipsOverlayWithoutBothScreenshots(t *testing.T) {
	b := New("login", "after-submit", "emulator-5554").
		WithDeviceScreenshot(solidPNG(t, 10, 10, color.RGBA{A: 255}))

	result := b.Build()
	if result.Overlay != nil {
		t.Errorf("expected no overlay result without the framework screenshot, got %+v", result.Overlay)
	}
}

func TestWriteProducesExpectedArtifacts(t *testing.T) {
	shot := solidPNG(t, 20, 20, color.RGBA{R: 1, A: 255})
	widgetTree := types.NewJSONTree([]byte(`{"type":"Scaffold"}`))

	bundle := New("login", "after-submit", "emulator-5554").
		WithDeviceScreenshot(shot).
		WithFrameworkScreenshot(shot).
		WithWidgetTree(widgetTree).
		WithLogs([]string{"line one", "line two"}).
		WithStability(types.StabilityStable).
		Build()

	outDir := t.TempDir()
	dir, err := Write(context.Background(), outDir, bundle)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if dir != filepath.Join(outDir, "login", "after-submit") {
		t.Errorf("unexpected checkpoint dir %q", dir)
	}

	for _, name := range []string{deviceScreenshotFile, frameworkScreenshotFile, widgetTreeFile, logsFile, metaFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, semanticsTreeFile)); err == nil {
		t.Error("expected semantics.json to be absent when no semantics tree was supplied")
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	deviceShot := solidPNG(t, 30, 30, color.RGBA{R: 5, A: 255})
	frameworkShot := solidPNG(t, 30, 30, color.RGBA{R: 5, A: 255})

	bundle := New("onboarding", "step-1", "emulator-9999").
		WithDeviceScreenshot(deviceShot).
		WithFrameworkScreenshot(frameworkShot).
		WithLogs([]string{"booted"}).
		Build()

	outDir := t.TempDir()
	dir, err := Write(context.Background(), outDir, bundle)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	readBack, err := Read(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if readBack.SceneName != "onboarding" || readBack.CheckpointName != "step-1" {
		t.Errorf("got %+v", readBack)
	}
	if len(readBack.DeviceScreenshot) != len(deviceShot) {
		t.Errorf("device screenshot length mismatch: got %d want %d", len(readBack.DeviceScreenshot), len(deviceShot))
	}
	if readBack.Overlay == nil || readBack.Overlay.OverlayPresent {
		t.Errorf("expected overlay re-derived as absent, got %+v", readBack.Overlay)
	}
	if len(readBack.Logs) != 1 || readBack.Logs[0] != "booted" {
		t.Errorf("got logs %+v", readBack.Logs)
	}
}

func TestWriteEmitsDiffImageWhenOverlayPresent(t *testing.T) {
	deviceShot := solidPNG(t, 200, 300, color.RGBA{R: 255, A: 255})
	frameworkShot := solidPNG(t, 200, 300, color.RGBA{B: 255, A: 255})

	bundle := New("login", "dialog", "emulator-5554").
		WithDeviceScreenshot(deviceShot).
		WithFrameworkScreenshot(frameworkShot).
		Build()
	if !bundle.Overlay.OverlayPresent {
		t.Fatal("expected the fixture to register as an overlay for this test to be meaningful")
	}

	outDir := t.TempDir()
	dir, err := Write(context.Background(), outDir, bundle)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, diffImageFile)); err != nil {
		t.Errorf("expected diff.png to exist: %v", err)
	}
}
