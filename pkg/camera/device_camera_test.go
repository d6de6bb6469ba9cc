package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/scenegaze/scenegaze/pkg/adb"
)

// fakeADB writes a minimal shell script that behaves like adb for the
// one subcommand DeviceCamera needs: `exec-out screencap -p` prints a
// fixed PNG to stdout.
func fakeADB(t *testing.T, pngData []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-adb.sh")
	encodedPath := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(encodedPath, pngData, 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	script := "#!/bin/sh\ncase \"$*\" in\n  *\"exec-out screencap -p\"*) cat " + encodedPath + " ;;\n  *) exit 0 ;;\nesac\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 50, A: 255})
		}
	}
	var buf []byte
	f, err := os.CreateTemp(t.TempDir(), "*.png")
	if err != nil {
		t.Fatalf("tempfile: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf, err = os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf
}

func TestDeviceCameraCapture(t *testing.T) {
	frame := solidPNG(t, 40, 60)
	path := fakeADB(t, frame)
	client := adb.NewClient(path)
	cam := NewDeviceCamera(client, "emulator-5554")

	got, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(got) != len(frame) {
		t.Errorf("got %d bytes, want %d", len(got), len(frame))
	}
}

func TestDeviceCameraCaptureResized(t *testing.T) {
	frame := solidPNG(t, 400, 100)
	path := fakeADB(t, frame)
	client := adb.NewClient(path)
	cam := NewDeviceCamera(client, "emulator-5554")

	got, err := cam.CaptureResized(context.Background(), 100)
	if err != nil {
		t.Fatalf("capture resized: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 25 {
		t.Errorf("got %dx%d, want 100x25", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestDeviceCameraCaptureToFile(t *testing.T) {
	frame := solidPNG(t, 20, 20)
	path := fakeADB(t, frame)
	client := adb.NewClient(path)
	cam := NewDeviceCamera(client, "emulator-5554")

	out := filepath.Join(t.TempDir(), "out.png")
	if err := cam.CaptureToFile(context.Background(), out); err != nil {
		t.Fatalf("capture to file: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) != len(frame) {
		t.Errorf("got %d bytes, want %d", len(data), len(frame))
	}
}
