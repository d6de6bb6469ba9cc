package barrier

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/daemonproto"
	"github.com/scenegaze/scenegaze/pkg/types"
)

func fakeAdbDevices(t *testing.T, deviceID, state string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-adb.sh")
	script := "#!/bin/sh\ncase \"$*\" in\n  *\"devices -l\"*) echo \"List of devices attached\"; echo \"" + deviceID + "          " + state + " model:Pixel transport_id:1\" ;;\n  *\"getprop sys.boot_completed\"*) echo 1 ;;\n  *) exit 0 ;;\nesac\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestDeviceConnectedBarrierSucceeds(t *testing.T) {
	path := fakeAdbDevices(t, "emulator-5554", "device")
	client := adb.NewClient(path)

	result := DeviceConnectedBarrier(context.Background(), client, "emulator-5554", types.BarrierConfig{
		TimeoutMs:         types.Duration{Duration: time.Second},
		PollingIntervalMs: types.Duration{Duration: 10 * time.Millisecond},
	})
	if !result.Ok() {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestDeviceConnectedBarrierTimesOutForUnknownDevice(t *testing.T) {
	path := fakeAdbDevices(t, "emulator-5554", "device")
	client := adb.NewClient(path)

	result := DeviceConnectedBarrier(context.Background(), client, "emulator-9999", types.BarrierConfig{
		TimeoutMs:         types.Duration{Duration: 60 * time.Millisecond},
		PollingIntervalMs: types.Duration{Duration: 10 * time.Millisecond},
	})
	if result.Ok() {
		t.Fatal("expected timeout for a device not in the list")
	}
	if result.Diagnostic == "" {
		t.Error("expected a diagnostic listing connected devices")
	}
}

func TestDeviceReadyBarrierSucceeds(t *testing.T) {
	path := fakeAdbDevices(t, "emulator-5554", "device")
	client := adb.NewClient(path)

	result := DeviceReadyBarrier(context.Background(), client, "emulator-5554", types.BarrierConfig{
		TimeoutMs:         types.Duration{Duration: time.Second},
		PollingIntervalMs: types.Duration{Duration: 10 * time.Millisecond},
	})
	if !result.Ok() {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestHotReloadBarrierMatchesFinishedProgress(t *testing.T) {
	events := make(chan daemonproto.Event, 1)
	errs := make(chan error)

	params, _ := json.Marshal(map[string]any{"progressId": "hot.reload", "finished": true})
	events <- daemonproto.Event{Name: "app.progress", Params: params}

	result := HotReloadBarrier(context.Background(), events, errs, types.BarrierConfig{
		TimeoutMs: types.Duration{Duration: time.Second},
	})
	if !result.Ok() {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestVmServiceReadyBarrierFastPath(t *testing.T) {
	events := make(chan daemonproto.Event)
	errs := make(chan error)

	result := VmServiceReadyBarrier(context.Background(), events, errs, types.AppInfo{VMServiceURI: "ws://127.0.0.1:1234/ws"}, types.BarrierConfig{
		TimeoutMs: types.Duration{Duration: time.Second},
	})
	if !result.Ok() || result.Value != "ws://127.0.0.1:1234/ws" {
		t.Fatalf("expected fast-path success, got %+v", result)
	}
}

func TestAppReadyBarrierMatchesAppAndDevice(t *testing.T) {
	events := make(chan daemonproto.Event, 1)
	errs := make(chan error)

	params, _ := json.Marshal(map[string]any{"appId": "app1", "deviceId": "emulator-5554"})
	events <- daemonproto.Event{Name: "app.started", Params: params}

	result := AppReadyBarrier(context.Background(), events, errs, "app1", "emulator-5554", types.SessionStarting, types.AppInfo{}, nil, types.BarrierConfig{
		TimeoutMs: types.Duration{Duration: time.Second},
	})
	if !result.Ok() {
		t.Fatalf("expected success, got %+v", result)
	}
}
