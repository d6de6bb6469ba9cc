package interaction

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/types"
)

// fakeAdbLogging writes an executable fake adb that appends every shell
// command it receives to a log file, so tests can assert on the exact
// input command the controller issued.
func fakeAdbLogging(t *testing.T) (binPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	binPath = filepath.Join(dir, "fake-adb.sh")
	script := "#!/bin/sh\necho \"$*\" >> \"" + logPath + "\"\nexit 0\n"
	if err := os.WriteFile(binPath, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake adb: %v", err)
	}
	return binPath, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func TestControllerDispatchesTap(t *testing.T) {
	bin, log := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin), WithSettleDelay(time.Millisecond))

	result := c.Execute(context.Background(), "emulator-5554", types.Tap{X: 100, Y: 200})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(readLog(t, log), "input tap 100 200") {
		t.Errorf("expected tap command in log, got %q", readLog(t, log))
	}
}

func TestControllerDispatchesTextInput(t *testing.T) {
	bin, log := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin), WithSettleDelay(time.Millisecond))

	result := c.Execute(context.Background(), "emulator-5554", types.TextInput{Text: "hello world"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(readLog(t, log), "input text hello%sworld") {
		t.Errorf("expected escaped text command in log, got %q", readLog(t, log))
	}
}

func TestControllerDispatchesKeyEvent(t *testing.T) {
	bin, log := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin), WithSettleDelay(time.Millisecond))

	result := c.Execute(context.Background(), "emulator-5554", types.KeyEvent{KeyCode: types.KeyBack})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(readLog(t, log), "input keyevent 4") {
		t.Errorf("expected keyevent command in log, got %q", readLog(t, log))
	}
}

func TestControllerDispatchesSwipeWithDefaultDuration(t *testing.T) {
	bin, log := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin), WithSettleDelay(time.Millisecond))

	result := c.Execute(context.Background(), "emulator-5554", types.Swipe{StartX: 0, StartY: 0, EndX: 100, EndY: 100})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(readLog(t, log), "input swipe 0 0 100 100 300") {
		t.Errorf("expected default-duration swipe command in log, got %q", readLog(t, log))
	}
}

func TestControllerRejectsTapByLabel(t *testing.T) {
	bin, _ := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin))

	result := c.Execute(context.Background(), "emulator-5554", types.TapByLabel{Label: "screen:home.button"})
	if result.Success {
		t.Fatal("expected failure for tap_by_label")
	}
	if result.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestControllerRejectsWaitForBarrier(t *testing.T) {
	bin, _ := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin))

	result := c.Execute(context.Background(), "emulator-5554", types.WaitForBarrier{BarrierType: "device_ready"})
	if result.Success {
		t.Fatal("expected failure for wait_for_barrier")
	}
}

func TestControllerRecordsElapsedTime(t *testing.T) {
	bin, _ := fakeAdbLogging(t)
	c := NewController(adb.NewClient(bin), WithSettleDelay(20*time.Millisecond))

	result := c.Execute(context.Background(), "emulator-5554", types.Tap{X: 1, Y: 1})
	if result.Elapsed < 20*time.Millisecond {
		t.Errorf("expected elapsed to include settle delay, got %s", result.Elapsed)
	}
}
