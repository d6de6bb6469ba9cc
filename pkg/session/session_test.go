package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenegaze/scenegaze/pkg/types"
)

// daemonScript emits an app.started event, then an app.debugPort event,
// then replies with an empty success result to any request it receives,
// simulating enough of the
// daemon machine-mode protocol for session lifecycle tests. It ignores
// its own argv so it can stand in for the real framework CLI regardless
// of the flags Session.StartConfig builds.
const daemonScript = `#!/bin/sh
printf '[{"event":"app.started","params":{"appId":"app1","deviceId":"emulator-5554"}}]\n'
printf '[{"event":"app.debugPort","params":{"wsUri":"ws://127.0.0.1:1234/ws"}}]\n'
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '{"id":%s,"result":{}}\n' "$id"
done
`

func writeManifest(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("name: demo\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func writeFakeDaemon(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-flutter.sh")
	if err := os.WriteFile(path, []byte(daemonScript), 0o755); err != nil {
		t.Fatalf("write fake daemon: %v", err)
	}
	return path
}

func TestStartFailsWithoutManifest(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.Start(context.Background(), StartConfig{
		Command:      "sh",
		ProjectDir:   t.TempDir(),
		ManifestFile: "pubspec.yaml",
	})
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestSessionReachesRunningOnAppStarted(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "pubspec.yaml")

	s := New(zerolog.Nop())
	err := s.Start(context.Background(), StartConfig{
		Command:      writeFakeDaemon(t),
		ProjectDir:   dir,
		ManifestFile: "pubspec.yaml",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == types.SessionRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if s.State() != types.SessionRunning {
		t.Fatalf("got state %s, want running", s.State())
	}
	info := s.AppInfo()
	if info.AppID != "app1" || info.DeviceID != "emulator-5554" {
		t.Errorf("got app info %+v", info)
	}
}

func TestHotReloadRejectedBeforeRunning(t *testing.T) {
	s := New(zerolog.Nop())
	_, err := s.HotReload(context.Background())
	if err == nil {
		t.Fatal("expected error for hot reload before running")
	}
}
