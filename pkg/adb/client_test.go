package adb

import (
	"testing"

	"github.com/scenegaze/scenegaze/pkg/types"
)

func TestParseDevicesOutput(t *testing.T) {
	out := `List of devices attached
emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 device:emu64a transport_id:1
R58M12ABCDE            unauthorized usb:1-1 transport_id:2
`
	devices := parseDevicesOutput(out)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	if devices[0].ID != "emulator-5554" {
		t.Errorf("got id %q", devices[0].ID)
	}
	if devices[0].State != types.StateReady {
		t.Errorf("got state %q, want device", devices[0].State)
	}
	if devices[0].Model != "sdk_gphone64_x86_64" {
		t.Errorf("got model %q", devices[0].Model)
	}
	if !devices[0].IsEmulator() {
		t.Error("expected emulator-5554 to be recognised as emulator")
	}

	if devices[1].State != types.StateUnauthorized {
		t.Errorf("got state %q, want unauthorized", devices[1].State)
	}
	if devices[1].TransportID != "2" {
		t.Errorf("got transport id %q", devices[1].TransportID)
	}
}

func TestParseDevicesOutputEmpty(t *testing.T) {
	devices := parseDevicesOutput("List of devices attached\n\n")
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestShellEscapeSpacesAndQuotes(t *testing.T) {
	got := shellEscape.Replace(`hello "world" & friends`)
	want := `hello%s\"world\"%s\&%sfriends`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
