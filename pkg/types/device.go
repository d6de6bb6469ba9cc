package types

import "strings"

// ConnectionState is the ADB-reported state of a device.
type ConnectionState string

const (
	StateReady        ConnectionState = "device"
	StateOffline      ConnectionState = "offline"
	StateUnauthorized ConnectionState = "unauthorized"
	StateBootloader   ConnectionState = "bootloader"
	StateRecovery     ConnectionState = "recovery"
	StateUnknown      ConnectionState = "unknown"
)

// Device is the identity and connection state of one device as reported
// by `adb devices -l`.
type Device struct {
	ID          string          `json:"id"`
	State       ConnectionState `json:"state"`
	Product     string          `json:"product,omitempty"`
	Model       string          `json:"model,omitempty"`
	TransportID string          `json:"transportId,omitempty"`
}

// IsReady reports whether the device is authorized and usable.
func (d Device) IsReady() bool {
	return d.State == StateReady
}

// IsEmulator reports whether the device identity is an AVD console
// identity rather than a physical/USB serial.
func (d Device) IsEmulator() bool {
	return strings.HasPrefix(d.ID, "emulator-")
}

// ParseConnectionState maps a raw adb state token to a ConnectionState,
// falling back to StateUnknown for anything unrecognised.
func ParseConnectionState(raw string) ConnectionState {
	switch ConnectionState(raw) {
	case StateReady, StateOffline, StateUnauthorized, StateBootloader, StateRecovery:
		return ConnectionState(raw)
	default:
		return StateUnknown
	}
}

// Resolution is a parsed `wm size` result.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
