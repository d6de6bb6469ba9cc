// Package adb wraps the adb command-line tool: device enumeration,
// screenshot capture and the shell-level input primitives (tap, swipe,
// text, key events) that drive a device. It is the teacher's
// newAdbCommand/RunAdbCommand/GetDevices lineage, generalized into a
// reusable client instead of App methods.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scenegaze/scenegaze/pkg/types"
)

var proxyEnvVars = []string{
	"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY",
	"http_proxy", "https_proxy", "all_proxy", "no_proxy",
}

// shellEscape replaces characters that would otherwise be interpreted by
// the device's shell, matching the teacher's InputNodeText "%s"-for-space
// convention and extending it to the rest of adb shell's metacharacters.
var shellEscape = strings.NewReplacer(
	" ", "%s",
	`\`, `\\`,
	`"`, `\"`,
	"'", `\'`,
	"&", `\&`,
	"<", `\<`,
	">", `\>`,
	"|", `\|`,
	";", `\;`,
)

// Client drives one or more devices through a local adb binary.
type Client struct {
	path           string
	defaultTimeout time.Duration
	logger         zerolog.Logger
	limiter        *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default per-command timeout (30s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithLogger attaches a zerolog.Logger for subprocess diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit paces shell invocations issued through this client,
// independent of any barrier-level pacing.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// NewClient builds a Client that invokes the binary at path.
func NewClient(path string, opts ...Option) *Client {
	c := &Client{
		path:           path,
		defaultTimeout: 30 * time.Second,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.path, args...)

	env := os.Environ()
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		drop := false
		for _, v := range proxyEnvVars {
			if strings.HasPrefix(e, v+"=") {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, e)
		}
	}
	cmd.Env = filtered
	return cmd
}

// run executes adb with args, killing the child and returning an
// ErrTransport-wrapped error if ctx is exceeded before completion.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %w", types.ErrTransport, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.defaultTimeout)
	defer cancel()

	cmd := c.command(ctx, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.logger.Debug().Strs("args", args).Msg("adb command")

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return out.Bytes(), fmt.Errorf("%w: adb %s timed out after %s", types.ErrTransport, strings.Join(args, " "), c.defaultTimeout)
	}
	if err != nil {
		return out.Bytes(), fmt.Errorf("%w: adb %s: %w: %s", types.ErrTransport, strings.Join(args, " "), err, out.String())
	}
	return out.Bytes(), nil
}

// Shell runs `adb -s <deviceID> shell <command>` and returns the
// trimmed combined output.
func (c *Client) Shell(ctx context.Context, deviceID, command string) (string, error) {
	out, err := c.run(ctx, "-s", deviceID, "shell", command)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ListDevices parses `adb devices -l`.
func (c *Client) ListDevices(ctx context.Context) ([]types.Device, error) {
	out, err := c.run(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return parseDevicesOutput(string(out)), nil
}

func parseDevicesOutput(output string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		dev := types.Device{
			ID:    parts[0],
			State: types.ParseConnectionState(parts[1]),
		}
		for _, p := range parts[2:] {
			kv := strings.SplitN(p, ":", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "model":
				dev.Model = kv[1]
			case "product":
				dev.Product = kv[1]
			case "transport_id":
				dev.TransportID = kv[1]
			}
		}
		devices = append(devices, dev)
	}
	return devices
}

// IsBootComplete reports whether the device has finished booting, via
// getprop sys.boot_completed.
func (c *Client) IsBootComplete(ctx context.Context, deviceID string) (bool, error) {
	out, err := c.Shell(ctx, deviceID, "getprop sys.boot_completed")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "1", nil
}

// Screenshot captures a PNG frame via `exec-out screencap -p`, avoiding
// the device-tmp-file-then-pull round trip the teacher's TakeScreenshot
// uses, since exec-out streams the PNG directly over stdout.
func (c *Client) Screenshot(ctx context.Context, deviceID string) ([]byte, error) {
	out, err := c.run(ctx, "-s", deviceID, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot from device %s", types.ErrTransport, deviceID)
	}
	return out, nil
}

// ScreenResolution returns the device's physical size, parsed from the
// "WxH" dimensions in `wm size` output.
func (c *Client) ScreenResolution(ctx context.Context, deviceID string) (types.Resolution, error) {
	out, err := c.Shell(ctx, deviceID, "wm size")
	if err != nil {
		return types.Resolution{}, err
	}
	idx := strings.LastIndex(out, ":")
	if idx < 0 {
		return types.Resolution{}, fmt.Errorf("%w: unparseable wm size output %q", types.ErrTransport, out)
	}
	dims := strings.TrimSpace(out[idx+1:])
	var w, h int
	if _, err := fmt.Sscanf(dims, "%dx%d", &w, &h); err != nil {
		return types.Resolution{}, fmt.Errorf("%w: unparseable wm size dims %q: %w", types.ErrTransport, dims, err)
	}
	return types.Resolution{Width: w, Height: h}, nil
}

// Tap sends `input tap x y`.
func (c *Client) Tap(ctx context.Context, deviceID string, x, y int) error {
	_, err := c.Shell(ctx, deviceID, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// Swipe sends `input swipe x1 y1 x2 y2 durationMs`.
func (c *Client) Swipe(ctx context.Context, deviceID string, x1, y1, x2, y2 int, duration time.Duration) error {
	ms := duration.Milliseconds()
	if ms <= 0 {
		ms = 300
	}
	_, err := c.Shell(ctx, deviceID, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, ms))
	return err
}

// KeyEvent sends `input keyevent code`.
func (c *Client) KeyEvent(ctx context.Context, deviceID string, code int) error {
	_, err := c.Shell(ctx, deviceID, fmt.Sprintf("input keyevent %d", code))
	return err
}

// InputText sends `input text`, escaping characters the device shell
// would otherwise interpret.
func (c *Client) InputText(ctx context.Context, deviceID, text string) error {
	_, err := c.Shell(ctx, deviceID, fmt.Sprintf("input text %s", shellEscape.Replace(text)))
	return err
}

// Logcat returns up to lines of recent logcat output, optionally
// filtered to tag.
func (c *Client) Logcat(ctx context.Context, deviceID string, lines int, tag string) (string, error) {
	args := []string{"-s", deviceID, "logcat", "-d", "-t", fmt.Sprintf("%d", lines)}
	if tag != "" {
		args = append(args, "-s", tag)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ForegroundActivity returns the currently resumed activity component,
// as reported by `dumpsys activity activities`.
func (c *Client) ForegroundActivity(ctx context.Context, deviceID string) (string, error) {
	out, err := c.Shell(ctx, deviceID, "dumpsys activity activities | grep mResumedActivity")
	if err != nil {
		return "", err
	}
	idx := strings.Index(out, "}")
	if idx < 0 {
		return strings.TrimSpace(out), nil
	}
	return strings.TrimSpace(strings.TrimSuffix(out[:idx+1], "}")), nil
}
