package barrier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/camera"
	"github.com/scenegaze/scenegaze/pkg/daemonproto"
	"github.com/scenegaze/scenegaze/pkg/imaging"
	"github.com/scenegaze/scenegaze/pkg/types"
)

// DeviceConnectedBarrier waits for deviceID to appear in `adb devices -l`
// in the ready state.
func DeviceConnectedBarrier(ctx context.Context, client *adb.Client, deviceID string, cfg types.BarrierConfig) types.BarrierResult {
	cfg = cfg.Normalize()
	var lastDevices []types.Device

	check := func(ctx context.Context) (bool, error) {
		devices, err := client.ListDevices(ctx)
		if err != nil {
			return false, err
		}
		lastDevices = devices
		for _, d := range devices {
			if d.ID == deviceID && d.IsReady() {
				return true, nil
			}
		}
		return false, nil
	}

	diagnostics := func(context.Context) string {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("device %s not ready; connected devices:", deviceID))
		for _, d := range lastDevices {
			sb.WriteString(fmt.Sprintf(" %s=%s", d.ID, d.State))
		}
		return sb.String()
	}

	return Poll(ctx, cfg.TimeoutMs.Duration, cfg.PollingIntervalMs.Duration, check, func(context.Context) any { return deviceID }, diagnostics)
}

// DeviceReadyBarrier waits for sys.boot_completed=1 on deviceID.
func DeviceReadyBarrier(ctx context.Context, client *adb.Client, deviceID string, cfg types.BarrierConfig) types.BarrierResult {
	cfg = cfg.Normalize()

	check := func(ctx context.Context) (bool, error) {
		return client.IsBootComplete(ctx, deviceID)
	}

	diagnostics := func(ctx context.Context) string {
		bootCompleted, _ := client.Shell(ctx, deviceID, "getprop sys.boot_completed")
		bootAnim, _ := client.Shell(ctx, deviceID, "getprop init.svc.bootanim")
		uptime, _ := client.Shell(ctx, deviceID, "cat /proc/uptime")
		return fmt.Sprintf("sys.boot_completed=%q init.svc.bootanim=%q uptime=%q", bootCompleted, bootAnim, uptime)
	}

	return Poll(ctx, cfg.TimeoutMs.Duration, cfg.PollingIntervalMs.Duration, check, func(context.Context) any { return true }, diagnostics)
}

// RecentLogs is a bounded ring of recent daemon log lines, for barrier
// diagnostics.
type RecentLogs interface {
	Last(n int) []string
}

// AppReadyBarrier waits for app.started naming both appID and deviceID.
// fastPath short-circuits if the session already reports running.
func AppReadyBarrier(ctx context.Context, events <-chan daemonproto.Event, errs <-chan error, appID, deviceID string, sessionState types.SessionState, appInfo types.AppInfo, logs RecentLogs, cfg types.BarrierConfig) types.BarrierResult {
	cfg = cfg.Normalize()

	fastPath := func(context.Context) (any, bool) {
		if sessionState == types.SessionRunning {
			return appInfo, true
		}
		return nil, false
	}

	matches := func(raw any) bool {
		ev := raw.(daemonproto.Event)
		if ev.Name != "app.started" {
			return false
		}
		var params struct {
			AppID    string `json:"appId"`
			DeviceID string `json:"deviceId"`
		}
		if err := unmarshalParams(ev, &params); err != nil {
			return false
		}
		return params.AppID == appID && params.DeviceID == deviceID
	}

	extract := func(any) any { return appInfo }

	diagnostics := func(context.Context) string {
		var recent []string
		if logs != nil {
			recent = logs.Last(10)
		}
		return fmt.Sprintf("session_state=%s app_info=%+v recent_logs=%v", sessionState, appInfo, recent)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutMs.Duration)
	defer cancel()
	return WaitForEvent(ctx, cfg.TimeoutMs.Duration, eventChanToAny(ctx, events), errs, fastPath, matches, extract, diagnostics)
}

// HotReloadBarrier waits for app.progress whose progressId names a
// reload/restart and finished=true.
func HotReloadBarrier(ctx context.Context, events <-chan daemonproto.Event, errs <-chan error, cfg types.BarrierConfig) types.BarrierResult {
	cfg = cfg.Normalize()
	start := time.Now()

	matches := func(raw any) bool {
		ev := raw.(daemonproto.Event)
		if ev.Name != "app.progress" {
			return false
		}
		var params struct {
			ProgressID string `json:"progressId"`
			Finished   bool   `json:"finished"`
		}
		if err := unmarshalParams(ev, &params); err != nil {
			return false
		}
		id := strings.ToLower(params.ProgressID)
		return params.Finished && (strings.Contains(id, "reload") || strings.Contains(id, "restart"))
	}

	extract := func(any) any { return time.Since(start) }

	diagnostics := func(context.Context) string {
		return fmt.Sprintf("no matching app.progress finished event after %s", time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutMs.Duration)
	defer cancel()
	return WaitForEvent(ctx, cfg.TimeoutMs.Duration, eventChanToAny(ctx, events), errs, nil, matches, extract, diagnostics)
}

// VmServiceReadyBarrier waits for app.debugPort carrying a wsUri.
// fastPath short-circuits if appInfo already has one.
func VmServiceReadyBarrier(ctx context.Context, events <-chan daemonproto.Event, errs <-chan error, appInfo types.AppInfo, cfg types.BarrierConfig) types.BarrierResult {
	cfg = cfg.Normalize()

	fastPath := func(context.Context) (any, bool) {
		if appInfo.HasVMService() {
			return appInfo.VMServiceURI, true
		}
		return nil, false
	}

	matches := func(raw any) bool {
		ev := raw.(daemonproto.Event)
		if ev.Name != "app.debugPort" {
			return false
		}
		var params struct {
			WsURI string `json:"wsUri"`
		}
		if err := unmarshalParams(ev, &params); err != nil {
			return false
		}
		return params.WsURI != ""
	}

	extract := func(raw any) any {
		ev := raw.(daemonproto.Event)
		var params struct {
			WsURI string `json:"wsUri"`
		}
		_ = unmarshalParams(ev, &params)
		return params.WsURI
	}

	diagnostics := func(context.Context) string {
		return "no app.debugPort event carrying wsUri observed"
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutMs.Duration)
	defer cancel()
	return WaitForEvent(ctx, cfg.TimeoutMs.Duration, eventChanToAny(ctx, events), errs, fastPath, matches, extract, diagnostics)
}

// VisualStabilityBarrier polls the device camera until consecutive
// captured frames match by content hash (falling back to a byte
// comparison on hash collision).
func VisualStabilityBarrier(ctx context.Context, cam *camera.DeviceCamera, cfg types.BarrierConfig) types.BarrierResult {
	cfg = cfg.Normalize()
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutMs.Duration)
	defer cancel()

	var prevFrame []byte
	var prevHash uint32
	streak := 0
	framesChecked := 0

	ticker := time.NewTicker(cfg.PollingIntervalMs.Duration)
	defer ticker.Stop()

	for {
		frame, err := cam.Capture(ctx)
		if err == nil {
			framesChecked++
			hash := imaging.ContentHash(frame)
			if prevFrame != nil && hash == prevHash && framesEqual(frame, prevFrame, hash, prevHash) {
				streak++
			} else {
				streak = 1
			}
			prevFrame = frame
			prevHash = hash
			if streak >= cfg.ConsecutiveMatches {
				return types.Success(types.StabilityStable, time.Since(start))
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return types.Timeout(time.Since(start), fmt.Sprintf("frames_checked=%d match_streak=%d", framesChecked, streak))
		}
	}
}

// VisualStabilityBarrierWithFrame behaves like VisualStabilityBarrier but
// additionally returns the last frame captured, success or timeout, so
// a caller assembling a checkpoint bundle can reuse it instead of
// issuing a second capture.
func VisualStabilityBarrierWithFrame(ctx context.Context, cam *camera.DeviceCamera, cfg types.BarrierConfig) (types.BarrierResult, []byte) {
	cfg = cfg.Normalize()
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutMs.Duration)
	defer cancel()

	var prevFrame []byte
	var prevHash uint32
	streak := 0
	framesChecked := 0

	ticker := time.NewTicker(cfg.PollingIntervalMs.Duration)
	defer ticker.Stop()

	for {
		frame, err := cam.Capture(ctx)
		if err == nil {
			framesChecked++
			hash := imaging.ContentHash(frame)
			if prevFrame != nil && hash == prevHash && framesEqual(frame, prevFrame, hash, prevHash) {
				streak++
			} else {
				streak = 1
			}
			prevFrame = frame
			prevHash = hash
			if streak >= cfg.ConsecutiveMatches {
				return types.Success(types.StabilityStable, time.Since(start)), prevFrame
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return types.Timeout(time.Since(start), fmt.Sprintf("frames_checked=%d match_streak=%d", framesChecked, streak)), prevFrame
		}
	}
}

func framesEqual(a, b []byte, hashA, hashB uint32) bool {
	if hashA != hashB {
		return false
	}
	return string(a) == string(b)
}

// DualCameraStabilityBarrier polls both the device and framework cameras
// concurrently each iteration, declaring stability when both have
// matched N consecutive iterations.
func DualCameraStabilityBarrier(ctx context.Context, deviceCam *camera.DeviceCamera, frameworkCam *camera.FrameworkCamera, cfg types.BarrierConfig) types.BarrierResult {
	unset := cfg.PollingIntervalMs.Duration < time.Millisecond
	cfg = cfg.Normalize()
	if unset {
		cfg.PollingIntervalMs = types.Duration{Duration: 150 * time.Millisecond}
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutMs.Duration)
	defer cancel()

	var prevDevice, prevFramework []byte
	streak := 0
	iterations := 0

	ticker := time.NewTicker(cfg.PollingIntervalMs.Duration)
	defer ticker.Stop()

	for {
		var deviceFrame, frameworkFrame []byte
		var deviceErr, frameworkErr error
		var g errgroup.Group
		g.Go(func() error {
			deviceFrame, deviceErr = deviceCam.Capture(ctx)
			return nil
		})
		g.Go(func() error {
			frameworkFrame, frameworkErr = frameworkCam.CaptureScreenshot(ctx)
			return nil
		})
		_ = g.Wait()
		iterations++

		if deviceErr == nil && frameworkErr == nil {
			deviceMatches := prevDevice != nil && imaging.ContentHash(deviceFrame) == imaging.ContentHash(prevDevice) && string(deviceFrame) == string(prevDevice)
			frameworkMatches := prevFramework != nil && imaging.ContentHash(frameworkFrame) == imaging.ContentHash(prevFramework) && string(frameworkFrame) == string(prevFramework)
			if deviceMatches && frameworkMatches {
				streak++
			} else {
				streak = 1
			}
			prevDevice, prevFramework = deviceFrame, frameworkFrame
			if streak >= cfg.ConsecutiveMatches {
				return types.Success(types.StabilityStable, time.Since(start))
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return types.Timeout(time.Since(start), fmt.Sprintf("iterations=%d match_streak=%d", iterations, streak))
		}
	}
}

// eventChanToAny adapts a typed event stream to the any-typed stream
// WaitForEvent consumes. The adapter goroutine exits as soon as ctx is
// done, so a barrier that resolves via match or timeout does not leak it
// blocked on a send or receive nobody will ever complete.
func eventChanToAny(ctx context.Context, events <-chan daemonproto.Event) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func unmarshalParams(ev daemonproto.Event, v any) error {
	if ev.Params == nil {
		return nil
	}
	return json.Unmarshal(ev.Params, v)
}
