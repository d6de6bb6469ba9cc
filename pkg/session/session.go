// Package session owns the lifecycle of one running UI-framework
// application instance: spawning the daemon child process, consuming its
// event stream to build AppInfo and drive the session's state machine,
// and exposing hot-reload/hot-restart/stop operations gated on that
// state. It is the teacher's App-as-process-owner pattern (app.go's
// ctx/child-process lifecycle) narrowed to one daemon child.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenegaze/scenegaze/pkg/daemon"
	"github.com/scenegaze/scenegaze/pkg/daemonproto"
	"github.com/scenegaze/scenegaze/pkg/types"
)

// StartConfig describes how to launch the framework daemon.
type StartConfig struct {
	// Command is the framework CLI binary, e.g. "flutter".
	Command string
	// ProjectDir is the working directory to spawn the daemon in; it must
	// contain ManifestFile.
	ProjectDir string
	// ManifestFile is checked for existence before spawning (e.g.
	// "pubspec.yaml"). This is the session's only pre-spawn check.
	ManifestFile string
	DeviceID     string
	Flavor       string
	Target       string
	ExtraArgs    []string
	Env          []string
}

func (c StartConfig) buildArgs() []string {
	args := []string{"run", "--machine"}
	if c.DeviceID != "" {
		args = append(args, "-d", c.DeviceID)
	}
	if c.Flavor != "" {
		args = append(args, "--flavor", c.Flavor)
	}
	if c.Target != "" {
		args = append(args, "-t", c.Target)
	}
	return append(args, c.ExtraArgs...)
}

// logRing is a small fixed-size ring buffer of the names of recently
// received daemon events, used for AppReadyBarrier diagnostics. Daemon
// log messages and event params are not recorded in it.
type logRing struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

func newLogRing(capacity int) *logRing {
	return &logRing{cap: capacity}
}

func (r *logRing) push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
}

// Last returns up to n of the most recent entries.
func (r *logRing) Last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	return append([]string(nil), r.lines[len(r.lines)-n:]...)
}

// Session owns one daemon child process and the AppInfo/state it builds
// from that child's event stream.
type Session struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	state       types.SessionState
	appInfo     types.AppInfo
	reloadCount int

	daemon *daemon.Client
	logs   *logRing

	events chan daemonproto.Event
	errs   chan error
}

// New creates a Session in the starting state. Call Start to spawn the
// child process.
func New(logger zerolog.Logger) *Session {
	return &Session{
		logger: logger,
		state:  types.SessionStarting,
		logs:   newLogRing(50),
		events: make(chan daemonproto.Event, 64),
		errs:   make(chan error, 1),
	}
}

// Start validates the project manifest, spawns the daemon child, and
// begins consuming its event stream.
func (s *Session) Start(ctx context.Context, cfg StartConfig) error {
	manifestPath := filepath.Join(cfg.ProjectDir, cfg.ManifestFile)
	if _, err := os.Stat(manifestPath); err != nil {
		return fmt.Errorf("%w: manifest %s not found: %w", types.ErrSessionInvariant, manifestPath, err)
	}

	d, err := daemon.Start(ctx, cfg.Command, cfg.buildArgs(), s.logger)
	if err != nil {
		return err
	}
	s.daemon = d

	go s.consumeEvents(d.Events())

	return nil
}

func (s *Session) consumeEvents(upstream <-chan daemonproto.Event) {
	defer close(s.events)
	for ev := range upstream {
		s.logs.push(ev.Name)
		s.handleEvent(ev)
		select {
		case s.events <- ev:
		default:
		}
	}

	if s.State() != types.SessionStopped && s.State() != types.SessionStopping {
		select {
		case s.errs <- fmt.Errorf("%w: daemon event stream closed unexpectedly", types.ErrTransport):
		default:
		}
	}
}

// Errs surfaces unexpected daemon termination, for barriers racing the
// event stream against failure.
func (s *Session) Errs() <-chan error {
	return s.errs
}

func (s *Session) handleEvent(ev daemonproto.Event) {
	switch ev.Name {
	case "app.started":
		var params struct {
			AppID    string `json:"appId"`
			DeviceID string `json:"deviceId"`
		}
		_ = unmarshal(ev, &params)
		s.mu.Lock()
		s.appInfo.AppID = params.AppID
		s.appInfo.DeviceID = params.DeviceID
		s.state = types.SessionRunning
		s.mu.Unlock()
	case "app.debugPort":
		var params struct {
			WsURI string `json:"wsUri"`
		}
		_ = unmarshal(ev, &params)
		s.mu.Lock()
		s.appInfo.VMServiceURI = params.WsURI
		s.mu.Unlock()
	case "app.stop":
		s.mu.Lock()
		if types.CanTransition(s.state, types.SessionStopped) {
			s.state = types.SessionStopped
		}
		s.mu.Unlock()
	}
}

// Events exposes the raw daemon event stream, for barriers that need to
// subscribe directly (e.g. AppReadyBarrier, HotReloadBarrier).
func (s *Session) Events() <-chan daemonproto.Event {
	return s.events
}

// Logs returns the recent-log accessor used for barrier diagnostics.
func (s *Session) Logs() *logRing {
	return s.logs
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ReloadCount returns how many hot reloads/restarts have completed.
func (s *Session) ReloadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloadCount
}

// AppInfo returns a snapshot of the current app info.
func (s *Session) AppInfo() types.AppInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appInfo
}

func (s *Session) requireRunning() error {
	if s.State() != types.SessionRunning {
		return fmt.Errorf("%w: session is %s, not running", types.ErrSessionInvariant, s.State())
	}
	return nil
}

// HotReload issues a hot reload and increments the reload counter.
func (s *Session) HotReload(ctx context.Context) (int, error) {
	if err := s.requireRunning(); err != nil {
		return 0, err
	}
	if _, err := s.daemon.HotReload(ctx, s.AppInfo().AppID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.reloadCount++
	count := s.reloadCount
	s.mu.Unlock()
	return count, nil
}

// HotRestart issues a full restart and increments the reload counter.
func (s *Session) HotRestart(ctx context.Context) (int, error) {
	if err := s.requireRunning(); err != nil {
		return 0, err
	}
	if _, err := s.daemon.HotRestart(ctx, s.AppInfo().AppID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.reloadCount++
	count := s.reloadCount
	s.mu.Unlock()
	return count, nil
}

// CallServiceExtension forwards to the Daemon Client, gated on running.
func (s *Session) CallServiceExtension(ctx context.Context, method string, params map[string]any) ([]byte, error) {
	if err := s.requireRunning(); err != nil {
		return nil, err
	}
	return s.daemon.CallServiceExtension(ctx, s.AppInfo().AppID, method, params)
}

// Stop transitions to stopping, best-effort stops the app, closes the
// daemon client, and transitions to stopped.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.state = types.SessionStopping
	appID := s.appInfo.AppID
	s.mu.Unlock()

	if appID != "" {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, _ = s.daemon.Stop(stopCtx, appID)
		cancel()
	}

	err := s.daemon.Close()

	s.mu.Lock()
	s.state = types.SessionStopped
	s.mu.Unlock()

	return err
}

func unmarshal(ev daemonproto.Event, v any) error {
	if ev.Params == nil {
		return nil
	}
	return json.Unmarshal(ev.Params, v)
}
