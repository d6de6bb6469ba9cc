// Package daemon owns the UI-framework daemon child process: writing
// JSON-RPC-2.0 requests to its stdin, classifying its stdout lines via
// pkg/daemonproto, and forwarding stderr into the structured logger. It
// generalizes the teacher's single-writer-goroutine subprocess ownership
// pattern (video_service.go's ffmpeg pipe handling) to a bidirectional
// JSON-RPC child.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenegaze/scenegaze/pkg/daemonproto"
	"github.com/scenegaze/scenegaze/pkg/types"
)

type rpcResult struct {
	result json.RawMessage
	err    error
}

type outgoingRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

// Client owns one running daemon child process.
type Client struct {
	cmd         *exec.Cmd
	stdin       *bufio.Writer
	stdinCloser io.Closer
	logger      zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int]chan rpcResult

	events chan daemonproto.Event

	closeOnce sync.Once
	closed    chan struct{}
}

// Start launches the daemon command and begins consuming its stdout and
// stderr. The caller owns the returned Client and must call Close.
func Start(ctx context.Context, command string, args []string, logger zerolog.Logger) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: daemon stdin pipe: %w", types.ErrTransport, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: daemon stdout pipe: %w", types.ErrTransport, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: daemon stderr pipe: %w", types.ErrTransport, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start daemon: %w", types.ErrTransport, err)
	}

	c := &Client{
		cmd:         cmd,
		stdin:       bufio.NewWriter(stdin),
		stdinCloser: stdin,
		logger:      logger,
		pending:     make(map[int]chan rpcResult),
		events:      make(chan daemonproto.Event, 64),
		closed:      make(chan struct{}),
	}

	go c.readLoop(bufio.NewScanner(stdout))
	go c.forwardStderr(bufio.NewScanner(stderr))

	return c, nil
}

// Events returns the channel of daemon-emitted events. It is closed when
// the client's read loop exits.
func (c *Client) Events() <-chan daemonproto.Event {
	return c.events
}

func (c *Client) readLoop(scanner *bufio.Scanner) {
	defer close(c.events)
	for scanner.Scan() {
		line := scanner.Bytes()
		msg, ok := daemonproto.Classify(line)
		if !ok {
			continue
		}
		switch msg.Kind {
		case daemonproto.KindEvent:
			select {
			case c.events <- *msg.Event:
			case <-c.closed:
				return
			}
		case daemonproto.KindResponse:
			c.resolve(*msg.Response)
		case daemonproto.KindLog:
			c.logger.Debug().Str("source", "daemon").Bool("error", msg.Log.ErrorFlag).Msg(msg.Log.Message)
		}
	}
}

func (c *Client) forwardStderr(scanner *bufio.Scanner) {
	for scanner.Scan() {
		c.logger.Warn().Str("source", "daemon-stderr").Msg(scanner.Text())
	}
}

func (c *Client) resolve(resp daemonproto.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return // spurious: unknown id or delivered after close
	}

	if resp.Error != nil {
		ch <- rpcResult{err: fmt.Errorf("%w: %s (code %d)", types.ErrProtocol, resp.Error.Message, resp.Error.Code)}
	} else {
		ch <- rpcResult{result: resp.Result}
	}
}

// call sends method with params and blocks for the matching response or
// ctx cancellation.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := int(c.nextID.Add(1))
	ch := make(chan rpcResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := outgoingRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	payload, err := json.Marshal([]outgoingRequest{req})
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("%w: encode request: %w", types.ErrProtocol, err)
	}

	if err := c.writeLine(payload); err != nil {
		c.dropPending(id)
		return nil, err
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, fmt.Errorf("%w: %s: %w", types.ErrTransport, method, ctx.Err())
	case <-c.closed:
		return nil, fmt.Errorf("%w: client closed", types.ErrTransport)
	}
}

func (c *Client) dropPending(id int) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) writeLine(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.stdin.Write(payload); err != nil {
		return fmt.Errorf("%w: write daemon stdin: %w", types.ErrTransport, err)
	}
	if err := c.stdin.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: write daemon stdin: %w", types.ErrTransport, err)
	}
	return c.stdin.Flush()
}

// HotReload issues app.restart with fullRestart=false.
func (c *Client) HotReload(ctx context.Context, appID string) (json.RawMessage, error) {
	return c.call(ctx, "app.restart", map[string]any{"appId": appID, "fullRestart": false})
}

// HotRestart issues app.restart with fullRestart=true.
func (c *Client) HotRestart(ctx context.Context, appID string) (json.RawMessage, error) {
	return c.call(ctx, "app.restart", map[string]any{"appId": appID, "fullRestart": true})
}

// Stop issues app.stop for appID.
func (c *Client) Stop(ctx context.Context, appID string) (json.RawMessage, error) {
	return c.call(ctx, "app.stop", map[string]any{"appId": appID})
}

// CallServiceExtension issues app.callServiceExtension.
func (c *Client) CallServiceExtension(ctx context.Context, appID, method string, params map[string]any) (json.RawMessage, error) {
	return c.call(ctx, "app.callServiceExtension", map[string]any{"appId": appID, "methodName": method, "params": params})
}

// Run invokes an arbitrary daemon method, for callers outside the typed
// wrapper set (e.g. app.run or daemon.* bootstrap methods).
func (c *Client) Run(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.call(ctx, method, params)
}

// Close cancels pending requests, closes stdin, waits up to 5s for the
// child to exit, then kills it.
func (c *Client) Close() error {
	var exitErr error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			ch <- rpcResult{err: fmt.Errorf("%w: client closed", types.ErrTransport)}
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		_ = c.stdinCloser.Close()

		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()

		select {
		case err := <-done:
			exitErr = err
		case <-time.After(5 * time.Second):
			if c.cmd.Process != nil {
				_ = c.cmd.Process.Kill()
			}
			exitErr = <-done
		}
	})
	return exitErr
}
