// Package vmservice is a WebSocket JSON-RPC client for the UI
// framework's VM service protocol: isolate discovery and the handful of
// inspector/screenshot extensions the Framework Camera needs. It follows
// the request/response correlation shape of pkg/daemon but speaks over a
// gorilla/websocket connection instead of subprocess pipes, grounded on
// the connection-ownership and mutex-guarded-writer pattern of the
// teacher's PortalAPIServer websocket handling.
package vmservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/scenegaze/scenegaze/pkg/types"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type isolateRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type pendingCall struct {
	result json.RawMessage
	err    error
}

// Client is a connected VM service session with a discovered isolate.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan pendingCall

	isolateID string

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials wsURI and discovers the primary isolate, preferring one
// whose name contains "main" or "root", falling back to the first.
func Connect(ctx context.Context, wsURI string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURI, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial vm service: %w", types.ErrVMService, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[int64]chan pendingCall),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	if err := c.discoverIsolate(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failAllPending(fmt.Errorf("%w: connection closed: %w", types.ErrVMService, err))
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()
		if !ok {
			continue
		}

		if resp.Error != nil {
			ch <- pendingCall{err: fmt.Errorf("%w: %s (code %d)", types.ErrVMService, resp.Error.Message, resp.Error.Code)}
		} else {
			ch <- pendingCall{result: resp.Result}
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- pendingCall{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan pendingCall, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("%w: write request: %w", types.ErrVMService, err)
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, fmt.Errorf("%w: %s: %w", types.ErrVMService, method, ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("%w: connection closed", types.ErrVMService)
	}
}

func (c *Client) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) discoverIsolate(ctx context.Context) error {
	raw, err := c.call(ctx, "getVM", nil)
	if err != nil {
		return fmt.Errorf("%w: list isolates: %w", types.ErrVMService, err)
	}

	var vm struct {
		Isolates []isolateRef `json:"isolates"`
	}
	if err := json.Unmarshal(raw, &vm); err != nil {
		return fmt.Errorf("%w: decode vm description: %w", types.ErrVMService, err)
	}
	if len(vm.Isolates) == 0 {
		return fmt.Errorf("%w: no isolates reported", types.ErrVMService)
	}

	chosen := vm.Isolates[0]
	for _, iso := range vm.Isolates {
		lower := strings.ToLower(iso.Name)
		if strings.Contains(lower, "main") || strings.Contains(lower, "root") {
			chosen = iso
			break
		}
	}
	c.isolateID = chosen.ID
	return nil
}

func (c *Client) requireIsolate() error {
	if c.isolateID == "" {
		return fmt.Errorf("%w: no isolate discovered", types.ErrVMService)
	}
	return nil
}

func (c *Client) callExtension(ctx context.Context, method string, args map[string]any) (json.RawMessage, error) {
	if err := c.requireIsolate(); err != nil {
		return nil, err
	}
	params := map[string]any{"isolateId": c.isolateID}
	for k, v := range args {
		params[k] = v
	}
	return c.call(ctx, method, params)
}

// GetWidgetTree returns the widget tree, summarized if summary is true.
func (c *Client) GetWidgetTree(ctx context.Context, summary bool) (types.JSONTree, error) {
	method := "ext.flutter.inspector.getRootWidget"
	if summary {
		method = "ext.flutter.inspector.getRootWidgetSummaryTree"
	}
	raw, err := c.callExtension(ctx, method, nil)
	if err != nil {
		return types.JSONTree{}, err
	}
	return types.NewJSONTree(raw), nil
}

// GetSemanticsTree asserts semantics are enabled then fetches the tree.
func (c *Client) GetSemanticsTree(ctx context.Context) (types.JSONTree, error) {
	if _, err := c.callExtension(ctx, "ext.flutter.debugSemantics", map[string]any{"enabled": true}); err != nil {
		return types.JSONTree{}, fmt.Errorf("%w: enable semantics: %w", types.ErrVMService, err)
	}
	raw, err := c.callExtension(ctx, "ext.flutter.inspector.getSemanticsTree", nil)
	if err != nil {
		return types.JSONTree{}, err
	}
	return types.NewJSONTree(raw), nil
}

// TakeScreenshot calls ext.flutter.screenshot and decodes its base64
// "screenshot" field into PNG bytes.
func (c *Client) TakeScreenshot(ctx context.Context) ([]byte, error) {
	raw, err := c.callExtension(ctx, "ext.flutter.screenshot", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Screenshot string `json:"screenshot"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode screenshot response: %w", types.ErrVMService, err)
	}
	if payload.Screenshot == "" {
		return nil, fmt.Errorf("%w: empty screenshot field", types.ErrVMService)
	}

	data, err := base64.StdEncoding.DecodeString(payload.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode screenshot: %w", types.ErrVMService, err)
	}
	return data, nil
}

// Evaluate runs expression against the isolate's root library.
func (c *Client) Evaluate(ctx context.Context, expression string) (string, error) {
	if err := c.requireIsolate(); err != nil {
		return "", err
	}
	raw, err := c.call(ctx, "evaluate", map[string]any{
		"isolateId":  c.isolateID,
		"targetId":   c.isolateID,
		"expression": expression,
	})
	if err != nil {
		return "", err
	}
	var result struct {
		ValueAsString string `json:"valueAsString"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: decode evaluate response: %w", types.ErrVMService, err)
	}
	return result.ValueAsString, nil
}

// ListExtensions returns the registered extension names on the isolate.
func (c *Client) ListExtensions(ctx context.Context) ([]string, error) {
	if err := c.requireIsolate(); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, "getIsolate", map[string]any{"isolateId": c.isolateID})
	if err != nil {
		return nil, err
	}
	var isolate struct {
		Extensions []string `json:"extensionRPCs"`
	}
	if err := json.Unmarshal(raw, &isolate); err != nil {
		return nil, fmt.Errorf("%w: decode isolate extensions: %w", types.ErrVMService, err)
	}
	return isolate.Extensions, nil
}

// Close closes the underlying websocket connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
