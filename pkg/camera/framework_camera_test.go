package camera

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scenegaze/scenegaze/pkg/vmservice"
)

var upgrader = websocket.Upgrader{}

type rpcEnvelope struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func startFakeVMServer(t *testing.T, screenshot string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcEnvelope
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			var result any
			switch req.Method {
			case "getVM":
				result = map[string]any{"isolates": []map[string]any{{"id": "isolates/1", "name": "main"}}}
			case "ext.flutter.screenshot":
				result = map[string]any{"screenshot": screenshot}
			case "ext.flutter.inspector.getRootWidgetSummaryTree":
				result = map[string]any{"widget": map[string]any{"type": "MaterialApp"}}
			case "ext.flutter.debugSemantics":
				result = map[string]any{}
			case "ext.flutter.inspector.getSemanticsTree":
				result = map[string]any{"children": []any{}}
			default:
				result = map[string]any{}
			}
			_ = conn.WriteJSON(map[string]any{"id": req.ID, "result": result})
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFrameworkCameraCaptureConcurrent(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G'}
	srv := startFakeVMServer(t, base64.StdEncoding.EncodeToString(pngBytes))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	vmClient, err := vmservice.Connect(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer vmClient.Close()

	cam := NewFrameworkCamera(vmClient)
	result, err := cam.Capture(ctx, true)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(result.Screenshot) != string(pngBytes) {
		t.Errorf("got screenshot %v, want %v", result.Screenshot, pngBytes)
	}
	if result.WidgetTree.IsZero() {
		t.Error("expected non-zero widget tree")
	}
	if result.SemanticsTree.IsZero() {
		t.Error("expected non-zero semantics tree")
	}
}

func TestFrameworkCameraCaptureWithoutSemantics(t *testing.T) {
	srv := startFakeVMServer(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	vmClient, err := vmservice.Connect(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer vmClient.Close()

	cam := NewFrameworkCamera(vmClient)
	result, err := cam.Capture(ctx, false)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !result.SemanticsTree.IsZero() {
		t.Error("expected zero-value semantics tree when not requested")
	}
}
