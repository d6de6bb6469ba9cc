// Package camera wraps the ADB client and the VM inspection client
// behind a small capture-oriented API: raw/bounded/to-file screenshots
// from the device, and screenshot/widget-tree/semantics-tree capture
// from the running framework engine.
package camera

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/imaging"
	"github.com/scenegaze/scenegaze/pkg/types"
	"github.com/scenegaze/scenegaze/pkg/vmservice"
)

// DeviceCamera captures device-side screenshots through an ADB client.
type DeviceCamera struct {
	adb      *adb.Client
	deviceID string
}

// NewDeviceCamera binds a DeviceCamera to one device.
func NewDeviceCamera(client *adb.Client, deviceID string) *DeviceCamera {
	return &DeviceCamera{adb: client, deviceID: deviceID}
}

// Capture returns the raw device screenshot PNG.
func (c *DeviceCamera) Capture(ctx context.Context) ([]byte, error) {
	return c.adb.Screenshot(ctx, c.deviceID)
}

// CaptureResized returns a screenshot bounded to maxDim on its longest
// side.
func (c *DeviceCamera) CaptureResized(ctx context.Context, maxDim int) ([]byte, error) {
	raw, err := c.adb.Screenshot(ctx, c.deviceID)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("camera: decode device screenshot: %w", err)
	}
	resized := imaging.ResizeBounded(img, maxDim)
	return imaging.Encode(resized)
}

// CaptureToFile captures the device screenshot and writes it to path.
func (c *DeviceCamera) CaptureToFile(ctx context.Context, path string) error {
	data, err := c.Capture(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("camera: write device screenshot: %w", err)
	}
	return nil
}

// FrameworkCamera captures engine-side screenshots and trees through a
// VM inspection client.
type FrameworkCamera struct {
	vm *vmservice.Client
}

// NewFrameworkCamera binds a FrameworkCamera to a connected VM service
// client.
func NewFrameworkCamera(vm *vmservice.Client) *FrameworkCamera {
	return &FrameworkCamera{vm: vm}
}

// CaptureScreenshot returns the engine-rendered PNG frame.
func (c *FrameworkCamera) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	return c.vm.TakeScreenshot(ctx)
}

// GetWidgetTree returns the widget tree, summarized if requested.
func (c *FrameworkCamera) GetWidgetTree(ctx context.Context, summary bool) (types.JSONTree, error) {
	return c.vm.GetWidgetTree(ctx, summary)
}

// GetSemanticsTree returns the semantics tree.
func (c *FrameworkCamera) GetSemanticsTree(ctx context.Context) (types.JSONTree, error) {
	return c.vm.GetSemanticsTree(ctx)
}

// CaptureResult is the aggregate of a combined Capture call.
type CaptureResult struct {
	Screenshot    []byte
	WidgetTree    types.JSONTree
	SemanticsTree types.JSONTree
}

// Capture issues screenshot, widget tree, and (if includeSemantics)
// semantics tree concurrently, since they are independent VM inspection
// calls the client itself serializes on the wire.
func (c *FrameworkCamera) Capture(ctx context.Context, includeSemantics bool) (CaptureResult, error) {
	var result CaptureResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := c.vm.TakeScreenshot(gctx)
		if err != nil {
			return err
		}
		result.Screenshot = data
		return nil
	})

	g.Go(func() error {
		tree, err := c.vm.GetWidgetTree(gctx, true)
		if err != nil {
			return err
		}
		result.WidgetTree = tree
		return nil
	})

	if includeSemantics {
		g.Go(func() error {
			tree, err := c.vm.GetSemanticsTree(gctx)
			if err != nil {
				return err
			}
			result.SemanticsTree = tree
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return CaptureResult{}, err
	}
	return result, nil
}
