// Package interaction dispatches a types.Interaction variant to the ADB
// client, following the teacher's ExecuteSingleTouchEvent type-switch
// (automation.go) but returning a typed result instead of writing
// straight into UI event emission.
package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/scenegaze/scenegaze/pkg/adb"
	"github.com/scenegaze/scenegaze/pkg/types"
)

// DefaultSettleDelay is slept after each device-affecting interaction so
// the UI layer has time to react before the next step runs.
const DefaultSettleDelay = 100 * time.Millisecond

// Result is the outcome of one interaction dispatch.
type Result struct {
	Success     bool
	Interaction types.Interaction
	Elapsed     time.Duration
	Error       string
}

// Controller dispatches interactions against one device through an ADB
// client.
type Controller struct {
	adb         *adb.Client
	settleDelay time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDelay overrides the post-interaction settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// NewController builds a Controller bound to client.
func NewController(client *adb.Client, opts ...Option) *Controller {
	c := &Controller{adb: client, settleDelay: DefaultSettleDelay}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute dispatches interaction against deviceID. tap_by_label and
// tap_by_text fail explicitly: their resolution belongs to the Scene
// Executor, which has access to the semantics tree this controller does
// not.
func (c *Controller) Execute(ctx context.Context, deviceID string, in types.Interaction) Result {
	start := time.Now()

	err := c.dispatch(ctx, deviceID, in)

	result := Result{Success: err == nil, Interaction: in, Elapsed: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (c *Controller) dispatch(ctx context.Context, deviceID string, in types.Interaction) error {
	switch v := in.(type) {
	case types.Tap:
		if err := c.adb.Tap(ctx, deviceID, v.X, v.Y); err != nil {
			return err
		}
		c.settle(ctx)
		return nil

	case types.TextInput:
		if err := c.adb.InputText(ctx, deviceID, v.Text); err != nil {
			return err
		}
		c.settle(ctx)
		return nil

	case types.KeyEvent:
		if err := c.adb.KeyEvent(ctx, deviceID, v.KeyCode); err != nil {
			return err
		}
		c.settle(ctx)
		return nil

	case types.Swipe:
		duration := time.Duration(v.EffectiveDurationMs()) * time.Millisecond
		if err := c.adb.Swipe(ctx, deviceID, v.StartX, v.StartY, v.EndX, v.EndY, duration); err != nil {
			return err
		}
		c.settle(ctx)
		return nil

	case types.WaitForBarrier:
		return fmt.Errorf("%w: wait_for_barrier must be handled by the scene executor, not the interaction controller", types.ErrSceneValidation)

	case types.TapByLabel:
		return fmt.Errorf("%w: tap_by_label resolution belongs to the scene executor, not the interaction controller", types.ErrSceneValidation)

	case types.TapByText:
		return fmt.Errorf("%w: tap_by_text resolution belongs to the scene executor, not the interaction controller", types.ErrSceneValidation)

	default:
		return fmt.Errorf("%w: unknown interaction type %T", types.ErrSceneValidation, in)
	}
}

func (c *Controller) settle(ctx context.Context) {
	select {
	case <-time.After(c.settleDelay):
	case <-ctx.Done():
	}
}
