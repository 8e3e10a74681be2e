package celebration

import (
	"context"
	"fmt"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
)

// TestOpKind names a manual diagnostic command.
type TestOpKind string

// Test op kinds.
const (
	TestPower      TestOpKind = "power"
	TestColor      TestOpKind = "color"
	TestBrightness TestOpKind = "brightness"
	TestPattern    TestOpKind = "pattern"
)

// TestOp is one manual command. Only the field matching Op is read.
type TestOp struct {
	Op         TestOpKind   `json:"op"`
	Power      govee.Power  `json:"power,omitempty"`
	Color      *govee.Color `json:"color,omitempty"`
	Brightness *int         `json:"brightness,omitempty"`
	PatternID  *int         `json:"pattern_id,omitempty"`
}

// Validate checks that the op carries the argument it needs.
func (op TestOp) Validate() error {
	switch op.Op {
	case TestPower:
		if op.Power != govee.PowerOn && op.Power != govee.PowerOff {
			return fmt.Errorf("%w: power must be on or off", ErrInvalidTestOp)
		}
	case TestColor:
		if op.Color == nil {
			return fmt.Errorf("%w: color is required", ErrInvalidTestOp)
		}
	case TestBrightness:
		if op.Brightness == nil {
			return fmt.Errorf("%w: brightness is required", ErrInvalidTestOp)
		}
	case TestPattern:
		if op.PatternID == nil {
			return fmt.Errorf("%w: pattern_id is required", ErrInvalidTestOp)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidTestOp, op.Op)
	}
	return nil
}

// TestCommand sends one diagnostic command through the same limiter and
// client that celebrations use. It does not consult or change the state
// machine; a test issued mid-celebration is simply overwritten by the next
// keyframe or the restore.
func (e *Engine) TestCommand(ctx context.Context, tenantID, deviceID string, op TestOp) error {
	if err := op.Validate(); err != nil {
		return err
	}
	binding, err := e.resolver.Resolve(tenantID, deviceID)
	if err != nil {
		return err
	}

	target := binding.Target
	switch op.Op {
	case TestPower:
		err = e.device.SetPower(ctx, target, op.Power)
	case TestColor:
		err = e.device.SetColor(ctx, target, *op.Color)
	case TestBrightness:
		err = e.device.SetBrightness(ctx, target, *op.Brightness)
	case TestPattern:
		err = e.device.RunPattern(ctx, target, *op.PatternID)
	}

	if err != nil {
		e.logger.Warn("test command failed",
			"tenant_id", binding.TenantID, "device_id", binding.DeviceID, "op", op.Op, "error", err)
		return err
	}
	e.logger.Debug("test command sent", "tenant_id", binding.TenantID, "device_id", binding.DeviceID, "op", op.Op)
	return nil
}
