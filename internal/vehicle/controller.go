// Package vehicle implements the vehicle side of the relay: the
// Controller, driving up to four servo axes, and the Client, which
// dials the broker and runs the identify-then-receive lifecycle.
//
// Grounded on original_source/aviator5g-vehicle/src/main.rs's
// VehicleController, generalized from its fixed two-axis shape to a
// configurable axis count and rewritten around internal/servo's Go
// idioms instead of a direct rppal::pwm port.
package vehicle

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/SilentByte/aviator5g/internal/servo"
)

// AxisName is one of the four fixed-order control axes.
type AxisName string

const (
	AxisAilerons AxisName = "ailerons"
	AxisElevator AxisName = "elevator"
	AxisRudder   AxisName = "rudder"
	AxisThrottle AxisName = "throttle"
)

// axisOrder is the fixed assignment order.
var axisOrder = []AxisName{AxisAilerons, AxisElevator, AxisRudder, AxisThrottle}

// Controller drives a configured subset of the four axes in fixed
// order. Apply and Shutdown are both safe to call concurrently,
// including Shutdown from a termination-signal context, guarded by a
// single mutex.
type Controller struct {
	mu     sync.Mutex
	axes   []AxisName
	servos map[AxisName]*servo.Servo
	values map[AxisName]float64
}

// NewController builds a Controller for the first axisCount axes of the
// order {ailerons, elevator, rudder, throttle}, taking each axis's servo
// from axisServos. The servos are already constructed by the caller, so
// servo.NewServo has already driven each to its neutral pulse.
func NewController(axisServos map[AxisName]*servo.Servo, axisCount int) (*Controller, error) {
	if axisCount < 1 || axisCount > len(axisOrder) {
		return nil, fmt.Errorf("vehicle: axis count %d out of range [1, %d]", axisCount, len(axisOrder))
	}

	axes := axisOrder[:axisCount]
	servos := make(map[AxisName]*servo.Servo, axisCount)
	for _, name := range axes {
		s, ok := axisServos[name]
		if !ok {
			return nil, fmt.Errorf("vehicle: no servo configured for axis %q", name)
		}
		servos[name] = s
	}

	return &Controller{
		axes:   axes,
		servos: servos,
		values: make(map[AxisName]float64, axisCount),
	}, nil
}

// ExpectedAxisCount returns the configured number of axes, which is the
// required length of an incoming Control frame's axes slice.
func (c *Controller) ExpectedAxisCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.axes)
}

// Apply updates every axis from a Control frame's axes slice. A length
// mismatch is logged and treated as a no-op rather than a crash.
func (c *Controller) Apply(axesValues []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(axesValues) != len(c.axes) {
		slog.Warn("control frame axis count mismatch", "expected", len(c.axes), "got", len(axesValues))
		return
	}

	for i, name := range c.axes {
		value := axesValues[i]
		c.values[name] = value
		if err := c.servos[name].Rotate(value); err != nil {
			slog.Error("servo rotate failed", "axis", name, "err", err)
		}
	}
}

// Shutdown sets every axis value to 0, rotates every servo to neutral,
// then disables every servo. Idempotent
// and safe to call from a termination-signal context — the critical
// section here is a single mutex plus each servo's own short critical
// section.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range c.axes {
		c.values[name] = 0
		if err := c.servos[name].Rotate(0); err != nil {
			slog.Error("servo neutral rotate failed during shutdown", "axis", name, "err", err)
		}
	}
	for _, name := range c.axes {
		if err := c.servos[name].Disable(); err != nil {
			slog.Error("servo disable failed during shutdown", "axis", name, "err", err)
		}
	}
}
