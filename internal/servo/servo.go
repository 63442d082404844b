// Package servo implements the normalized-axis-to-pulse-width mapping
// and a pulse-width sink abstraction: a capability of
// {set_pulse_width(duration); disable()} with two variants, hardware
// PWM and software-timed GPIO, selected at construction so downstream
// code is variant-agnostic. Grounded on the Configure/Set capability
// shape of jangala-dev-devicecode-go/services/hal/devices/pwm_out/device.go.
package servo

import (
	"fmt"
	"math"
	"time"
)

// PulseSink drives one physical or simulated PWM output. Implementations
// must tolerate concurrent calls from both the vehicle's receive loop
// and its termination-signal handler; a short per-servo critical
// section is sufficient to stay signal-safe.
type PulseSink interface {
	SetPulseWidth(d time.Duration) error
	Disable() error
}

// Servo maps a normalized control axis in [-1, 1] onto a pulse width in
// [pulseMin, pulseMax] and writes it to a PulseSink.
type Servo struct {
	period       time.Duration
	pulseMin     time.Duration
	pulseNeutral time.Duration
	pulseMax     time.Duration
	floorNeutral bool
	sink         PulseSink
}

// Option configures a Servo at construction.
type Option func(*Servo)

// WithFloorAtNeutral constrains Rotate's effective minimum to the
// neutral pulse instead of pulseMin, for axes (such as throttle) that
// must never command reverse.
func WithFloorAtNeutral() Option {
	return func(s *Servo) { s.floorNeutral = true }
}

// NewServo constructs a Servo and immediately drives sink to
// pulseNeutral, so a servo never idles at an arbitrary position before
// its first command arrives.
func NewServo(sink PulseSink, period, pulseMin, pulseNeutral, pulseMax time.Duration, opts ...Option) (*Servo, error) {
	s := &Servo{
		period:       period,
		pulseMin:     pulseMin,
		pulseNeutral: pulseNeutral,
		pulseMax:     pulseMax,
		sink:         sink,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.sink.SetPulseWidth(pulseNeutral); err != nil {
		return nil, fmt.Errorf("servo: drive to neutral: %w", err)
	}
	return s, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp(start, end, amount float64) float64 {
	return (1-amount)*start + amount*end
}

// Rotate maps a normalized axis amount to a pulse width: clamp to
// [-1, 1], lerp from pulseNeutral toward pulseMin or pulseMax, truncate
// toward zero
// to whole microseconds, and write the result to the sink. A NaN amount
// fails every comparison, so instead of being clamped it is sent to the
// bound matching its sign bit (-1 or +1).
func (s *Servo) Rotate(amount float64) error {
	a := amount
	if math.IsNaN(a) {
		a = math.Copysign(1, a)
	} else {
		a = clamp(a, -1, 1)
	}

	floor := s.pulseMin
	if s.floorNeutral {
		floor = s.pulseNeutral
	}

	var pulseUs float64
	switch {
	case a < 0:
		pulseUs = lerp(float64(s.pulseNeutral.Microseconds()), float64(floor.Microseconds()), -a)
	case a > 0:
		pulseUs = lerp(float64(s.pulseNeutral.Microseconds()), float64(s.pulseMax.Microseconds()), a)
	default:
		pulseUs = float64(s.pulseNeutral.Microseconds())
	}

	return s.sink.SetPulseWidth(time.Duration(int64(pulseUs)) * time.Microsecond)
}

// Disable places the sink in an inert state. After Disable the servo is
// unusable until reconstructed.
func (s *Servo) Disable() error {
	return s.sink.Disable()
}

// Period returns the PWM frame period this servo was constructed with.
func (s *Servo) Period() time.Duration { return s.period }
