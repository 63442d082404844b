// Command vehicle runs the teleoperation relay's vehicle client: it
// dials the broker, identifies itself once, and drives up to four servo
// axes from incoming Control frames until the connection ends, always
// returning every servo to neutral and disabled first.
//
// Grounded on original_source/aviator5g-vehicle/src/main.rs's startup
// sequence, rewritten around internal/servo and internal/vehicle's Go
// APIs instead of a direct rppal::pwm port.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/SilentByte/aviator5g/internal/servo"
	"github.com/SilentByte/aviator5g/internal/vehicle"
)

// Compiled-in identifiers, overridable via CLI flags without breaking
// the protocol.
const (
	defaultGroupID = "14ed4af8-5256-4e74-a5d6-545dfc0b004c"
	defaultID      = "e72029c7-ce0f-45c7-bc3a-3e01e5c53944"
)

const (
	defaultServoPeriod  = 20000 * time.Microsecond
	defaultPulseMin     = 1000 * time.Microsecond
	defaultPulseNeutral = 1500 * time.Microsecond
	defaultPulseMax     = 2000 * time.Microsecond
)

func main() {
	rawURL := flag.String("url", "ws://localhost:9000/ws", "broker connect url (ws:// or wss://)")
	idFlag := flag.String("id", defaultID, "this vehicle's identifier")
	groupIDFlag := flag.String("group-id", defaultGroupID, "this vehicle's group identifier")
	axisCount := flag.Int("axes", 2, "number of control axes, in order ailerons/elevator/rudder/throttle (1-4)")
	pwmChip := flag.String("pwm-chip", "/sys/class/pwm/pwmchip0", "sysfs PWM chip path for hardware-driven axes")
	flag.Parse()

	id, err := uuid.Parse(*idFlag)
	if err != nil {
		log.Fatalf("[vehicle] invalid -id: %v", err)
	}
	groupID, err := uuid.Parse(*groupIDFlag)
	if err != nil {
		log.Fatalf("[vehicle] invalid -group-id: %v", err)
	}

	log.Printf("[vehicle] connecting to %s", *rawURL)
	client, err := vehicle.Dial(*rawURL, id, groupID)
	if err != nil {
		log.Fatalf("[vehicle] %v", err)
	}
	defer client.Close()

	controller, err := buildController(*axisCount, *pwmChip)
	if err != nil {
		log.Fatalf("[vehicle] %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[vehicle] signal received, shutting down...")
		controller.Shutdown()
		os.Exit(0)
	}()
	defer controller.Shutdown()

	if err := client.Run(controller); err != nil {
		log.Printf("[vehicle] receive loop ended: %v", err)
	}
}

// buildController constructs one servo per configured axis. The
// throttle axis, if present, is floored at neutral by construction, so
// a dropped or stale connection can never command reverse thrust.
// Axis-to-channel assignment is a fixed convention: axes 0 and 1 use
// hardware PWM channels, axes 2 and 3 (if configured) use
// software-timed GPIO — the two channels available on typical targets.
func buildController(axisCount int, pwmChip string) (*vehicle.Controller, error) {
	names := []vehicle.AxisName{vehicle.AxisAilerons, vehicle.AxisElevator, vehicle.AxisRudder, vehicle.AxisThrottle}
	gpioPins := []int{17, 27}

	servos := make(map[vehicle.AxisName]*servo.Servo, axisCount)
	for i := 0; i < axisCount; i++ {
		name := names[i]

		var sink servo.PulseSink
		var err error
		if i < 2 {
			sink, err = servo.NewHardwarePWMSink(pwmChip, i, defaultServoPeriod)
		} else {
			sink, err = servo.NewSoftwareGPIOSink(gpioPins[i-2])
		}
		if err != nil {
			return nil, err
		}

		var opts []servo.Option
		if name == vehicle.AxisThrottle {
			opts = append(opts, servo.WithFloorAtNeutral())
		}

		s, err := servo.NewServo(sink, defaultServoPeriod, defaultPulseMin, defaultPulseNeutral, defaultPulseMax, opts...)
		if err != nil {
			return nil, err
		}
		servos[name] = s
	}

	return vehicle.NewController(servos, axisCount)
}
