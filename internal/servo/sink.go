package servo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// HardwarePWMSink drives one Linux sysfs PWM channel
// (/sys/class/pwm/pwmchipN/pwmM). No third-party PWM library appears
// anywhere in the retrieval pack that both exposes a single-channel
// set-pulse-width primitive and runs outside a microcontroller-only
// build (jangala-dev-devicecode-go's PWM HAL is TinyGo firmware code
// and cannot link into a standard host binary alongside gorilla's
// websocket client); sysfs file I/O is therefore implemented directly
// against the kernel ABI rather than through a wrapper.
type HardwarePWMSink struct {
	mu       sync.Mutex
	chipPath string
	channel  int
	period   time.Duration
	exported bool
	disabled bool
}

// NewHardwarePWMSink exports channel on the PWM chip at chipPath (for
// example "/sys/class/pwm/pwmchip0") and configures its period. The
// channel starts disabled; the first SetPulseWidth call enables it.
func NewHardwarePWMSink(chipPath string, channel int, period time.Duration) (*HardwarePWMSink, error) {
	s := &HardwarePWMSink{chipPath: chipPath, channel: channel, period: period}

	exportPath := filepath.Join(chipPath, "export")
	if err := os.WriteFile(exportPath, []byte(strconv.Itoa(channel)), 0644); err != nil && !os.IsExist(err) {
		// A channel already exported by a prior run reports EBUSY; that
		// is not fatal, everything else is.
		if !isAlreadyExported(err) {
			return nil, fmt.Errorf("servo: export pwm channel %d: %w", channel, err)
		}
	}
	s.exported = true

	if err := s.writeAttr("period", strconv.FormatInt(period.Nanoseconds(), 10)); err != nil {
		return nil, fmt.Errorf("servo: configure pwm period: %w", err)
	}
	return s, nil
}

func isAlreadyExported(err error) bool {
	return os.IsExist(err) || errors.Is(err, syscall.EBUSY)
}

func (s *HardwarePWMSink) channelPath() string {
	return filepath.Join(s.chipPath, fmt.Sprintf("pwm%d", s.channel))
}

func (s *HardwarePWMSink) writeAttr(attr, value string) error {
	return os.WriteFile(filepath.Join(s.channelPath(), attr), []byte(value), 0644)
}

// SetPulseWidth writes duty_cycle in nanoseconds and enables the
// channel. Safe to call from a termination-signal context: the
// critical section is a single mutex acquisition around two small
// writes.
func (s *HardwarePWMSink) SetPulseWidth(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d < 0 || d > s.period {
		return fmt.Errorf("servo: pulse width %s outside period %s", d, s.period)
	}
	if err := s.writeAttr("duty_cycle", strconv.FormatInt(d.Nanoseconds(), 10)); err != nil {
		return fmt.Errorf("servo: set duty_cycle: %w", err)
	}
	if !s.disabled {
		if err := s.writeAttr("enable", "1"); err != nil {
			return fmt.Errorf("servo: enable pwm channel: %w", err)
		}
	}
	return nil
}

// Disable writes enable=0. Idempotent.
func (s *HardwarePWMSink) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
	return s.writeAttr("enable", "0")
}

// SoftwareGPIOSink drives an arbitrary GPIO pin with software-timed
// pulses via sysfs GPIO, for targets without a free hardware PWM
// channel. Lower jitter tolerance than HardwarePWMSink.
type SoftwareGPIOSink struct {
	mu        sync.Mutex
	pin       int
	valuePath string
	stop      chan struct{}
	running   bool
}

// NewSoftwareGPIOSink exports pin and prepares it for output.
func NewSoftwareGPIOSink(pin int) (*SoftwareGPIOSink, error) {
	const gpioRoot = "/sys/class/gpio"
	if err := os.WriteFile(filepath.Join(gpioRoot, "export"), []byte(strconv.Itoa(pin)), 0644); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("servo: export gpio %d: %w", pin, err)
	}
	pinDir := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin))
	if err := os.WriteFile(filepath.Join(pinDir, "direction"), []byte("out"), 0644); err != nil {
		return nil, fmt.Errorf("servo: configure gpio %d direction: %w", pin, err)
	}
	return &SoftwareGPIOSink{pin: pin, valuePath: filepath.Join(pinDir, "value")}, nil
}

// SetPulseWidth restarts a background ticker that holds the pin high
// for d every 20ms frame, the conventional hobby-servo refresh rate.
// The prior ticker, if any, is stopped first so at most one is active.
func (s *SoftwareGPIOSink) SetPulseWidth(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.running = true

	go s.pulseLoop(d, stop)
	return nil
}

func (s *SoftwareGPIOSink) pulseLoop(high time.Duration, stop chan struct{}) {
	const frame = 20 * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = os.WriteFile(s.valuePath, []byte("1"), 0644)
			time.Sleep(high)
			_ = os.WriteFile(s.valuePath, []byte("0"), 0644)
		}
	}
}

// Disable stops the pulse loop and drives the pin low. Idempotent and
// safe from a termination-signal context: it only closes a channel and
// issues one file write.
func (s *SoftwareGPIOSink) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stop)
		s.running = false
	}
	return os.WriteFile(s.valuePath, []byte("0"), 0644)
}
