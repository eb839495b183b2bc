package preamp

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWatchdogTimeout comfortably exceeds the slowest phase: a 17-byte
// EEPROM page write at 100 kHz plus clock stretching.
const DefaultWatchdogTimeout = 32 * time.Millisecond

// Watchdog calls its expiry hook unless it is kicked at least once per
// timeout. It is armed by the first Kick.
type Watchdog struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	timeout time.Duration
	expire  func()
	timer   clockwork.Timer
}

// NewWatchdog returns an unarmed watchdog.
func NewWatchdog(clock clockwork.Clock, timeout time.Duration, expire func()) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	return &Watchdog{clock: clock, timeout: timeout, expire: expire}
}

// Kick restarts the countdown.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		w.timer = w.clock.AfterFunc(w.timeout, w.expire)
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
