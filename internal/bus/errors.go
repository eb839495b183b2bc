package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAcknowledged means the addressed device did not ACK: absent or busy.
	ErrNotAcknowledged = errors.New("bus: not acknowledged")
	// ErrArbitrationLost means another master won the bus. Only Recover clears it.
	ErrArbitrationLost = errors.New("bus: arbitration lost")
	// ErrBusCondition is a malformed transaction, e.g. an unexpected stop or an
	// oversized payload.
	ErrBusCondition = errors.New("bus: error condition")
	// ErrStuckBus is returned by Recover when SDA never released.
	ErrStuckBus = errors.New("bus: data line held low")
	// ErrNoRecoveryLines is returned by Recover when no SCL/SDA lines are wired.
	ErrNoRecoveryLines = errors.New("bus: no recovery lines")
	// ErrTimeout is returned by PollUntil when its bound is exhausted.
	ErrTimeout = errors.New("bus: wait bound exceeded")
)

// TxError describes a failed transaction.
type TxError struct {
	Addr uint16
	Op   string
	Err  error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("bus: %s 0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// classify maps an error from the underlying bus driver onto the bus error
// taxonomy. Drivers that already report one of the sentinels keep their
// chain; anything else is treated as a missing acknowledge.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotAcknowledged),
		errors.Is(err, ErrArbitrationLost),
		errors.Is(err, ErrBusCondition):
		return err
	}
	return fmt.Errorf("%w: %v", ErrNotAcknowledged, err)
}
