// Package link defines the narrow transport interface the ev3uart
// core consumes, plus a go.bug.st/serial-backed implementation of it.
package link

import "sync"

// Link is the full set of operations the ev3uart core requires of a
// serial transport: send bytes, change baud rate, and flush pending
// output. Receiving bytes is push-based via a Receiver registered at
// construction time, matching how pkg/usock.New(devicePath, baud,
// handler) wired its teacher's read loop.
type Link interface {
	// Send enqueues data to transmit. Sends may be reordered only
	// with respect to other pending sends.
	Send(data []byte) error

	// SetBaud reconfigures the line speed. The precondition is that
	// prior sends have drained; implementations that cannot guarantee
	// this internally should be preceded by a Flush call.
	SetBaud(rate int) error

	// Flush waits until the transmit queue has drained.
	Flush() error

	// Close releases the underlying transport and stops the read
	// loop.
	Close() error
}

// Receiver is the push-based callback a Link delivers received bytes
// to, in order.
type Receiver interface {
	Receive(data []byte)
}

// ReceiverFunc adapts a plain function to Receiver.
type ReceiverFunc func(data []byte)

func (f ReceiverFunc) Receive(data []byte) { f(data) }

// IndirectReceiver lets a Link be opened before the Receiver that
// will ultimately consume its bytes exists, by forwarding through a
// mutex-guarded pointer set after construction. This resolves the
// Link-needs-a-Receiver / Receiver-needs-a-Link ordering a Port and
// its Link have at startup.
type IndirectReceiver struct {
	mu sync.Mutex
	r  Receiver
}

// Set installs the real Receiver. Safe to call concurrently with
// Receive.
func (ir *IndirectReceiver) Set(r Receiver) {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	ir.r = r
}

// Receive forwards to the installed Receiver, if any.
func (ir *IndirectReceiver) Receive(data []byte) {
	ir.mu.Lock()
	r := ir.r
	ir.mu.Unlock()
	if r != nil {
		r.Receive(data)
	}
}
