package link

import (
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
)

// serialPort is the subset of go.bug.st/serial.Port this package
// depends on, narrowed so tests can substitute a fake without opening
// a real device.
type serialPort interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	Drain() error
}

// SerialLink is a Link implementation backed by go.bug.st/serial.
// It is chosen over the teacher's github.com/tarm/serial because
// SetMode can change baud rate on an already-open port, which the
// handshake's baud-change job requires mid-session (see
// SPEC_FULL.md section 11).
type SerialLink struct {
	port serialPort
	recv Receiver

	mu       sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Open opens devicePath at the given initial baud rate (8N1, matching
// the teacher's serial.Config{Size: 8, Parity: ParityNone, StopBits:
// Stop1}) and starts delivering received bytes to recv.
func Open(devicePath string, baud int, recv Receiver) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return newSerialLink(port, recv), nil
}

func newSerialLink(port serialPort, recv Receiver) *SerialLink {
	l := &SerialLink{
		port:   port,
		recv:   recv,
		stopCh: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.readLoop()
	return l
}

// readLoop continuously reads from the serial port and hands
// received chunks to the Receiver, the way usock.go's readLoop
// drives processByte — synchronously, so ordering within a chunk is
// preserved and back-pressure is free.
func (l *SerialLink) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 256)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			log.Printf("ev3uart link: read error: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		if l.recv != nil {
			l.recv.Receive(append([]byte(nil), buf[:n]...))
		}
	}
}

// Send writes data to the link. Writes are serialized with a mutex
// because go.bug.st/serial.Port.Write is not documented safe for
// concurrent callers.
func (l *SerialLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.port.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// SetBaud reconfigures the line speed in place.
func (l *SerialLink) SetBaud(rate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	mode := &serial.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := l.port.SetMode(mode); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", rate, err)
	}
	return nil
}

// Flush waits until the transmit queue has drained.
func (l *SerialLink) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.port.Drain(); err != nil {
		return fmt.Errorf("failed to drain serial port: %w", err)
	}
	return nil
}

// Close stops the read loop and closes the underlying port.
func (l *SerialLink) Close() error {
	close(l.stopCh)
	// Closing the port first unblocks a Read the loop is parked in.
	err := l.port.Close()
	l.wg.Wait()
	return err
}
