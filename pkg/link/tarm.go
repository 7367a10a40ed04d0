package link

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// TarmLink is a Link implementation backed by github.com/tarm/serial,
// built the way pkg/usock/usock.go's USOCK wired a device: open with
// a fixed serial.Config, then read one byte at a time on a dedicated
// goroutine. Unlike SerialLink, tarm/serial exposes no in-place mode
// change, so SetBaud here closes and reopens the port at the new
// rate — acceptable for the 2400 -> negotiated-rate handshake because
// the HandshakeDriver always Flushes before changing baud.
type TarmLink struct {
	mu     sync.Mutex
	device string
	baud   int
	port   *serial.Port
	recv   Receiver
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// OpenTarm opens devicePath at the given initial baud rate and starts
// delivering received bytes to recv.
func OpenTarm(devicePath string, baud int, recv Receiver) (*TarmLink, error) {
	l := &TarmLink{device: devicePath, baud: baud, recv: recv}
	if err := l.openLocked(baud); err != nil {
		return nil, err
	}
	l.stopCh = make(chan struct{})
	l.wg.Add(1)
	go l.readLoop()
	return l, nil
}

func (l *TarmLink) openLocked(baud int) error {
	cfg := &serial.Config{
		Name:     l.device,
		Baud:     baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	l.port = port
	l.baud = baud
	return nil
}

func (l *TarmLink) readLoop() {
	defer l.wg.Done()
	buf := make([]byte, 1)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		l.mu.Lock()
		port := l.port
		l.mu.Unlock()
		n, err := port.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("ev3uart link: read error: %v", err)
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		if n == 0 {
			continue
		}
		if l.recv != nil {
			l.recv.Receive([]byte{buf[0]})
		}
	}
}

func (l *TarmLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.port.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (l *TarmLink) SetBaud(rate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("failed to close port before rebaud: %w", err)
	}
	return l.openLocked(rate)
}

func (l *TarmLink) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Flush()
}

func (l *TarmLink) Close() error {
	close(l.stopCh)
	// Closing the port first unblocks a Read the loop is parked in.
	l.mu.Lock()
	err := l.port.Close()
	l.mu.Unlock()
	l.wg.Wait()
	return err
}
