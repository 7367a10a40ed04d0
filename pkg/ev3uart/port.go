package ev3uart

import (
	"sync"
	"time"

	"github.com/librescoot/ev3uart-service/pkg/link"
	"github.com/librescoot/ev3uart-service/pkg/registry"
)

// Port is the Port Machine: the single per-line owner of framing,
// discovery, and streaming state for one attached EV3 UART sensor.
// Exactly one Port exists per serial line for the line's lifetime
// (spec.md section 3).
type Port struct {
	mu sync.Mutex

	link link.Link
	reg  registry.Registry
	name string

	synced       bool
	typeID       uint8
	numModes     uint8
	numViewModes uint8
	currentMode  uint8
	infoFlags    InfoFlags
	infoDone     bool
	newBaud      int
	dataErrCount int
	dataRecv     bool
	rxBuffer     [BufferSize]byte
	writePtr     int
	modeInfo     [ModeMax + 1]ModeInfo
	lastError    string

	sensorPublished bool

	ackTimer  *time.Timer
	baudTimer *time.Timer
	liveTimer *time.Timer

	jobs   chan func()
	closed chan struct{}
	wg     sync.WaitGroup
}

// New creates a Port bound to l for transport and reg for publishing
// the completed sensor descriptor. The Port is unsynced until the
// first valid TYPE frame arrives.
func New(l link.Link, reg registry.Registry, portName string) *Port {
	p := &Port{
		link:    l,
		reg:     reg,
		name:    portName,
		newBaud: SpeedMin,
		typeID:  TypeUnknown,
		jobs:    make(chan func(), 16),
		closed:  make(chan struct{}),
	}
	for i := range p.modeInfo {
		p.modeInfo[i] = defaultModeInfo()
	}
	p.wg.Add(1)
	go p.workerLoop()
	return p
}

// Close cancels all scheduled work synchronously and releases the
// Port, per spec.md section 5's Cancellation requirements.
func (p *Port) Close() error {
	p.mu.Lock()
	ack, baud, live := p.ackTimer, p.baudTimer, p.liveTimer
	p.mu.Unlock()

	if ack != nil {
		ack.Stop()
	}
	if baud != nil {
		baud.Stop()
	}
	if live != nil {
		live.Stop()
	}
	close(p.closed)
	p.wg.Wait()
	return nil
}

// LastError returns the most recent diagnostic message, surviving the
// last resync.
func (p *Port) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Synced reports whether the Port currently holds a synchronized
// session with the sensor.
func (p *Port) Synced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synced
}

// Receive implements link.Receiver. It is the sole entry point for
// the receive context (spec.md section 5): it runs synchronously to
// completion, holding Port.mu for the duration of the frame loop, and
// never blocks on the link.
func (p *Port) Receive(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.huntSyncLocked(data)
	if !p.synced {
		return
	}

	for ; i < len(data); i++ {
		if p.writePtr >= BufferSize {
			p.doFatalSyncLossLocked(ErrSyncLost, "receive buffer overflow")
			return
		}
		p.rxBuffer[p.writePtr] = data[i]
		p.writePtr++
	}

	p.drainFramesLocked()
}

// huntSyncLocked scans data for a candidate TYPE frame while the Port
// is unsynced, per spec.md section 4.1's sync hunt. It returns the
// index in data at which framing should resume. If no TYPE frame was
// found the Port is still unsynced, the returned index is only where
// the scan stopped, and the caller must not continue framing this
// chunk.
func (p *Port) huntSyncLocked(data []byte) int {
	i := 0
	for !p.synced {
		if i+2 >= len(data) {
			return i
		}
		cmd := data[i]
		i++
		if cmd != byte(MsgCmd)|cmdType {
			continue
		}
		typ := data[i]
		if typ == 0 || typ > TypeMax {
			continue
		}
		chk := checksumOf([]byte{cmd, typ})
		if data[i+1] != chk {
			continue
		}
		p.acceptSyncLocked(typ)
		i += 2
	}
	return i
}

// acceptSyncLocked installs defaults and marks the Port synced after
// a TYPE frame is accepted.
func (p *Port) acceptSyncLocked(typeID byte) {
	for i := range p.modeInfo {
		p.modeInfo[i] = defaultModeInfo()
	}
	p.typeID = typeID
	p.numModes = 1
	p.numViewModes = 1
	p.currentMode = 0
	p.infoFlags = FlagCmdType
	p.synced = true
	p.infoDone = false
	p.writePtr = 0
	p.dataRecv = false
	p.dataErrCount = 0
	p.lastError = ""
}

// drainFramesLocked processes every complete frame currently buffered,
// per spec.md section 4.1's "Framing when synced" loop.
func (p *Port) drainFramesLocked() {
	for p.writePtr > 0 {
		// Checked ahead of the size gate below: a stray split-off
		// checksum byte would otherwise encode a bogus, often
		// unreachable, msgSize and stall the buffer (spec.md section
		// 4.1's framing loop).
		if p.rxBuffer[0] == splitSyncChecksum {
			p.shiftBufferLocked(1)
			continue
		}

		header := p.rxBuffer[0]
		sz := msgSize(header)
		if sz > p.writePtr {
			return
		}
		frame := append([]byte(nil), p.rxBuffer[:sz]...)

		if sz > 1 && !checksumOK(frame) && !p.checksumExemptLocked(frame) {
			if !p.infoDone {
				p.doFatalSyncLossLocked(ErrSyncLost, "bad checksum before discovery complete")
				return
			}
			p.setErrorLocked(ErrDataChecksumBad, "bad checksum")
			p.dataErrCount++
		} else if err := p.decodeFrameLocked(frame); err != nil {
			p.doFatalSyncLossLocked(ErrSyncLost, err.Error())
			return
		}

		if p.infoDone && p.dataErrCount > MaxDataErr {
			p.doFatalSyncLossLocked(ErrSyncLost, "too many data errors")
			return
		}

		p.shiftBufferLocked(sz)
	}
}

// checksumExemptLocked implements the narrow, documented exemption
// from spec.md section 9: only a type-29 (EV3 Color) frame whose
// header byte is exactly 0xDC is exempt from the checksum check.
func (p *Port) checksumExemptLocked(frame []byte) bool {
	return p.typeID == ev3Color29 && frame[0] == rgbRawBadChecksumHeader
}

func (p *Port) shiftBufferLocked(n int) {
	copy(p.rxBuffer[:p.writePtr-n], p.rxBuffer[n:p.writePtr])
	p.writePtr -= n
}

// doFatalSyncLossLocked implements the Framer's failure policy
// (spec.md section 4.1): desync, drop to 2400 baud, and schedule the
// baud-change job that will apply it. kind classifies the triggering
// condition per spec.md section 7's error taxonomy; callers pass
// ErrSyncLost for every case the spec doesn't name a more specific
// kind for, since SyncLost is itself the escalation target of
// DataChecksumBad/Starvation as well as its own direct causes
// (impossible field, duplicate INFO, buffer overflow).
func (p *Port) doFatalSyncLossLocked(kind ErrorKind, reason string) {
	p.synced = false
	p.infoDone = false
	p.newBaud = SpeedMin
	p.writePtr = 0
	p.setErrorLocked(kind, reason)
	p.scheduleBaudChangeLocked()
}

// setErrorLocked records a diagnostic as a PortError of the given
// kind, the Go representation of spec.md section 7's taxonomy
// (SyncLost, DataChecksumBad, Starvation, PublishFailed, LinkError).
// Called with Port.mu held.
func (p *Port) setErrorLocked(kind ErrorKind, message string) {
	p.lastError = (&PortError{Kind: kind, Message: message}).Error()
}

// enqueue hands fn to the deferred-work worker goroutine. It never
// runs fn inline, but it blocks while the job queue is full until the
// worker takes a job or the Port closes; since queued jobs take
// Port.mu, every caller invokes it without Port.mu held.
func (p *Port) enqueue(fn func()) {
	select {
	case p.jobs <- fn:
	case <-p.closed:
	}
}

func (p *Port) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.jobs:
			fn()
		case <-p.closed:
			return
		}
	}
}
