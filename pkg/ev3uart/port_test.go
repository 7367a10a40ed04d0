package ev3uart

import (
	"sync"
	"testing"
	"time"

	"github.com/librescoot/ev3uart-service/pkg/registry"
)

// fakeLink is an in-memory Link double recording every byte sent and
// every baud-rate/flush/close call, so discovery and streaming tests
// don't need a real transport.
type fakeLink struct {
	mu     sync.Mutex
	sent   [][]byte
	bauds  []int
	flushes int
	closed bool
}

func (f *fakeLink) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeLink) SetBaud(rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bauds = append(f.bauds, rate)
	return nil
}

func (f *fakeLink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) lastBaud() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bauds) == 0 {
		return 0
	}
	return f.bauds[len(f.bauds)-1]
}

func (f *fakeLink) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeRegistry is an in-memory Registry double.
type fakeRegistry struct {
	mu          sync.Mutex
	published   map[string]registry.Snapshot
	reconnects  []string
	publishErr  error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{published: make(map[string]registry.Snapshot)}
}

func (r *fakeRegistry) Publish(port string, snap registry.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published[port] = snap
	return nil
}

func (r *fakeRegistry) Reconnect(port string, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects = append(r.reconnects, port)
}

func (r *fakeRegistry) publishedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

// --- frame builders, mirroring a real sensor's wire output ---

func frameType(typeID byte) []byte {
	cmd := buildHeader(MsgCmd, 1, cmdType)
	return []byte{cmd, typeID, checksumOf([]byte{cmd, typeID})}
}

func frameModes(numModesMinusOne, numViewModesMinusOne byte) []byte {
	header := buildHeader(MsgCmd, 2, cmdModes)
	body := []byte{header, numModesMinusOne, numViewModesMinusOne}
	return append(body, checksumOf(body))
}

func frameSpeed(speed uint32) []byte {
	header := buildHeader(MsgCmd, 4, cmdSpeed)
	body := []byte{header, byte(speed), byte(speed >> 8), byte(speed >> 16), byte(speed >> 24)}
	return append(body, checksumOf(body))
}

func frameName(mode uint8, name string) []byte {
	size := 1
	for size < len(name)+1 {
		size <<= 1
	}
	payload := make([]byte, size)
	copy(payload, name)
	header := buildHeader(MsgInfo, size, mode)
	body := append([]byte{header, infoName}, payload...)
	return append(body, checksumOf(body))
}

func frameFormat(mode uint8, dataSets, format, figures, decimals byte) []byte {
	header := buildHeader(MsgInfo, 4, mode)
	body := []byte{header, infoFormat, dataSets, format, figures, decimals}
	return append(body, checksumOf(body))
}

func frameAck() []byte {
	return []byte{byte(MsgSys) | sysAck}
}

func frameData(mode uint8, payload []byte) []byte {
	size := 1
	for size < len(payload) {
		size <<= 1
	}
	buf := make([]byte, size)
	copy(buf, payload)
	header := buildHeader(MsgData, size, mode)
	body := append([]byte{header}, buf...)
	return append(body, checksumOf(body))
}

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func newTestPort() (*Port, *fakeLink, *fakeRegistry) {
	l := &fakeLink{}
	r := newFakeRegistry()
	p := New(l, r, "in1")
	return p, l, r
}

// discover feeds a minimal but complete discovery sequence for a
// two-mode sensor of which only mode 0 is described: TYPE, MODES,
// NAME(mode 0), FORMAT(mode 0), ACK.
func discover(p *Port, typeID byte) {
	p.Receive(frameType(typeID))
	p.Receive(frameModes(1, 1))
	p.Receive(frameName(0, "touch"))
	p.Receive(frameFormat(0, 1, byte(FormatS8), 3, 0))
	p.Receive(frameAck())
}

func TestSyncHuntIgnoresGarbageBeforeType(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	garbage := []byte{0x11, 0x22, 0x33, 0x44}
	p.Receive(concat(garbage, frameType(8)))

	if !p.Synced() {
		t.Fatalf("expected Port to be synced after a valid TYPE frame following garbage")
	}
}

func TestSyncHuntRejectsBadChecksum(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	f := frameType(8)
	f[2] ^= 0xFF // corrupt checksum
	p.Receive(f)

	if p.Synced() {
		t.Fatalf("expected Port to remain unsynced after a TYPE frame with a bad checksum")
	}
}

func TestDiscoverySequencePublishesOnAck(t *testing.T) {
	p, link, reg := newTestPort()
	defer p.Close()

	discover(p, 16)

	if !p.Synced() {
		t.Fatalf("expected Port to be synced after discovery")
	}

	// Publish and the SYS_ACK transmit both happen inside ackSendJob,
	// which only runs once the 10ms ackTimer fires and the deferred-work
	// worker drains it — both asynchronous to discover()'s synchronous
	// Receive calls, so both assertions must poll rather than check
	// immediately.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && (reg.publishedCount() == 0 || link.sentCount() == 0) {
		time.Sleep(time.Millisecond)
	}
	if reg.publishedCount() != 1 {
		t.Fatalf("expected exactly one publish, got %d", reg.publishedCount())
	}
	if link.sentCount() == 0 {
		t.Fatalf("expected the handshake to send a SYS_ACK byte")
	}
}

func TestAckBeforeRequiredInfoIsFatal(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	p.Receive(frameType(8))
	p.Receive(frameModes(1, 1))
	// No NAME/FORMAT sent — ACK should be rejected and desync the port.
	p.Receive(frameAck())

	if p.Synced() {
		t.Fatalf("expected ACK before required info to desync the port")
	}
}

func TestStreamingDecodesDataFrames(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	discover(p, 16)
	p.Receive(frameData(0, []byte{0x2A}))

	v, err := p.Value(0)
	if err != nil {
		t.Fatalf("Value(0): %v", err)
	}
	if v != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestValueRejectsOutOfRangeIndex(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	discover(p, 16)
	p.Receive(frameData(0, []byte{0x2A}))

	if _, err := p.Value(1); err == nil {
		t.Fatalf("expected an error for a data set index beyond DataSets (1)")
	}
}

func TestDataBeforeInfoDoneIsFatal(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	p.Receive(frameType(8))
	p.Receive(frameData(0, []byte{0x01}))

	if p.Synced() {
		t.Fatalf("expected DATA before discovery complete to desync the port")
	}
}

func TestType29RGBRawBadChecksumExempted(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	discover(p, ev3Color29)

	header := buildHeader(MsgData, 8, 4)
	if header != rgbRawBadChecksumHeader {
		t.Fatalf("test setup: header 0x%02x != documented exempt header 0x%02x", header, rgbRawBadChecksumHeader)
	}
	frame := append([]byte{header}, make([]byte, 8)...)
	frame = append(frame, 0x00) // deliberately wrong trailing checksum byte
	p.Receive(frame)

	if !p.Synced() {
		t.Fatalf("expected a type-29 frame with header 0xDC to be exempt from the checksum check")
	}
}

func TestOtherTypeBadChecksumNotExempted(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	discover(p, 8)

	frame := frameData(0, []byte{0x01})
	frame[len(frame)-1] ^= 0xFF // corrupt checksum
	p.Receive(frame)

	if !p.Synced() {
		t.Fatalf("bad checksum during streaming should increment the error count, not desync immediately on a single frame")
	}
	p.mu.Lock()
	gotErrs := p.dataErrCount
	p.mu.Unlock()
	if gotErrs != 1 {
		t.Fatalf("expected the non-exempt bad-checksum frame to count as one data error, got %d", gotErrs)
	}
}

func TestSplitSyncChecksumByteConsumedWithoutDispatch(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	p.Receive(frameType(8))
	// A stray 0xFF split-sync checksum byte arrives as the first
	// "frame" byte; it must be silently consumed, not misinterpreted
	// as a header.
	p.Receive([]byte{0xFF})
	p.Receive(frameModes(1, 1))

	if !p.Synced() {
		t.Fatalf("expected Port to remain synced through a split-sync checksum byte")
	}
}

func TestLivenessStarvationForcesResync(t *testing.T) {
	p, _, _ := newTestPort()
	defer p.Close()

	discover(p, 16)
	if !p.Synced() {
		t.Fatalf("expected Port synced after discovery")
	}

	// Drive the LivenessWatch tick directly rather than waiting on
	// real timers: each tick with no intervening DATA frame bumps
	// data_err_count, matching spec.md S6's "no DATA for 700ms".
	for i := 0; i < MaxDataErr+1; i++ {
		p.livenessTick()
	}

	if p.Synced() {
		t.Fatalf("expected repeated keep-alive starvation to force a resync")
	}
	p.mu.Lock()
	gotBaud := p.newBaud
	p.mu.Unlock()
	if gotBaud != SpeedMin {
		t.Fatalf("expected new_baud to drop to %d after starvation, got %d", SpeedMin, gotBaud)
	}
}

func TestCloseStopsWorkerAndTimers(t *testing.T) {
	p, _, _ := newTestPort()
	discover(p, 16)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
