package ev3uart

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// SetMode requests the sensor switch its active mode, mirroring
// legoev3_uart_set_mode: a three-byte CMD_SELECT frame (header, mode,
// checksum) written directly to the link, bypassing the deferred-work
// worker since this is a user-initiated, synchronous request. A link
// transmit failure is returned to the caller as a *PortError{Kind:
// ErrLinkError}, per spec.md section 7's "bubble up to the caller of
// set_mode/write" rule.
func (p *Port) SetMode(mode uint8) error {
	p.mu.Lock()
	numModes := p.numModes
	p.mu.Unlock()

	if numModes > 0 && mode >= numModes {
		return fmt.Errorf("mode %d out of range (have %d modes)", mode, numModes)
	}

	header := buildHeader(MsgCmd, 1, cmdSelect)
	frame := []byte{header, mode}
	frame = append(frame, checksumOf(frame))
	if err := p.link.Send(frame); err != nil {
		return &PortError{Kind: ErrLinkError, Message: "set_mode send failed", Err: err}
	}
	return nil
}

// SetModeByName resolves a mode name to its index and calls SetMode,
// the supplemented convenience the upward registry interface needs
// since subscribers address modes by name (SPEC_FULL.md section 12).
func (p *Port) SetModeByName(name string) error {
	p.mu.Lock()
	var found int8 = -1
	for i := uint8(0); i < p.numModes; i++ {
		if p.modeInfo[i].Name == name {
			found = int8(i)
			break
		}
	}
	p.mu.Unlock()

	if found < 0 {
		return fmt.Errorf("no mode named %q", name)
	}
	return p.SetMode(uint8(found))
}

// Write sends an arbitrary command payload to the sensor as a
// CMD_WRITE frame, the way legoev3_uart_write wraps user data. data
// is padded with zero bytes up to the next power of two in
// {2,4,8,16,32} (spec.md section 6's write_command). A link
// transmit failure is returned to the caller as a *PortError{Kind:
// ErrLinkError}, matching SetMode.
func (p *Port) Write(data []byte) error {
	if len(data) == 0 || len(data) > 32 {
		return fmt.Errorf("write payload must be 1..32 bytes, got %d", len(data))
	}
	size := 2
	for size < len(data) {
		size <<= 1
	}
	payload := make([]byte, size)
	copy(payload, data)

	header := buildHeader(MsgCmd, size, cmdWrite)
	frame := append([]byte{header}, payload...)
	frame = append(frame, checksumOf(frame))
	if err := p.link.Send(frame); err != nil {
		return &PortError{Kind: ErrLinkError, Message: "write send failed", Err: err}
	}
	return nil
}

// WriteCBOR CBOR-encodes v (the teacher's own wire-encoding library,
// github.com/fxamacker/cbor/v2) and sends it as a CMD_WRITE payload.
func (p *Port) WriteCBOR(v interface{}) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cbor payload: %w", err)
	}
	return p.Write(b)
}

// Value decodes the index-th data set of the current mode's most
// recently received DATA frame, the supplemented indexed-value
// accessor (SPEC_FULL.md section 12), grounded on
// legoev3_uart_raw_s8_value/_s16_value/_s32_value/_raw_float_value.
// S8/S16/S32 samples are scaled by ModeInfo.Decimals, matching how the
// original expresses a fixed decimal point within an integer reading;
// a FLOAT sample is already a real number and is returned unscaled.
func (p *Port) Value(index int) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mode := p.currentMode
	info := p.modeInfo[mode]
	if index < 0 || index >= info.DataSets {
		return 0, fmt.Errorf("data set index %d out of range (mode %d has %d)", index, mode, info.DataSets)
	}

	width := sampleWidth(info.Format)
	off := index * width
	if width == 0 || off+width > len(info.RawData) {
		return 0, fmt.Errorf("mode %d has no decodable sample layout yet", mode)
	}

	switch info.Format {
	case FormatS8:
		v := int8(info.RawData[off])
		return float64(v) / math.Pow(10, float64(info.Decimals)), nil
	case FormatS16:
		v := int16(binary.LittleEndian.Uint16(info.RawData[off : off+2]))
		return float64(v) / math.Pow(10, float64(info.Decimals)), nil
	case FormatS32:
		v := int32(binary.LittleEndian.Uint32(info.RawData[off : off+4]))
		return float64(v) / math.Pow(10, float64(info.Decimals)), nil
	case FormatFloat:
		bits := binary.LittleEndian.Uint32(info.RawData[off : off+4])
		return float64(math.Float32frombits(bits)), nil
	default:
		return 0, fmt.Errorf("mode %d has unknown data format %d", mode, info.Format)
	}
}

func sampleWidth(f DataFormat) int {
	switch f {
	case FormatS8:
		return 1
	case FormatS16:
		return 2
	case FormatS32, FormatFloat:
		return 4
	default:
		return 0
	}
}
