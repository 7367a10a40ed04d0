package ev3uart

import "math"

// ModeInfo is the per-mode descriptor collected during discovery.
// Range fields are stored exactly as received, 4 raw bytes apiece,
// and decoded on demand (see SPEC_FULL.md section 9, "Raw float
// bytes") because the wire layout is little-endian IEEE-754
// regardless of host byte order.
type ModeInfo struct {
	Name    string
	RawMin  [4]byte
	RawMax  [4]byte
	PctMin  [4]byte
	PctMax  [4]byte
	SIMin   [4]byte
	SIMax   [4]byte
	Units   string
	DataSets int
	Format  DataFormat
	Figures int
	Decimals int
	RawData [SensorDataSize]byte
}

// defaultModeInfo mirrors legoev3_uart_default_mode_info: raw_max =
// 1023.0, pct_max = 100.0, si_max = 1.0, figures = 4, everything else
// zero.
func defaultModeInfo() ModeInfo {
	var m ModeInfo
	m.RawMax = floatBytes(1023.0)
	m.PctMax = floatBytes(100.0)
	m.SIMax = floatBytes(1.0)
	m.Figures = 4
	return m
}

func floatBytes(f float32) [4]byte {
	u := math.Float32bits(f)
	return [4]byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func bytesToFloat(b [4]byte) float32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(u)
}

// RawMinF returns the raw-scaling minimum as a float32.
func (m ModeInfo) RawMinF() float32 { return bytesToFloat(m.RawMin) }

// RawMaxF returns the raw-scaling maximum as a float32.
func (m ModeInfo) RawMaxF() float32 { return bytesToFloat(m.RawMax) }

// PctMinF returns the percent-scaling minimum as a float32.
func (m ModeInfo) PctMinF() float32 { return bytesToFloat(m.PctMin) }

// PctMaxF returns the percent-scaling maximum as a float32.
func (m ModeInfo) PctMaxF() float32 { return bytesToFloat(m.PctMax) }

// SIMinF returns the SI-scaling minimum as a float32.
func (m ModeInfo) SIMinF() float32 { return bytesToFloat(m.SIMin) }

// SIMaxF returns the SI-scaling maximum as a float32.
func (m ModeInfo) SIMaxF() float32 { return bytesToFloat(m.SIMax) }
