// Package ev3uart implements the framing, discovery, and keep-alive
// state machine for a LEGO EV3-family UART sensor attached to a
// serial line.
package ev3uart

// MsgType is the two-bit message class carried in the header byte's
// top bits.
type MsgType uint8

const (
	MsgSys  MsgType = 0x00
	MsgCmd  MsgType = 0x40
	MsgInfo MsgType = 0x80
	MsgData MsgType = 0xC0

	msgTypeMask = 0xC0
	msgCmdMask  = 0x07
)

// SYS commands.
const (
	sysSync byte = 0x0
	sysNack byte = 0x2
	sysAck  byte = 0x4
	sysEsc  byte = 0x6
)

// CMD commands.
const (
	cmdType   uint8 = 0x0
	cmdModes  uint8 = 0x1
	cmdSpeed  uint8 = 0x2
	cmdSelect uint8 = 0x3
	cmdWrite  uint8 = 0x4
)

// INFO sub-commands.
const (
	infoName   uint8 = 0x00
	infoRaw    uint8 = 0x01
	infoPct    uint8 = 0x02
	infoSI     uint8 = 0x03
	infoUnits  uint8 = 0x04
	infoFormat uint8 = 0x80
)

// DataFormat is the sample encoding named by an INFO_FORMAT frame.
type DataFormat uint8

const (
	FormatS8 DataFormat = iota
	FormatS16
	FormatS32
	FormatFloat
)

// InfoFlags tracks which descriptor pieces the Builder has accepted.
type InfoFlags uint16

const (
	FlagCmdType InfoFlags = 1 << iota
	FlagCmdModes
	FlagCmdSpeed
	FlagInfoName
	FlagInfoRaw
	FlagInfoPct
	FlagInfoSI
	FlagInfoUnits
	FlagInfoFormat

	// FlagAllInfo is cleared wholesale by each INFO_NAME frame.
	FlagAllInfo = FlagInfoName | FlagInfoRaw | FlagInfoPct | FlagInfoSI | FlagInfoUnits | FlagInfoFormat

	// Required is the subset of info_flags the sensor must satisfy
	// before SYS_ACK is honored.
	Required = FlagCmdType | FlagCmdModes | FlagInfoName | FlagInfoFormat
)

// Limits from spec.md section 3 and the original ev3dev line discipline.
const (
	TypeMax       = 124
	TypeUnknown   = 125
	ModeMax       = 7 // modes are indexed 0..ModeMax
	NameSize      = 11
	UnitsSize     = 4
	BufferSize    = 256
	SensorDataSize = 32
	MaxDataErr    = 6

	SpeedMin = 2400
	SpeedMid = 57600
	SpeedMax = 460800

	ackDelay       = 10 // ms, time.Millisecond applied at call sites
	baudChangeDelay = 10
	keepAliveFirst  = 50
	keepAlivePeriod = 100
)

// ev3Color29 is the sensor type with a documented, narrow checksum
// exemption (see Design Note in SPEC_FULL.md section 9).
const ev3Color29 = 29

// rgbRawBadChecksumHeader is the single header byte value the type-29
// color sensor is known to send with a stale checksum in RGB-RAW mode.
const rgbRawBadChecksumHeader = 0xDC

// splitSyncChecksum is a stray checksum byte that can arrive split
// from a preceding SYNC when the IR sensor's two-byte SYNC+checksum
// pair straddles two link reads.
const splitSyncChecksum = 0xFF
