package ev3uart

import (
	"encoding/binary"
	"fmt"
)

// decodeFrameLocked dispatches a complete, checksum-valid (or exempt)
// frame to its message-type handler. Called with Port.mu held, from
// the receive context, per spec.md section 4.2.
func (p *Port) decodeFrameLocked(frame []byte) error {
	t, _, cmd := parseHeader(frame[0])
	switch t {
	case MsgSys:
		return p.decodeSysLocked(cmd, frame)
	case MsgCmd:
		return p.decodeCmdLocked(cmd, frame)
	case MsgInfo:
		return p.decodeInfoLocked(cmd, frame)
	case MsgData:
		return p.decodeDataLocked(cmd, frame)
	}
	return nil
}

func (p *Port) decodeSysLocked(cmd byte, frame []byte) error {
	switch cmd {
	case sysSync, sysNack, sysEsc:
		return nil
	case sysAck:
		if p.numModes == 0 {
			return fmt.Errorf("ack received before mode count known")
		}
		if p.infoFlags&Required != Required {
			return fmt.Errorf("ack received before required info complete")
		}
		p.infoDone = true
		p.scheduleAckSendLocked()
		return nil
	}
	return nil
}

func (p *Port) decodeCmdLocked(cmd uint8, frame []byte) error {
	switch cmd {
	case cmdModes:
		if p.infoFlags&FlagCmdModes != 0 {
			return fmt.Errorf("duplicate mode count")
		}
		n := frame[1]
		if n == 0 || uint8(n) > ModeMax {
			return fmt.Errorf("mode count %d out of range", n)
		}
		p.numModes = n + 1
		if len(frame) > 3 {
			p.numViewModes = frame[2] + 1
		} else {
			p.numViewModes = p.numModes
		}
		p.infoFlags |= FlagCmdModes
		return nil
	case cmdSpeed:
		if p.infoFlags&FlagCmdSpeed != 0 {
			return fmt.Errorf("duplicate speed")
		}
		if len(frame) < 6 {
			return fmt.Errorf("speed message too short")
		}
		speed := int(binary.LittleEndian.Uint32(frame[1:5]))
		if speed < SpeedMin || speed > SpeedMax {
			return fmt.Errorf("speed %d out of range", speed)
		}
		p.newBaud = speed
		p.infoFlags |= FlagCmdSpeed
		return nil
	default:
		return fmt.Errorf("unexpected command 0x%02x", cmd)
	}
}

func (p *Port) decodeInfoLocked(mode uint8, frame []byte) error {
	subcmd := frame[1]
	payload := frame[2 : len(frame)-1]

	switch subcmd {
	case infoName:
		p.infoFlags &^= FlagAllInfo
		if len(payload) == 0 || payload[0] < 'A' || payload[0] > 'z' {
			return fmt.Errorf("invalid sensor name")
		}
		name := trimTrailingNulls(payload)
		if len(name) > NameSize {
			return fmt.Errorf("sensor name too long")
		}
		p.modeInfo[mode].Name = name
		p.currentMode = mode
		p.infoFlags |= FlagInfoName
		return nil

	case infoRaw:
		if p.currentMode != mode {
			return fmt.Errorf("info for wrong mode")
		}
		if p.infoFlags&FlagInfoRaw != 0 {
			return fmt.Errorf("duplicate raw range")
		}
		if len(payload) < 8 {
			return fmt.Errorf("raw range message too short")
		}
		copy(p.modeInfo[mode].RawMin[:], payload[0:4])
		copy(p.modeInfo[mode].RawMax[:], payload[4:8])
		p.infoFlags |= FlagInfoRaw
		return nil

	case infoPct:
		if p.currentMode != mode {
			return fmt.Errorf("info for wrong mode")
		}
		if p.infoFlags&FlagInfoPct != 0 {
			return fmt.Errorf("duplicate percent range")
		}
		if len(payload) < 8 {
			return fmt.Errorf("percent range message too short")
		}
		copy(p.modeInfo[mode].PctMin[:], payload[0:4])
		copy(p.modeInfo[mode].PctMax[:], payload[4:8])
		p.infoFlags |= FlagInfoPct
		return nil

	case infoSI:
		if p.currentMode != mode {
			return fmt.Errorf("info for wrong mode")
		}
		if p.infoFlags&FlagInfoSI != 0 {
			return fmt.Errorf("duplicate SI range")
		}
		if len(payload) < 8 {
			return fmt.Errorf("SI range message too short")
		}
		copy(p.modeInfo[mode].SIMin[:], payload[0:4])
		copy(p.modeInfo[mode].SIMax[:], payload[4:8])
		p.infoFlags |= FlagInfoSI
		return nil

	case infoUnits:
		if p.currentMode != mode {
			return fmt.Errorf("info for wrong mode")
		}
		if p.infoFlags&FlagInfoUnits != 0 {
			return fmt.Errorf("duplicate units")
		}
		units := trimTrailingNulls(payload)
		if len(units) > UnitsSize {
			units = units[:UnitsSize]
		}
		p.modeInfo[mode].Units = units
		p.infoFlags |= FlagInfoUnits
		return nil

	case infoFormat:
		if p.currentMode != mode {
			return fmt.Errorf("info for wrong mode")
		}
		if p.infoFlags&FlagInfoFormat != 0 {
			return fmt.Errorf("duplicate format")
		}
		// Set before the Required check below, matching the original
		// driver's test_and_set_bit: Required is tautologically
		// satisfied for this flag once a single well-formed FORMAT
		// frame arrives, so in practice it gates on CmdType|CmdModes|
		// InfoName having already been seen.
		p.infoFlags |= FlagInfoFormat
		if len(payload) < 1 || payload[0] == 0 {
			return fmt.Errorf("invalid number of data sets")
		}
		if len(payload) < 4 {
			return fmt.Errorf("format message too short")
		}
		if p.infoFlags&Required != Required {
			return fmt.Errorf("format received before required info complete")
		}
		p.modeInfo[mode].DataSets = int(payload[0])
		p.modeInfo[mode].Format = DataFormat(payload[1])
		if mode != 0 {
			p.currentMode = mode - 1
			p.modeInfo[mode].Figures = int(payload[2])
			p.modeInfo[mode].Decimals = int(payload[3])
		}
		return nil

	default:
		return nil
	}
}

func (p *Port) decodeDataLocked(mode uint8, frame []byte) error {
	if !p.infoDone {
		return fmt.Errorf("data received before discovery complete")
	}
	payload := frame[1 : len(frame)-1]
	copy(p.modeInfo[mode].RawData[:], payload)
	p.currentMode = mode
	p.dataRecv = true
	if p.dataErrCount > 0 {
		p.dataErrCount--
	}
	return nil
}

// trimTrailingNulls returns the prefix of b up to (not including) its
// first zero byte, matching how the sensor null-pads fixed-width name
// and units fields.
func trimTrailingNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
