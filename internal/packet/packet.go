// Fixed-layout binary codec for the swarm command/telemetry protocol.
//
// Both packet kinds are little-endian with no padding. A command packet
// is 12 bytes: header (55), hw_id (u16), pos_id (u16), mission (u8),
// state (u8), trigger_time (u32), terminator (66). A telemetry packet is
// 77 bytes: the same leading fields, then lat/lon/alt, NED velocity, yaw
// and battery as float64, a follow byte, and terminator 88.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	CommandHeader     = 55
	CommandTerminator = 66

	TelemetryHeader     = 77
	TelemetryTerminator = 88

	CommandSize   = 12
	TelemetrySize = 77

	// MaxDatagram is the receive buffer size; both layouts fit with room
	// to spare.
	MaxDatagram = 1024
)

// Decode failure modes. Callers drop the datagram on any of these.
var (
	ErrSizeMismatch       = errors.New("packet size mismatch")
	ErrHeaderMismatch     = errors.New("packet header mismatch")
	ErrTerminatorMismatch = errors.New("packet terminator mismatch")
)

// Kind discriminates the two wire layouts.
type Kind uint8

const (
	KindCommand Kind = iota + 1
	KindTelemetry
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindTelemetry:
		return "telemetry"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Packet is a decoded command or telemetry packet. The float fields are
// only meaningful when Kind is KindTelemetry.
type Packet struct {
	Kind        Kind
	HwID        uint16
	PosID       uint16
	Mission     uint8
	State       uint8
	TriggerTime uint32
	Lat         float64
	Lon         float64
	AltMSL      float64
	VelN        float64
	VelE        float64
	VelD        float64
	Yaw         float64
	Battery     float64
	Follow      uint8
}

// Encode serializes p into its fixed wire layout. It is the exact inverse
// of Decode.
func Encode(p Packet) ([]byte, error) {
	switch p.Kind {
	case KindCommand:
		buf := make([]byte, CommandSize)
		buf[0] = CommandHeader
		putCommon(buf, p)
		buf[CommandSize-1] = CommandTerminator
		return buf, nil
	case KindTelemetry:
		buf := make([]byte, TelemetrySize)
		buf[0] = TelemetryHeader
		putCommon(buf, p)
		le := binary.LittleEndian
		le.PutUint64(buf[11:19], math.Float64bits(p.Lat))
		le.PutUint64(buf[19:27], math.Float64bits(p.Lon))
		le.PutUint64(buf[27:35], math.Float64bits(p.AltMSL))
		le.PutUint64(buf[35:43], math.Float64bits(p.VelN))
		le.PutUint64(buf[43:51], math.Float64bits(p.VelE))
		le.PutUint64(buf[51:59], math.Float64bits(p.VelD))
		le.PutUint64(buf[59:67], math.Float64bits(p.Yaw))
		le.PutUint64(buf[67:75], math.Float64bits(p.Battery))
		buf[75] = p.Follow
		buf[TelemetrySize-1] = TelemetryTerminator
		return buf, nil
	}
	return nil, fmt.Errorf("encode: unknown packet kind %d", p.Kind)
}

func putCommon(buf []byte, p Packet) {
	le := binary.LittleEndian
	le.PutUint16(buf[1:3], p.HwID)
	le.PutUint16(buf[3:5], p.PosID)
	buf[5] = p.Mission
	buf[6] = p.State
	le.PutUint32(buf[7:11], p.TriggerTime)
}

// Decode parses a single datagram. The header byte selects the layout;
// the buffer must then match that layout's exact size and terminator.
func Decode(buf []byte) (Packet, error) {
	if len(buf) == 0 {
		return Packet{}, fmt.Errorf("%w: empty buffer", ErrSizeMismatch)
	}
	switch buf[0] {
	case CommandHeader:
		if len(buf) != CommandSize {
			return Packet{}, fmt.Errorf("%w: command packet has %d bytes, want %d", ErrSizeMismatch, len(buf), CommandSize)
		}
		if buf[CommandSize-1] != CommandTerminator {
			return Packet{}, fmt.Errorf("%w: got %d, want %d", ErrTerminatorMismatch, buf[CommandSize-1], CommandTerminator)
		}
		p := Packet{Kind: KindCommand}
		getCommon(buf, &p)
		return p, nil
	case TelemetryHeader:
		if len(buf) != TelemetrySize {
			return Packet{}, fmt.Errorf("%w: telemetry packet has %d bytes, want %d", ErrSizeMismatch, len(buf), TelemetrySize)
		}
		if buf[TelemetrySize-1] != TelemetryTerminator {
			return Packet{}, fmt.Errorf("%w: got %d, want %d", ErrTerminatorMismatch, buf[TelemetrySize-1], TelemetryTerminator)
		}
		p := Packet{Kind: KindTelemetry}
		getCommon(buf, &p)
		le := binary.LittleEndian
		p.Lat = math.Float64frombits(le.Uint64(buf[11:19]))
		p.Lon = math.Float64frombits(le.Uint64(buf[19:27]))
		p.AltMSL = math.Float64frombits(le.Uint64(buf[27:35]))
		p.VelN = math.Float64frombits(le.Uint64(buf[35:43]))
		p.VelE = math.Float64frombits(le.Uint64(buf[43:51]))
		p.VelD = math.Float64frombits(le.Uint64(buf[51:59]))
		p.Yaw = math.Float64frombits(le.Uint64(buf[59:67]))
		p.Battery = math.Float64frombits(le.Uint64(buf[67:75]))
		p.Follow = buf[75]
		return p, nil
	}
	return Packet{}, fmt.Errorf("%w: first byte %d is neither %d nor %d", ErrHeaderMismatch, buf[0], CommandHeader, TelemetryHeader)
}

func getCommon(buf []byte, p *Packet) {
	le := binary.LittleEndian
	p.HwID = le.Uint16(buf[1:3])
	p.PosID = le.Uint16(buf[3:5])
	p.Mission = buf[5]
	p.State = buf[6]
	p.TriggerTime = le.Uint32(buf[7:11])
}
