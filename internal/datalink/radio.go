package datalink

import (
	"context"
	"errors"

	"github.com/skobkin/zwavelink/internal/frame"
)

var (
	ErrRadioInvalidArgument = errors.New("radio: invalid argument")
	ErrRadioBufferFull      = errors.New("radio: buffer full")
	ErrRadioBusy            = errors.New("radio: channel busy")
)

// CRCType selects the checksum the radio appends on air.
type CRCType uint8

const (
	CRCNone CRCType = iota
	CRC8XOR
	CRC16CCITT
)

const (
	PreambleClassic     byte = 0x55
	PreambleLR          byte = 0x00
	StartOfFrameClassic byte = 0xF0
	StartOfFrameLR      byte = 0x5E
)

// TxParams are the PHY settings of one transmission.
type TxParams struct {
	Speed          frame.Speed
	Channel        uint8
	CRC            CRCType
	Preamble       byte
	PreambleLength uint8
	StartOfFrame   byte
	Repeats        uint16
}

// RxParams describe how a frame was received.
type RxParams struct {
	Speed        frame.Speed
	Channel      uint8
	HeaderFormat frame.HeaderFormat
	RSSI         int8
}

// RSSIInvalid is reported when no RSSI sample is available.
const RSSIInvalid int8 = 127

// Radio is the PHY collaborator the data link layer transmits through.
type Radio interface {
	Transmit(ctx context.Context, params TxParams, header, payload []byte, useLBT bool, txPowerDbm int8) error
	TransmitBeam(ctx context.Context, params TxParams, beam []byte, txPowerDbm int8) error
	ProtocolMode() ProtocolMode
	Region() Region
	ChangeRegion(ctx context.Context, region Region, lr LRChannelConfig) error
	NoiseFloor(channel uint8) int8
	MinMaxLRTxPower() (minDbm, maxDbm int8)
}

// ReturnCode is the data link result of a transmit or filter operation.
type ReturnCode uint8

const (
	Success ReturnCode = iota
	InvalidParameters
	Unsupported
	NoMemory
	Busy
	UnknownError
)

func (c ReturnCode) String() string {
	switch c {
	case Success:
		return "success"
	case InvalidParameters:
		return "invalid_parameters"
	case Unsupported:
		return "unsupported"
	case NoMemory:
		return "no_memory"
	case Busy:
		return "busy"
	default:
		return "unknown_error"
	}
}

// ReturnCodeFromError maps radio errors to a ReturnCode.
func ReturnCodeFromError(err error) ReturnCode {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrRadioInvalidArgument):
		return InvalidParameters
	case errors.Is(err, ErrRadioBufferFull):
		return NoMemory
	case errors.Is(err, ErrRadioBusy):
		return Busy
	default:
		return UnknownError
	}
}
