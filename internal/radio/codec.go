package radio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/skobkin/zwavelink/internal/connectors"
	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/frame"
)

// Host link operations. Requests from the host have the top bit clear,
// reports from the radio have it set.
const (
	opTransmit     byte = 0x01
	opTransmitBeam byte = 0x02
	opRegionChange byte = 0x03
	opTxDone       byte = 0x81
	opRxFrame      byte = 0x82
	opRxBeam       byte = 0x83
	opStatus       byte = 0x84
)

var (
	ErrShortMessage = errors.New("radio: host link message too short")
	ErrUnknownOp    = errors.New("radio: unknown host link operation")
	ErrTxFailed     = errors.New("radio: transmit failed")
	ErrTxTimeout    = errors.New("radio: no transmit done report")
)

// TxStatus is the result byte of a TX done report.
type TxStatus uint8

const (
	TxStatusOK TxStatus = iota
	TxStatusLBTBusy
	TxStatusInvalid
	TxStatusBufferFull
	TxStatusFailed
)

// Err maps the status to the radio errors the data link layer understands.
func (s TxStatus) Err() error {
	switch s {
	case TxStatusOK:
		return nil
	case TxStatusLBTBusy:
		return datalink.ErrRadioBusy
	case TxStatusInvalid:
		return datalink.ErrRadioInvalidArgument
	case TxStatusBufferFull:
		return datalink.ErrRadioBufferFull
	default:
		return fmt.Errorf("status %d: %w", uint8(s), ErrTxFailed)
	}
}

// Event is one decoded report from the radio. Exactly one of the pointer
// fields is set, depending on Op.
type Event struct {
	Op     byte
	TxDone *TxStatus
	Rx     *datalink.RxItem
	Status *connectors.RadioStatus
}

func appendTxParams(b []byte, p datalink.TxParams) []byte {
	b = append(b, byte(p.Speed), p.Channel, byte(p.CRC), p.Preamble, p.PreambleLength, p.StartOfFrame)

	return binary.BigEndian.AppendUint16(b, p.Repeats)
}

// EncodeTransmit builds a transmit request:
// op | params(8) | lbt | txPower | headerLen | header | payload.
func EncodeTransmit(p datalink.TxParams, header, payload []byte, useLBT bool, txPowerDbm int8) ([]byte, error) {
	if len(header) == 0 || len(header) > 0xFF {
		return nil, fmt.Errorf("header length %d: %w", len(header), datalink.ErrRadioInvalidArgument)
	}

	b := make([]byte, 0, 12+len(header)+len(payload))
	b = append(b, opTransmit)
	b = appendTxParams(b, p)
	lbt := byte(0)
	if useLBT {
		lbt = 1
	}
	b = append(b, lbt, byte(txPowerDbm), byte(len(header)))
	b = append(b, header...)

	return append(b, payload...), nil
}

// EncodeBeam builds a beam request: op | params(8) | txPower | beam.
func EncodeBeam(p datalink.TxParams, beam []byte, txPowerDbm int8) ([]byte, error) {
	if len(beam) == 0 {
		return nil, fmt.Errorf("empty beam: %w", datalink.ErrRadioInvalidArgument)
	}

	b := make([]byte, 0, 10+len(beam))
	b = append(b, opTransmitBeam)
	b = appendTxParams(b, p)
	b = append(b, byte(txPowerDbm))

	return append(b, beam...), nil
}

func EncodeRegionChange(region datalink.Region, lr datalink.LRChannelConfig) []byte {
	return []byte{opRegionChange, byte(region), byte(lr)}
}

// Decode parses one report from the radio.
func Decode(msg []byte) (Event, error) {
	if len(msg) == 0 {
		return Event{}, ErrShortMessage
	}

	op, body := msg[0], msg[1:]
	ev := Event{Op: op}
	switch op {
	case opTxDone:
		if len(body) < 1 {
			return Event{}, fmt.Errorf("tx done: %w", ErrShortMessage)
		}
		status := TxStatus(body[0])
		ev.TxDone = &status
	case opRxFrame, opRxBeam:
		item, err := decodeRx(body)
		if err != nil {
			return Event{}, err
		}
		item.Beam = op == opRxBeam
		ev.Rx = &item
	case opStatus:
		if len(body) < 9 {
			return Event{}, fmt.Errorf("status report: %w", ErrShortMessage)
		}
		st := connectors.RadioStatus{
			Mode:       datalink.ProtocolMode(body[0]),
			Region:     datalink.Region(body[1]),
			MinLRPower: int8(body[7]),
			MaxLRPower: int8(body[8]),
			Timestamp:  time.Now(),
		}
		for i := range st.NoiseFloor {
			st.NoiseFloor[i] = int8(body[2+i])
		}
		ev.Status = &st
	default:
		return Event{}, fmt.Errorf("op 0x%02X: %w", op, ErrUnknownOp)
	}

	return ev, nil
}

// decodeRx parses speed | channel | format | rssi | len | bytes.
func decodeRx(body []byte) (datalink.RxItem, error) {
	if len(body) < 5 {
		return datalink.RxItem{}, fmt.Errorf("rx report: %w", ErrShortMessage)
	}
	n := int(body[4])
	if len(body) < 5+n {
		return datalink.RxItem{}, fmt.Errorf("rx report with %d of %d bytes: %w", len(body)-5, n, ErrShortMessage)
	}

	format := frame.HeaderFormat(body[2])
	if format > frame.FormatUndefined {
		format = frame.FormatUndefined
	}
	raw := make([]byte, n)
	copy(raw, body[5:5+n])

	return datalink.RxItem{
		Params: datalink.RxParams{
			Speed:        frame.Speed(body[0]),
			Channel:      body[1],
			HeaderFormat: format,
			RSSI:         int8(body[3]),
		},
		Raw: raw,
	}, nil
}
