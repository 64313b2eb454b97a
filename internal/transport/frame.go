package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"gitee.com/jdhxyy/crc16"
)

var frameHeader = [2]byte{0x94, 0xC3}

const crcLen = 2

// ErrFrameChecksum is returned when a host link frame fails its CRC16 check.
var ErrFrameChecksum = errors.New("host link frame checksum mismatch")

type readFullFunc func(buf []byte) error

// encodeFrame wraps payload as header(2) | len(2 BE) | payload | crc16(2 BE).
// The length counts the payload only.
func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("payload is empty")
	}
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("payload too large: %d", len(payload))
	}

	frame := make([]byte, 4+len(payload)+crcLen)
	frame[0] = frameHeader[0]
	frame[1] = frameHeader[1]
	// #nosec G115 -- length is bounded by math.MaxUint16 above.
	payloadLen := uint16(len(payload))
	binary.BigEndian.PutUint16(frame[2:4], payloadLen)
	copy(frame[4:], payload)
	binary.BigEndian.PutUint16(frame[4+len(payload):], crc16.CheckSum(payload))

	return frame, nil
}

func readFrame(readFull readFullFunc) ([]byte, error) {
	if err := resyncToHeader(readFull); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if err := readFull(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}
	ln := int(binary.BigEndian.Uint16(lenBuf[:]))
	if ln <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", ln)
	}

	buf := make([]byte, ln+crcLen)
	if err := readFull(buf); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	payload := buf[:ln]
	want := binary.BigEndian.Uint16(buf[ln:])
	if got := crc16.CheckSum(payload); got != want {
		return nil, fmt.Errorf("crc %04x, trailer %04x: %w", got, want, ErrFrameChecksum)
	}

	return payload, nil
}

func resyncToHeader(readFull readFullFunc) error {
	buf := make([]byte, 1)
	for {
		if err := readFull(buf); err != nil {
			return fmt.Errorf("read frame header byte 1: %w", err)
		}
		if buf[0] != frameHeader[0] {
			continue
		}
		if err := readFull(buf); err != nil {
			return fmt.Errorf("read frame header byte 2: %w", err)
		}
		if buf[0] == frameHeader[1] {
			return nil
		}
	}
}

func ioReadFullFunc(r io.Reader) readFullFunc {
	return func(buf []byte) error {
		_, err := io.ReadFull(r, buf)

		return err
	}
}
