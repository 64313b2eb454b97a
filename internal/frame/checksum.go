package frame

import (
	"errors"
	"fmt"
)

var ErrChecksum = errors.New("checksum mismatch")

const (
	crc16Init = 0x1D0F
	crc16Poly = 0x1021

	LRCLen   = 1
	CRC16Len = 2
)

// CRC16 is CRC-CCITT with the Z-Wave seed 0x1D0F.
func CRC16(data []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}

	return crc
}

// LRC is the 8 bit longitudinal check used by 9.6k and 40k frames.
func LRC(data []byte) uint8 {
	lrc := uint8(0xFF)
	for _, b := range data {
		lrc ^= b
	}

	return lrc
}

// UsesCRC16 reports whether a frame on channel of the given format is CRC16 protected.
func UsesCRC16(format HeaderFormat, channel uint8) bool {
	if format == Format2CH {
		return channel == 0
	}

	return true
}

// ChecksumLen is the checksum length for the format and channel.
func ChecksumLen(format HeaderFormat, channel uint8) int {
	if UsesCRC16(format, channel) {
		return CRC16Len
	}

	return LRCLen
}

// AppendChecksum appends the checksum of frame to frame.
func AppendChecksum(frame []byte, format HeaderFormat, channel uint8) []byte {
	if UsesCRC16(format, channel) {
		crc := CRC16(frame)
		return append(frame, byte(crc>>8), byte(crc))
	}

	return append(frame, LRC(frame))
}

// VerifyChecksum checks the trailing checksum and returns the frame without it.
func VerifyChecksum(frame []byte, format HeaderFormat, channel uint8) ([]byte, error) {
	n := ChecksumLen(format, channel)
	if len(frame) <= n {
		return nil, fmt.Errorf("checksum: %w", ErrShortFrame)
	}
	body, sum := frame[:len(frame)-n], frame[len(frame)-n:]
	if n == CRC16Len {
		if crc := CRC16(body); byte(crc>>8) != sum[0] || byte(crc) != sum[1] {
			return nil, fmt.Errorf("crc16 %04X: %w", crc, ErrChecksum)
		}

		return body, nil
	}
	if lrc := LRC(body); lrc != sum[0] {
		return nil, fmt.Errorf("lrc %02X: %w", lrc, ErrChecksum)
	}

	return body, nil
}
