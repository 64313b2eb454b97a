package transport

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestReadFrameResyncsToHeader(t *testing.T) {
	want := []byte{0x82, 0x02, 0x03}
	encoded, err := encodeFrame(want)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	raw := bytes.NewBuffer(append([]byte{0x00, 0x94, 0x22}, encoded...))

	got, err := readFrame(ioReadFullFunc(raw))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch: got %x want %x", got, want)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	raw := bytes.NewBuffer([]byte{
		frameHeader[0], frameHeader[1],
		0x00, 0x00,
	})

	_, err := readFrame(ioReadFullFunc(raw))
	if err == nil {
		t.Fatalf("expected error for zero-length frame, got nil")
	}
}

func TestReadFrameRejectsBadChecksum(t *testing.T) {
	encoded, err := encodeFrame([]byte{0x81, 0x00})
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	encoded[len(encoded)-1] ^= 0xFF

	_, err = readFrame(ioReadFullFunc(bytes.NewReader(encoded)))
	if !errors.Is(err, ErrFrameChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
}

func TestEncodeFrameRejectsBadSizes(t *testing.T) {
	if _, err := encodeFrame(make([]byte, math.MaxUint16+1)); err == nil {
		t.Fatalf("expected payload size error, got nil")
	}
	if _, err := encodeFrame(nil); err == nil {
		t.Fatalf("expected empty payload error, got nil")
	}
}

func TestEncodeFrameAndReadFrameRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x00, 0x00, 0x55, 0x0A, 0xF0, 0x00, 0x00}
	encoded, err := encodeFrame(payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if len(encoded) != len(payload)+6 {
		t.Fatalf("frame length = %d, want %d", len(encoded), len(payload)+6)
	}

	got, err := readFrame(ioReadFullFunc(bytes.NewReader(encoded)))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %x want %x", got, payload)
	}
}

func TestReadFramePayloadEOF(t *testing.T) {
	raw := bytes.NewBuffer([]byte{
		frameHeader[0], frameHeader[1],
		0x00, 0x04,
		0x01, 0x02,
	})

	_, err := readFrame(ioReadFullFunc(raw))
	if err == nil {
		t.Fatalf("expected payload read error, got nil")
	}
	if errors.Is(err, io.EOF) {
		t.Fatalf("expected wrapped error, got raw io.EOF")
	}
}
