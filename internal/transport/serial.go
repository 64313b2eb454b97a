package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultSerialBaud is the baud rate of the radio co-processor UART.
const DefaultSerialBaud = 115200

// The read timeout bounds how long readFull waits before re-checking ctx.
const defaultSerialReadTimeout = 300 * time.Millisecond

// SerialTransport carries host link frames over a UART.
type SerialTransport struct {
	portName string
	baudRate int

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	if baudRate <= 0 {
		baudRate = DefaultSerialBaud
	}

	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.portName
}

func (t *SerialTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.port != nil
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("serial", "port", t.portName, "baud", t.baudRate)
	if t.port != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}

	mode := &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(t.portName, mode)
	if err != nil {
		logger.Warn("open failed", "error", err)

		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.port = port
	logger.Info("connected")

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		transportLogger("serial", "port", t.portName).Warn("close failed", "error", err)

		return err
	}

	return nil
}

func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	payload, err := readFrame(func(buf []byte) error {
		return readFull(ctx, port, buf)
	})
	if err != nil {
		transportLogger("serial").Debug("read frame failed", "error", err)

		return nil, err
	}

	return payload, nil
}

func (t *SerialTransport) WriteFrame(ctx context.Context, payload []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFull(ctx, port, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}

	return t.port, nil
}

// readFull fills buf from r. A zero-length read is the port's read timeout
// expiring, so the loop re-checks ctx and keeps waiting.
func readFull(ctx context.Context, r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}
