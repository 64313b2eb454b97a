package transport

import "context"

// Transport is a byte link to the radio co-processor. Every call to WriteFrame
// sends one host link frame and every ReadFrame returns the payload of one
// frame whose CRC16 trailer checked out.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

// StatusTargetResolver is implemented by transports that can describe their
// remote end for status reporting.
type StatusTargetResolver interface {
	StatusTarget() string
}
