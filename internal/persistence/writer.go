package persistence

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultWriterCapacity = 256
	writeMaxAttempts      = 3
	writeRetryStep        = 300 * time.Millisecond
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue runs database writes one at a time, retrying failed ones.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd
	done   chan struct{}
	step   time.Duration
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = defaultWriterCapacity
	}
	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
		done:   make(chan struct{}),
		step:   writeRetryStep,
	}
}

// Enqueue never blocks the caller. When the queue is full the write is handed
// to a goroutine that waits for room.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	cmd := writeCmd{name: name, fn: fn}
	select {
	case w.queue <- cmd:
	default:
		w.logger.Warn("db write queue full", "cmd", name, "capacity", cap(w.queue))
		go func() { w.queue <- cmd }()
	}
}

// Start processes writes until ctx is done. Writes still queued at that point
// are dropped. Done is closed when the worker exits.
func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				if n := len(w.queue); n > 0 {
					w.logger.Warn("db writes dropped on shutdown", "pending", n)
				}
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
			}
		}
	}()
}

func (w *WriterQueue) Done() <-chan struct{} {
	return w.done
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	for attempt := 1; attempt <= writeMaxAttempts; attempt++ {
		err := cmd.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
		if attempt == writeMaxAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * w.step):
		}
	}
}
