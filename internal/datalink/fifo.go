package datalink

import "context"

// RxFIFOSize is the number of received frames buffered between the radio and the layer.
const RxFIFOSize = 6

// RxItem is one received frame or beam waiting for dispatch.
type RxItem struct {
	Params RxParams
	Raw    []byte
	Beam   bool
}

// RxFIFO is the bounded queue between the radio reader and Layer.Run.
type RxFIFO struct {
	ch    chan RxItem
	stats *counters
}

func newRxFIFO(stats *counters) *RxFIFO {
	return &RxFIFO{ch: make(chan RxItem, RxFIFOSize), stats: stats}
}

// Push enqueues item without blocking. It reports false when the queue is full.
func (q *RxFIFO) Push(item RxItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		q.stats.rxFIFOOverflow.Add(1)
		return false
	}
}

func (q *RxFIFO) Pop(ctx context.Context) (RxItem, error) {
	select {
	case <-ctx.Done():
		return RxItem{}, ctx.Err()
	case item := <-q.ch:
		return item, nil
	}
}

func (q *RxFIFO) TryPop() (RxItem, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
		return RxItem{}, false
	}
}

func (q *RxFIFO) Len() int {
	return len(q.ch)
}
