package bus

import (
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

// DefaultCapacity is the per-subscription buffer of New.
const DefaultCapacity = 128

type Subscription chan any

type MessageBus interface {
	Publish(topic string, msg any)
	// TryPublish drops msg for subscribers whose buffer is full.
	TryPublish(topic string, msg any)
	Subscribe(topic string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

func New(logger *slog.Logger) *PubSubBus {
	return NewWithCapacity(logger, DefaultCapacity)
}

func NewWithCapacity(logger *slog.Logger, capacity int) *PubSubBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.Pub(msg, topic)
}

func (b *PubSubBus) TryPublish(topic string, msg any) {
	b.ps.TryPub(msg, topic)
}

func (b *PubSubBus) Subscribe(topic string) Subscription {
	ch := b.ps.Sub(topic)
	b.logger.Debug("subscribe", "topic", topic)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

func (b *PubSubBus) Close() {
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
