package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/connectors"
)

const (
	eventQueueLen     = 64
	eventWriteTimeout = 5 * time.Second
)

var streamTopics = []string{
	connectors.TopicConnStatus,
	connectors.TopicRadioStatus,
	connectors.TopicRxFrame,
	connectors.TopicTxResult,
	connectors.TopicNodeChanged,
	connectors.TopicStats,
}

// eventMessage is one bus event as sent to /events clients.
type eventMessage struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// eventStream forwards bus events to websocket clients as JSON.
// Slow clients lose events instead of stalling publishers.
type eventStream struct {
	bus      bus.MessageBus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newEventStream(b bus.MessageBus, logger *slog.Logger) *eventStream {
	return &eventStream{
		bus:    b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

func (s *eventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("events upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Incoming messages are ignored; a read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	out := make(chan eventMessage, eventQueueLen)
	for _, topic := range streamTopics {
		sub := s.bus.Subscribe(topic)
		go func() {
			defer s.bus.Unsubscribe(sub, topic)
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-sub:
					if !ok {
						return
					}
					select {
					case out <- eventMessage{Topic: topic, At: time.Now(), Data: msg}:
					default:
						s.logger.Debug("events client too slow, event dropped", "topic", topic)
					}
				}
			}
		}()
	}

	s.logger.Info("events client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("events client disconnected", "remote", r.RemoteAddr)
			return
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("events write failed", "error", err)
				return
			}
		}
	}
}
