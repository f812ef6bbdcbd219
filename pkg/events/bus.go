package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/0x0wen/MediLock/pkg/logger"
)

// Sink receives published events
type Sink interface {
	Publish(event Event)
}

// Bus fans events out to registered sinks. Delivery is synchronous and
// best-effort; sinks must not block.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a sink
func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Emit wraps the payload in an envelope and delivers it to every sink
func (b *Bus) Emit(eventType Type, payload interface{}) {
	event := Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		At:      time.Now().UTC(),
		Payload: payload,
	}

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sink := range sinks {
		sink.Publish(event)
	}
}

// LogSink writes each event as a structured log line
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink backed by the given logger
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Publish implements Sink
func (s *LogSink) Publish(event Event) {
	s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"payload":    event.Payload,
	}).Info("Domain event emitted")
}
