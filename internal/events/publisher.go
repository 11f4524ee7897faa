// Package events publishes booking lifecycle changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Mutombe/cargo-space/internal/models"
	"github.com/Mutombe/cargo-space/internal/observability"
)

const DefaultTopic = "booking-events"

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, ev models.BookingEvent) error
	Close() error
}

// KafkaPublisher writes one JSON message per event, keyed by booking ID so a
// booking's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 2 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.BookingEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		observability.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("encode booking event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.BookingID), Value: b, Time: ev.At})
	observability.EventsPublished.WithLabelValues(observability.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("write booking event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Memory keeps published events in order. It backs the service when no
// brokers are configured.
type Memory struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (m *Memory) Publish(_ context.Context, ev models.BookingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	observability.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Events() []models.BookingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.BookingEvent(nil), m.events...)
}

// FromBooking builds the event for a booking's current status. Tracking
// events carry the driver's starting position.
func FromBooking(b models.Booking) models.BookingEvent {
	ev := models.BookingEvent{
		BookingID: b.ID,
		CargoID:   b.CargoPost.ID,
		Status:    b.Status,
		At:        b.UpdatedAt,
	}
	if b.SelectedDriver != nil {
		ev.DriverID = b.SelectedDriver.ID
		if b.Status == models.StatusTracking {
			at := b.SelectedDriver.Loc
			ev.Position = &at
		}
	}
	return ev
}
