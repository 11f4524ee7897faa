package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Mutombe/cargo-space/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestPublishKeysByBooking(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := models.BookingEvent{BookingID: "b1", CargoID: "c1", DriverID: "4", Status: models.StatusPaid, At: at}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(fw.msgs) != 1 || string(fw.msgs[0].Key) != "b1" {
		t.Fatalf("unexpected messages %+v", fw.msgs)
	}
	var got models.BookingEvent
	if err := json.Unmarshal(fw.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPaid || got.DriverID != "4" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if err := p.Close(); err != nil || !fw.closed {
		t.Fatalf("writer not closed")
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: boom})
	if err := p.Publish(context.Background(), models.BookingEvent{BookingID: "b1"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestFromBooking(t *testing.T) {
	b := models.Booking{
		ID:             "b1",
		CargoPost:      models.CargoPost{ID: "c1"},
		SelectedDriver: &models.Driver{ID: "1"},
		Status:         models.StatusTracking,
	}
	ev := FromBooking(b)
	if ev.BookingID != "b1" || ev.CargoID != "c1" || ev.DriverID != "1" || ev.Status != models.StatusTracking {
		t.Fatalf("unexpected event %+v", ev)
	}
	var m Memory
	_ = m.Publish(context.Background(), ev)
	if got := m.Events(); len(got) != 1 || got[0] != ev {
		t.Fatalf("memory publisher kept %+v", got)
	}
}
