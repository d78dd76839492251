package kafka

import (
	"context"
	"fmt"

	"roombook/pkg/model"
)

const (
	BookingEventSource        = "roombook"
	BookingEventSchemaVersion = "1"
)

type publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// BookingEventPublisher writes booking lifecycle events keyed by room, so every
// consumer sees the events of one room in order.
type BookingEventPublisher struct {
	producer publisher
}

func NewBookingEventPublisher(producer *Producer) *BookingEventPublisher {
	return &BookingEventPublisher{producer: producer}
}

func (p *BookingEventPublisher) Publish(ctx context.Context, event *model.BookingEvent) error {
	if event == nil {
		return ErrInvalidMessage
	}
	msg, err := NewMessage().
		WithKey(event.Booking.RoomID).
		WithValue(event).
		WithEventType(event.Type).
		WithSource(BookingEventSource).
		WithSchemaVersion(BookingEventSchemaVersion).
		WithTimestamp(event.OccurredAt).
		Build()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

// DecodeBookingEvent reads a booking event payload. Malformed payloads are permanent failures.
func DecodeBookingEvent(msg Message) (*model.BookingEvent, error) {
	var event model.BookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		return nil, NewPermanentError("decode booking event", err)
	}
	if event.Type == "" {
		event.Type = msg.GetEventType()
	}
	if event.Type == "" {
		return nil, NewPermanentError("decode booking event", fmt.Errorf("missing event type"))
	}
	return &event, nil
}
