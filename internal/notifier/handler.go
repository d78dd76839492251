package notifier

import (
	"context"
	"fmt"

	"roombook/pkg/kafka"
	"roombook/pkg/logger"
	"roombook/pkg/model"
)

// Notification is what a user would be told about a booking change.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers notifications. LogSender is the only implementation.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("Booking notification",
		"recipient", n.Recipient,
		"subject", n.Subject,
		"body", n.Body,
	)
	return nil
}

type Handler struct {
	sender Sender
	dedup  Deduper
	log    *logger.Logger
}

func NewHandler(sender Sender, dedup Deduper, log *logger.Logger) *Handler {
	return &Handler{sender: sender, dedup: dedup, log: log}
}

// Handle is a kafka.MessageHandler for booking lifecycle events.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeBookingEvent(msg)
	if err != nil {
		return err
	}

	if id := msg.GetEventID(); id != "" && h.dedup != nil {
		first, err := h.dedup.FirstSeen(ctx, id)
		if err != nil {
			return kafka.NewTransientError("check duplicate event", err)
		}
		if !first {
			h.log.Debug("Skipping duplicate booking event", "event_id", id)
			return nil
		}
	}

	n, ok := Compose(event)
	if !ok {
		h.log.Warn("Ignoring unknown booking event type", "event_type", event.Type, "event_id", msg.GetEventID())
		return nil
	}
	if err := h.sender.Send(ctx, n); err != nil {
		return kafka.NewTransientError("send notification", err)
	}
	return nil
}

const timeLayout = "Mon 2 Jan 2006 15:04 MST"

// Compose renders the notification for event. Unknown event types yield false.
func Compose(event *model.BookingEvent) (Notification, bool) {
	b := event.Booking
	when := fmt.Sprintf("%s to %s", b.StartTime.Format(timeLayout), b.EndTime.Format(timeLayout))

	switch event.Type {
	case model.EventBookingCreated:
		return Notification{
			Recipient: b.UserName,
			Subject:   "Room booked",
			Body:      fmt.Sprintf("Room %s is booked for you %s.", b.RoomID, when),
		}, true
	case model.EventBookingCancelled:
		body := fmt.Sprintf("Your booking of room %s %s was cancelled.", b.RoomID, when)
		if event.Actor != "" && event.Actor != b.UserName {
			body = fmt.Sprintf("Your booking of room %s %s was cancelled by %s.", b.RoomID, when, event.Actor)
		}
		return Notification{
			Recipient: b.UserName,
			Subject:   "Booking cancelled",
			Body:      body,
		}, true
	default:
		return Notification{}, false
	}
}
