package model

import (
	"fmt"
	"strings"
	"time"
)

type Booking struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	RoomID    string    `json:"room_id" bson:"room_id" validate:"required,mongodb"`
	UserName  string    `json:"user_name" bson:"user_name" validate:"required,min=3,max=50"`
	StartTime time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Purpose   string    `json:"purpose" bson:"purpose" validate:"required,max=500"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// BookingRequest is a submitted booking after its time fields have been parsed.
// Empty fields are allowed here; the conflict checker reports them.
type BookingRequest struct {
	RoomID    string    `json:"room_id" validate:"required,mongodb"`
	UserName  string    `json:"user_name" validate:"omitempty,min=3,max=50"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Purpose   string    `json:"purpose" validate:"omitempty,max=500"`
}

// BookingPayload is the wire form of a booking submission.
type BookingPayload struct {
	RoomID    string `json:"room_id"`
	UserName  string `json:"user_name,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Purpose   string `json:"purpose"`
}

// StoredPrecision is the resolution of times persisted in Mongo.
const StoredPrecision = time.Millisecond

// ToRequest parses the payload times, reading offset-less values in loc.
// Times are cut to StoredPrecision so validation sees the values that get stored.
func (p *BookingPayload) ToRequest(loc *time.Location) (*BookingRequest, error) {
	start, err := ParseBookingTime(p.StartTime, loc)
	if err != nil {
		return nil, &TimeParseError{Field: "start_time", Value: p.StartTime}
	}
	end, err := ParseBookingTime(p.EndTime, loc)
	if err != nil {
		return nil, &TimeParseError{Field: "end_time", Value: p.EndTime}
	}
	return &BookingRequest{
		RoomID:    strings.TrimSpace(p.RoomID),
		UserName:  p.UserName,
		StartTime: start.Truncate(StoredPrecision),
		EndTime:   end.Truncate(StoredPrecision),
		Purpose:   p.Purpose,
	}, nil
}

// ToBooking builds the record to store for an accepted request.
func (r *BookingRequest) ToBooking(createdAt time.Time) *Booking {
	return &Booking{
		RoomID:    r.RoomID,
		UserName:  r.UserName,
		StartTime: r.StartTime.UTC().Truncate(StoredPrecision),
		EndTime:   r.EndTime.UTC().Truncate(StoredPrecision),
		Purpose:   r.Purpose,
		CreatedAt: createdAt.UTC().Truncate(StoredPrecision),
	}
}

type TimeParseError struct {
	Field string
	Value string
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse %q as a date-time", e.Field, e.Value)
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseBookingTime accepts RFC 3339 instants and the datetime-local forms sent by
// browsers. An empty value yields the zero time and no error.
func ParseBookingTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date-time format: %q", value)
}
