package validator

import (
	"fmt"
	"roombook/pkg/model"
	"strings"
	"time"
)

type Reason string

const (
	ReasonMissingField Reason = "missing_field"
	ReasonInvalidRange Reason = "invalid_range"
	ReasonInThePast    Reason = "in_the_past"
	ReasonConflict     Reason = "conflict"
)

const (
	FieldStartTime = "start_time"
	FieldEndTime   = "end_time"
	FieldPurpose   = "purpose"
	FieldRequester = "user_name"
)

// Rejection explains why a booking request is not admissible.
// Field is set for ReasonMissingField, BookingID for ReasonConflict.
type Rejection struct {
	Reason    Reason `json:"reason"`
	Field     string `json:"field,omitempty"`
	BookingID string `json:"conflicting_booking_id,omitempty"`
}

func (r *Rejection) String() string {
	switch r.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("%s is required", r.Field)
	case ReasonInvalidRange:
		return "start_time must be before end_time"
	case ReasonInThePast:
		return "start_time cannot be in the past"
	case ReasonConflict:
		return fmt.Sprintf("room is already booked for this time (booking %s)", r.BookingID)
	}
	return string(r.Reason)
}

func MissingField(field string) *Rejection {
	return &Rejection{Reason: ReasonMissingField, Field: field}
}

func InvalidRange() *Rejection {
	return &Rejection{Reason: ReasonInvalidRange}
}

func InThePast() *Rejection {
	return &Rejection{Reason: ReasonInThePast}
}

func Conflict(bookingID string) *Rejection {
	return &Rejection{Reason: ReasonConflict, BookingID: bookingID}
}

// Check decides whether candidate may be stored next to the existing bookings
// of its room. It returns nil when the request is accepted.
//
// Rules are applied in order and the first failure is returned: required
// fields, start before end, start not before now, then overlap with any
// existing booking on half-open intervals. existing need not be sorted.
func Check(candidate *model.BookingRequest, existing []*model.Booking, now time.Time) *Rejection {
	switch {
	case candidate.StartTime.IsZero():
		return MissingField(FieldStartTime)
	case candidate.EndTime.IsZero():
		return MissingField(FieldEndTime)
	case strings.TrimSpace(candidate.Purpose) == "":
		return MissingField(FieldPurpose)
	case strings.TrimSpace(candidate.UserName) == "":
		return MissingField(FieldRequester)
	}

	if !candidate.StartTime.Before(candidate.EndTime) {
		return InvalidRange()
	}

	if candidate.StartTime.Before(now) {
		return InThePast()
	}

	for _, b := range existing {
		if b == nil {
			continue
		}
		if Overlaps(candidate.StartTime, candidate.EndTime, b.StartTime, b.EndTime) {
			return Conflict(b.ID)
		}
	}

	return nil
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// CanDelete reports whether actor may delete b: administrators may delete any
// booking, everyone else only their own.
func CanDelete(actor *model.User, b *model.Booking) bool {
	if actor == nil || b == nil {
		return false
	}
	return actor.IsAdmin || actor.Username == b.UserName
}
