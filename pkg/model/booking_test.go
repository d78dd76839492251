package model

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestParseBookingTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("zoneinfo not available: %v", err)
	}

	tests := []struct {
		name    string
		value   string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{
			name:  "empty value is zero time",
			value: "   ",
			loc:   time.UTC,
			want:  time.Time{},
		},
		{
			name:  "rfc3339 with offset ignores location",
			value: "2030-05-01T09:00:00+02:00",
			loc:   time.UTC,
			want:  time.Date(2030, 5, 1, 7, 0, 0, 0, time.UTC),
		},
		{
			name:  "datetime-local without seconds",
			value: "2030-05-01T09:00",
			loc:   berlin,
			want:  time.Date(2030, 5, 1, 9, 0, 0, 0, berlin),
		},
		{
			name:  "datetime-local with seconds",
			value: "2030-05-01T09:00:30",
			loc:   time.UTC,
			want:  time.Date(2030, 5, 1, 9, 0, 30, 0, time.UTC),
		},
		{
			name:  "nil location means utc",
			value: "2030-05-01 09:00",
			loc:   nil,
			want:  time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "garbage",
			value:   "tomorrow at nine",
			loc:     time.UTC,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBookingTime(tt.value, tt.loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBookingTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseBookingTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookingPayload_ToRequest(t *testing.T) {
	p := &BookingPayload{
		RoomID:    " 507f1f77bcf86cd799439011 ",
		StartTime: "2030-05-01T09:00",
		EndTime:   "not-a-date",
		Purpose:   "standup",
	}

	_, err := p.ToRequest(time.UTC)
	perr, ok := err.(*TimeParseError)
	if !ok {
		t.Fatalf("expected *TimeParseError, got %T", err)
	}
	if perr.Field != "end_time" {
		t.Errorf("expected field end_time, got %s", perr.Field)
	}

	p.EndTime = ""
	req, err := p.ToRequest(time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.RoomID != "507f1f77bcf86cd799439011" {
		t.Errorf("room id not trimmed: %q", req.RoomID)
	}
	if !req.EndTime.IsZero() {
		t.Errorf("empty end_time should parse to zero time, got %v", req.EndTime)
	}
}

func TestBookingTimesMatchStoredPrecision(t *testing.T) {
	p := &BookingPayload{
		RoomID:    "507f1f77bcf86cd799439011",
		StartTime: "2030-01-01T10:00:00.123456789Z",
		EndTime:   "2030-01-01T11:00:00.987654321Z",
		Purpose:   "review",
	}
	req, err := p.ToRequest(time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantStart := time.Date(2030, 1, 1, 10, 0, 0, 123000000, time.UTC)
	if !req.StartTime.Equal(wantStart) {
		t.Errorf("start not cut to milliseconds: %v", req.StartTime)
	}

	b := req.ToBooking(time.Date(2030, 1, 1, 9, 0, 0, 555555555, time.UTC))
	raw, err := bson.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var stored Booking
	if err := bson.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !stored.StartTime.Equal(b.StartTime) || !stored.EndTime.Equal(b.EndTime) || !stored.CreatedAt.Equal(b.CreatedAt) {
		t.Errorf("stored times differ from accepted times: stored=%v..%v accepted=%v..%v",
			stored.StartTime, stored.EndTime, b.StartTime, b.EndTime)
	}
}
