package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"roombook/pkg/model"
	"time"
)

// RoombookClient calls the booking API as one user.
type RoombookClient struct {
	httpClient *HttpClient
}

func NewRoombookClient(baseURL, username, password string) *RoombookClient {
	httpClient := NewHttpClient(baseURL)
	httpClient.SetBasicAuth(username, password)
	return &RoombookClient{httpClient: httpClient}
}

type Metadata struct {
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int64 `json:"offset"`
}

// CheckResult mirrors the dry-run answer of POST /api/v1/bookings/check.
type CheckResult struct {
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message,omitempty"`
	Rejection *struct {
		Reason    string `json:"reason"`
		Field     string `json:"field,omitempty"`
		BookingID string `json:"conflicting_booking_id,omitempty"`
	} `json:"rejection,omitempty"`
}

func (c *RoombookClient) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	return &user, c.getData(ctx, "/api/v1/users/me", &user)
}

func (c *RoombookClient) ListRooms(ctx context.Context, limit int, offset int64) ([]model.Room, *Metadata, error) {
	var rooms []model.Room
	meta, err := c.getPage(ctx, fmt.Sprintf("/api/v1/rooms?limit=%d&offset=%d", limit, offset), &rooms)
	return rooms, meta, err
}

func (c *RoombookClient) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	return &room, c.getData(ctx, "/api/v1/rooms/id/"+url.PathEscape(id), &room)
}

// ListRoomBookings returns the room's bookings overlapping [from, to). Zero times leave that side open.
func (c *RoombookClient) ListRoomBookings(ctx context.Context, roomID string, from, to time.Time) ([]model.Booking, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}
	path := "/api/v1/rooms/id/" + url.PathEscape(roomID) + "/bookings"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var bookings []model.Booking
	return bookings, c.getData(ctx, path, &bookings)
}

func (c *RoombookClient) MyBookings(ctx context.Context) ([]model.Booking, error) {
	var bookings []model.Booking
	return bookings, c.getData(ctx, "/api/v1/bookings/mine", &bookings)
}

// CreateBooking submits payload. A non-empty idempotencyKey makes retries safe.
func (c *RoombookClient) CreateBooking(ctx context.Context, payload *model.BookingPayload, idempotencyKey string) (*model.Booking, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	resp, err := c.httpClient.POSTWithHeaders(ctx, "/api/v1/bookings", payload, headers)
	if err != nil {
		return nil, err
	}
	var booking model.Booking
	return &booking, decodeData(resp, &booking)
}

func (c *RoombookClient) CheckBooking(ctx context.Context, payload *model.BookingPayload) (*CheckResult, error) {
	resp, err := c.httpClient.POST(ctx, "/api/v1/bookings/check", payload)
	if err != nil {
		return nil, err
	}
	var result CheckResult
	return &result, decodeData(resp, &result)
}

func (c *RoombookClient) CancelBooking(ctx context.Context, id string) error {
	resp, err := c.httpClient.DELETE(ctx, "/api/v1/bookings/id/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	return resp.Err()
}

func (c *RoombookClient) getData(ctx context.Context, path string, target any) error {
	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return err
	}
	return decodeData(resp, target)
}

func (c *RoombookClient) getPage(ctx context.Context, path string, target any) (*Metadata, error) {
	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
		Metadata
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode page: %w", err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return nil, fmt.Errorf("could not decode page data: %w", err)
	}
	return &wrapper.Metadata, nil
}

func decodeData(resp *Response, target any) error {
	if err := resp.Err(); err != nil {
		return err
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return fmt.Errorf("could not decode response data: %w", err)
	}
	return nil
}
