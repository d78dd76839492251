package service

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "roombook/internal/bookings/errors"
	"roombook/internal/bookings/validator"
	roomserrors "roombook/internal/rooms/errors"
	"roombook/pkg/config"
	mongotx "roombook/pkg/db/mongo"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	roomA = "aaaaaaaaaaaaaaaaaaaaaaaa"
	roomB = "bbbbbbbbbbbbbbbbbbbbbbbb"
)

var fixedNow = time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2030, 6, 3, hour, minute, 0, 0, time.UTC)
}

// ────────────────────────────────────────────────
// In-memory booking store
// ────────────────────────────────────────────────

type memoryBookingRepository struct {
	mu        sync.Mutex
	bookings  map[string]*model.Booking
	seq       int
	findErr   error
	createErr error
}

func newMemoryBookingRepository(existing ...*model.Booking) *memoryBookingRepository {
	m := &memoryBookingRepository{bookings: map[string]*model.Booking{}}
	for _, b := range existing {
		m.bookings[b.ID] = b
	}
	return m
}

func (m *memoryBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	booking.ID = fmt.Sprintf("%024d", m.seq)
	m.bookings[booking.ID] = booking
	return nil
}

func (m *memoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(id) != 24 {
		return nil, bookingserrors.ErrInvalidID
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return b, nil
}

func (m *memoryBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return m.all(), nil
}

func (m *memoryBookingRepository) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.bookings)), nil
}

func (m *memoryBookingRepository) FindByRoom(ctx context.Context, roomID string, from, to *time.Time) ([]*model.Booking, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*model.Booking
	for _, b := range m.all() {
		if b.RoomID != roomID {
			continue
		}
		if to != nil && !b.StartTime.Before(*to) {
			continue
		}
		if from != nil && !b.EndTime.After(*from) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memoryBookingRepository) FindByUser(ctx context.Context, username string) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, b := range m.all() {
		if b.UserName == username {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryBookingRepository) CountActiveByUser(ctx context.Context, username string, now time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryBookingRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return bookingserrors.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *memoryBookingRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	return 0, nil
}

func (m *memoryBookingRepository) ReassignUser(ctx context.Context, from, to string) (int64, error) {
	return 0, nil
}

func (m *memoryBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

func (m *memoryBookingRepository) all() []*model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	return out
}

type mockRoomRepository struct {
	rooms map[string]bool
	err   error
}

func (m *mockRoomRepository) Create(ctx context.Context, room *model.Room) error { return nil }

func (m *mockRoomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !m.rooms[id] {
		return nil, roomserrors.ErrNotFound
	}
	return &model.Room{ID: id, Name: "Room " + id[:1], Capacity: 6}, nil
}

func (m *mockRoomRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Room, error) {
	return nil, nil
}

func (m *mockRoomRepository) Count(ctx context.Context) (int64, error) { return 0, nil }

func (m *mockRoomRepository) Update(ctx context.Context, id string, room *model.Room) error {
	return nil
}

func (m *mockRoomRepository) Delete(ctx context.Context, id string) error { return nil }

func (m *mockRoomRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

// mutexLocker holds one mutex per room.
type mutexLocker struct {
	mu    sync.Mutex
	rooms map[string]*sync.Mutex
	err   error
	held  atomic.Int32
}

func (l *mutexLocker) Acquire(ctx context.Context, roomID string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	if l.rooms == nil {
		l.rooms = map[string]*sync.Mutex{}
	}
	m, ok := l.rooms[roomID]
	if !ok {
		m = &sync.Mutex{}
		l.rooms[roomID] = m
	}
	l.mu.Unlock()

	m.Lock()
	l.held.Add(1)
	return func() {
		l.held.Add(-1)
		m.Unlock()
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *model.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type fixture struct {
	svc       BookingService
	repo      *memoryBookingRepository
	rooms     *mockRoomRepository
	locker    *mutexLocker
	publisher *recordingPublisher
}

func newFixture(t *testing.T, existing ...*model.Booking) *fixture {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"})
	cfg := &config.Config{Log: log, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}

	f := &fixture{
		repo:      newMemoryBookingRepository(existing...),
		rooms:     &mockRoomRepository{rooms: map[string]bool{roomA: true, roomB: true}},
		locker:    &mutexLocker{},
		publisher: &recordingPublisher{},
	}
	f.svc = NewBookingService(
		f.repo,
		f.rooms,
		f.locker,
		validator.NewBookingValidator(log),
		f.publisher,
		cfg,
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

var (
	alice = &model.User{ID: "u1", Username: "alice"}
	bob   = &model.User{ID: "u2", Username: "bob"}
	admin = &model.User{ID: "u3", Username: "root", IsAdmin: true}
)

func newRequest(roomID string, start, end time.Time) *model.BookingRequest {
	return &model.BookingRequest{
		RoomID:    roomID,
		StartTime: start,
		EndTime:   end,
		Purpose:   "  design   review ",
	}
}

func existingBooking(id, roomID, owner string, start, end time.Time) *model.Booking {
	return &model.Booking{ID: id, RoomID: roomID, UserName: owner, StartTime: start, EndTime: end, Purpose: "x"}
}

// ────────────────────────────────────────────────
// Create
// ────────────────────────────────────────────────

func TestCreate_Accepted(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(context.Background(), alice, newRequest(roomA, at(10, 0), at(11, 0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID == "" {
		t.Error("expected server-assigned id")
	}
	if b.UserName != "alice" {
		t.Errorf("requester should default to the actor, got %q", b.UserName)
	}
	if b.Purpose != "design review" {
		t.Errorf("purpose should be sanitized, got %q", b.Purpose)
	}
	if !b.CreatedAt.Equal(fixedNow) {
		t.Errorf("created_at should come from the clock, got %v", b.CreatedAt)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != model.EventBookingCreated {
		t.Errorf("expected one booking.created event, got %+v", f.publisher.events)
	}
	if f.locker.held.Load() != 0 {
		t.Error("room lock must be released")
	}
}

func TestCreate_Rejections(t *testing.T) {
	existing := existingBooking("000000000000000000000099", roomA, "bob", at(10, 0), at(11, 0))

	tests := []struct {
		name       string
		req        *model.BookingRequest
		wantCode   string
		wantReason validator.Reason
		wantField  string
	}{
		{
			name:       "missing start",
			req:        newRequest(roomA, time.Time{}, at(11, 0)),
			wantCode:   apperrors.CodeValidation,
			wantReason: validator.ReasonMissingField,
			wantField:  validator.FieldStartTime,
		},
		{
			name: "whitespace purpose",
			req: &model.BookingRequest{
				RoomID: roomA, StartTime: at(12, 0), EndTime: at(13, 0), Purpose: "   ",
			},
			wantCode:   apperrors.CodeValidation,
			wantReason: validator.ReasonMissingField,
			wantField:  validator.FieldPurpose,
		},
		{
			name:       "zero length",
			req:        newRequest(roomA, at(12, 0), at(12, 0)),
			wantCode:   apperrors.CodeValidation,
			wantReason: validator.ReasonInvalidRange,
		},
		{
			name:       "start and end inside one stored millisecond",
			req:        newRequest(roomA, at(12, 0).Add(100*time.Microsecond), at(12, 0).Add(900*time.Microsecond)),
			wantCode:   apperrors.CodeValidation,
			wantReason: validator.ReasonInvalidRange,
		},
		{
			name:       "in the past",
			req:        newRequest(roomA, at(7, 0), at(9, 0)),
			wantCode:   apperrors.CodeValidation,
			wantReason: validator.ReasonInThePast,
		},
		{
			name:       "overlap",
			req:        newRequest(roomA, at(10, 30), at(11, 30)),
			wantCode:   apperrors.CodeConflict,
			wantReason: validator.ReasonConflict,
		},
		{
			name:       "containment",
			req:        newRequest(roomA, at(10, 15), at(10, 45)),
			wantCode:   apperrors.CodeConflict,
			wantReason: validator.ReasonConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, existing)

			_, err := f.svc.Create(context.Background(), alice, tt.req)
			appErr := apperrors.AsAppError(err)
			if appErr.Code != tt.wantCode {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if appErr.Details["reason"] != string(tt.wantReason) {
				t.Errorf("expected reason %s, got %v", tt.wantReason, appErr.Details["reason"])
			}
			if tt.wantField != "" && appErr.Details["field"] != tt.wantField {
				t.Errorf("expected field %s, got %v", tt.wantField, appErr.Details["field"])
			}
			if tt.wantReason == validator.ReasonConflict && appErr.Details["conflicting_booking_id"] != existing.ID {
				t.Errorf("expected conflicting id %s, got %v", existing.ID, appErr.Details["conflicting_booking_id"])
			}
			if len(f.publisher.events) != 0 {
				t.Error("rejected bookings must not publish events")
			}
		})
	}
}

func TestCreate_BackToBackAccepted(t *testing.T) {
	f := newFixture(t, existingBooking("000000000000000000000099", roomA, "bob", at(10, 0), at(11, 0)))

	if _, err := f.svc.Create(context.Background(), alice, newRequest(roomA, at(11, 0), at(12, 0))); err != nil {
		t.Fatalf("back-to-back booking should be accepted: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), alice, newRequest(roomA, at(9, 0), at(10, 0))); err != nil {
		t.Fatalf("back-to-back booking should be accepted: %v", err)
	}
}

func TestCreate_StartEqualToNowAccepted(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), alice, newRequest(roomA, fixedNow, at(9, 0))); err != nil {
		t.Fatalf("start == now should be accepted: %v", err)
	}
}

func TestCreate_Requester(t *testing.T) {
	t.Run("non-admin cannot book for someone else", func(t *testing.T) {
		f := newFixture(t)
		req := newRequest(roomA, at(10, 0), at(11, 0))
		req.UserName = "bob"

		_, err := f.svc.Create(context.Background(), alice, req)
		if !apperrors.HasCode(err, apperrors.CodeForbidden) {
			t.Errorf("expected FORBIDDEN, got %v", err)
		}
	})

	t.Run("admin books for someone else", func(t *testing.T) {
		f := newFixture(t)
		req := newRequest(roomA, at(10, 0), at(11, 0))
		req.UserName = " Bob "

		b, err := f.svc.Create(context.Background(), admin, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b.UserName != "bob" {
			t.Errorf("expected booking owned by bob, got %q", b.UserName)
		}
	})

	t.Run("own username in payload is fine", func(t *testing.T) {
		f := newFixture(t)
		req := newRequest(roomA, at(10, 0), at(11, 0))
		req.UserName = "ALICE"

		if _, err := f.svc.Create(context.Background(), alice, req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("no actor", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(context.Background(), nil, newRequest(roomA, at(10, 0), at(11, 0)))
		if !apperrors.HasCode(err, apperrors.CodeUnauthorized) {
			t.Errorf("expected UNAUTHORIZED, got %v", err)
		}
	})
}

func TestCreate_Failures(t *testing.T) {
	t.Run("unknown room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(context.Background(), alice, newRequest("cccccccccccccccccccccccc", at(10, 0), at(11, 0)))
		if !apperrors.HasCode(err, apperrors.CodeNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("malformed room id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(context.Background(), alice, newRequest("room-1", at(10, 0), at(11, 0)))
		if !apperrors.HasCode(err, apperrors.CodeValidation) {
			t.Errorf("expected VALIDATION_ERROR, got %v", err)
		}
	})

	t.Run("lock timeout is not a conflict", func(t *testing.T) {
		f := newFixture(t)
		f.locker.err = apperrors.Timeout("busy")
		_, err := f.svc.Create(context.Background(), alice, newRequest(roomA, at(10, 0), at(11, 0)))
		if !apperrors.HasCode(err, apperrors.CodeTimeout) {
			t.Errorf("expected TIMEOUT, got %v", err)
		}
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		f := newFixture(t)
		f.repo.findErr = errors.New("connection reset")
		_, err := f.svc.Create(context.Background(), alice, newRequest(roomA, at(10, 0), at(11, 0)))
		if !apperrors.HasCode(err, apperrors.CodeInternal) {
			t.Errorf("expected INTERNAL_ERROR, got %v", err)
		}
		if f.locker.held.Load() != 0 {
			t.Error("room lock must be released on failure")
		}
	})

	t.Run("publish failure does not fail the booking", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.err = errors.New("broker down")
		if _, err := f.svc.Create(context.Background(), alice, newRequest(roomA, at(10, 0), at(11, 0))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestCreate_ConcurrentOverlappingOneRoom(t *testing.T) {
	f := newFixture(t)

	const workers = 25
	var wg sync.WaitGroup
	var accepted, conflicts atomic.Int32
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10, i%30)
			_, err := f.svc.Create(context.Background(), alice, newRequest(roomA, start, start.Add(time.Hour)))
			switch {
			case err == nil:
				accepted.Add(1)
			case apperrors.HasCode(err, apperrors.CodeConflict):
				conflicts.Add(1)
			default:
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if accepted.Load() != 1 {
		t.Errorf("expected exactly one accepted booking, got %d", accepted.Load())
	}
	if conflicts.Load() != workers-1 {
		t.Errorf("expected %d conflicts, got %d", workers-1, conflicts.Load())
	}

	stored, _ := f.repo.FindByRoom(context.Background(), roomA, nil, nil)
	for i := range stored {
		for j := i + 1; j < len(stored); j++ {
			if validator.Overlaps(stored[i].StartTime, stored[i].EndTime, stored[j].StartTime, stored[j].EndTime) {
				t.Fatalf("stored bookings overlap: %+v and %+v", stored[i], stored[j])
			}
		}
	}
}

func TestCreate_DifferentRoomsIndependent(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, room := range []string{roomA, roomB} {
		wg.Add(1)
		go func(i int, room string) {
			defer wg.Done()
			_, results[i] = f.svc.Create(context.Background(), alice, newRequest(room, at(10, 0), at(11, 0)))
		}(i, room)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("room %d: expected accepted, got %v", i, err)
		}
	}
}

// ────────────────────────────────────────────────
// Check
// ────────────────────────────────────────────────

func TestCheck_DryRun(t *testing.T) {
	existing := existingBooking("000000000000000000000099", roomA, "bob", at(10, 0), at(11, 0))
	f := newFixture(t, existing)

	rejection, err := f.svc.Check(context.Background(), alice, newRequest(roomA, at(10, 30), at(11, 30)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection == nil || rejection.Reason != validator.ReasonConflict || rejection.BookingID != existing.ID {
		t.Errorf("expected conflict with %s, got %+v", existing.ID, rejection)
	}

	rejection, err = f.svc.Check(context.Background(), alice, newRequest(roomA, at(11, 0), at(12, 0)))
	if err != nil || rejection != nil {
		t.Errorf("expected acceptance, got %+v / %v", rejection, err)
	}

	count, _ := f.repo.Count(context.Background())
	if count != 1 {
		t.Errorf("check must not store anything, got %d bookings", count)
	}

	rejection, _ = f.svc.Check(context.Background(), alice, newRequest(roomA, at(12, 0), at(11, 0)))
	if rejection == nil || rejection.Reason != validator.ReasonInvalidRange {
		t.Errorf("expected invalid range, got %+v", rejection)
	}
}

// ────────────────────────────────────────────────
// Delete
// ────────────────────────────────────────────────

func TestDelete_Authorization(t *testing.T) {
	const id = "000000000000000000000042"

	tests := []struct {
		name     string
		actor    *model.User
		wantCode string
	}{
		{name: "owner", actor: bob},
		{name: "admin", actor: admin},
		{name: "other user", actor: alice, wantCode: apperrors.CodeForbidden},
		{name: "anonymous", actor: nil, wantCode: apperrors.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, existingBooking(id, roomA, "bob", at(10, 0), at(11, 0)))

			err := f.svc.Delete(context.Background(), tt.actor, id)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, err := f.repo.FindByID(context.Background(), id); !errors.Is(err, bookingserrors.ErrNotFound) {
					t.Error("booking should be gone")
				}
				if len(f.publisher.events) != 1 || f.publisher.events[0].Type != model.EventBookingCancelled {
					t.Errorf("expected booking.cancelled event, got %+v", f.publisher.events)
				}
				return
			}
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if _, err := f.repo.FindByID(context.Background(), id); err != nil {
				t.Error("booking must survive a denied delete")
			}
		})
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Delete(context.Background(), admin, "000000000000000000000404")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	err = f.svc.Delete(context.Background(), admin, "bad")
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

// ────────────────────────────────────────────────
// Listing
// ────────────────────────────────────────────────

func TestListByRoom(t *testing.T) {
	f := newFixture(t,
		existingBooking("000000000000000000000001", roomA, "bob", at(9, 0), at(10, 0)),
		existingBooking("000000000000000000000002", roomA, "bob", at(14, 0), at(15, 0)),
		existingBooking("000000000000000000000003", roomB, "bob", at(9, 0), at(10, 0)),
	)

	all, err := f.svc.ListByRoom(context.Background(), roomA, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 bookings in room A, got %d", len(all))
	}

	from, to := at(13, 0), at(16, 0)
	window, _ := f.svc.ListByRoom(context.Background(), roomA, &from, &to)
	if len(window) != 1 {
		t.Errorf("expected 1 booking in window, got %d", len(window))
	}

	_, err = f.svc.ListByRoom(context.Background(), "cccccccccccccccccccccccc", nil, nil)
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND for unknown room, got %v", err)
	}
}

func TestListByUserAndGetAll(t *testing.T) {
	f := newFixture(t,
		existingBooking("000000000000000000000001", roomA, "bob", at(9, 0), at(10, 0)),
		existingBooking("000000000000000000000002", roomB, "alice", at(9, 0), at(10, 0)),
	)

	mine, err := f.svc.ListByUser(context.Background(), alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mine) != 1 || mine[0].UserName != "alice" {
		t.Errorf("expected alice's booking only, got %+v", mine)
	}

	all, total, err := f.svc.GetAll(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("expected 2 bookings, got %d (total %d)", len(all), total)
	}
}
