package service

import (
	"context"
	"errors"
	roomserrors "roombook/internal/rooms/errors"
	"roombook/internal/rooms/validator"
	"roombook/pkg/config"
	mongotx "roombook/pkg/db/mongo"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"
	"testing"
	"time"
)

// ────────────────────────────────────────────────
// Mocks
// ────────────────────────────────────────────────

type mockRoomRepository struct {
	createFunc   func(ctx context.Context, room *model.Room) error
	findByIDFunc func(ctx context.Context, id string) (*model.Room, error)
	findAllFunc  func(ctx context.Context, limit int, offset int64) ([]*model.Room, error)
	countFunc    func(ctx context.Context) (int64, error)
	updateFunc   func(ctx context.Context, id string, room *model.Room) error
	deleteFunc   func(ctx context.Context, id string) error
	txCalls      int
}

func (m *mockRoomRepository) Create(ctx context.Context, room *model.Room) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, room)
	}
	room.ID = "507f1f77bcf86cd799439011"
	return nil
}

func (m *mockRoomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.Room{ID: id, Name: "Atlas", Capacity: 4}, nil
}

func (m *mockRoomRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Room, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Room{}, nil
}

func (m *mockRoomRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockRoomRepository) Update(ctx context.Context, id string, room *model.Room) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, room)
	}
	return nil
}

func (m *mockRoomRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockRoomRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	m.txCalls++
	return fn(ctx)
}

type mockBookingRepository struct {
	deleteByRoomFunc func(ctx context.Context, roomID string) (int64, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) FindByRoom(ctx context.Context, roomID string, from, to *time.Time) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) FindByUser(ctx context.Context, username string) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingRepository) CountActiveByUser(ctx context.Context, username string, now time.Time) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *mockBookingRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	if m.deleteByRoomFunc != nil {
		return m.deleteByRoomFunc(ctx, roomID)
	}
	return 0, nil
}

func (m *mockBookingRepository) ReassignUser(ctx context.Context, from, to string) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type mockLocker struct {
	acquireErr error
	acquired   []string
	released   int
}

func (m *mockLocker) Acquire(ctx context.Context, roomID string) (func(), error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired = append(m.acquired, roomID)
	return func() { m.released++ }, nil
}

func newTestService(rooms *mockRoomRepository, bookings *mockBookingRepository, locker *mockLocker) RoomService {
	log := logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"})
	cfg := &config.Config{Log: log, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	return NewRoomService(rooms, bookings, locker, validator.NewRoomValidator(log), cfg)
}

// ────────────────────────────────────────────────
// Tests
// ────────────────────────────────────────────────

func TestCreate_SanitizesAndValidates(t *testing.T) {
	var stored *model.Room
	rooms := &mockRoomRepository{
		createFunc: func(ctx context.Context, room *model.Room) error {
			stored = room
			room.ID = "507f1f77bcf86cd799439011"
			return nil
		},
	}
	svc := newTestService(rooms, &mockBookingRepository{}, &mockLocker{})

	room := &model.Room{
		Name:     "  Board   Room ",
		Floor:    -1,
		Capacity: 12,
		Features: []string{"Projector", " projector", "Video  Conference", ""},
	}
	if err := svc.Create(context.Background(), room); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stored.Name != "Board Room" {
		t.Errorf("expected sanitized name, got %q", stored.Name)
	}
	if len(stored.Features) != 2 || stored.Features[0] != "projector" || stored.Features[1] != "video conference" {
		t.Errorf("unexpected features: %v", stored.Features)
	}
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		room     *model.Room
		repoErr  error
		wantCode string
	}{
		{
			name:     "invalid capacity",
			room:     &model.Room{Name: "Atlas", Capacity: 0},
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "duplicate name",
			room:     &model.Room{Name: "Atlas", Capacity: 4},
			repoErr:  roomserrors.ErrDuplicateName,
			wantCode: apperrors.CodeConflict,
		},
		{
			name:     "storage failure",
			room:     &model.Room{Name: "Atlas", Capacity: 4},
			repoErr:  errors.New("connection reset"),
			wantCode: apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := &mockRoomRepository{
				createFunc: func(ctx context.Context, room *model.Room) error { return tt.repoErr },
			}
			svc := newTestService(rooms, &mockBookingRepository{}, &mockLocker{})

			err := svc.Create(context.Background(), tt.room)
			if !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestGetByID_NotFound(t *testing.T) {
	rooms := &mockRoomRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Room, error) {
			return nil, roomserrors.ErrNotFound
		},
	}
	svc := newTestService(rooms, &mockBookingRepository{}, &mockLocker{})

	_, err := svc.GetByID(context.Background(), "507f1f77bcf86cd799439011")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetAll(t *testing.T) {
	rooms := &mockRoomRepository{
		countFunc: func(ctx context.Context) (int64, error) { return 3, nil },
		findAllFunc: func(ctx context.Context, limit int, offset int64) ([]*model.Room, error) {
			if limit != 2 || offset != 1 {
				t.Errorf("unexpected paging %d/%d", limit, offset)
			}
			return []*model.Room{{ID: "a"}, {ID: "b"}}, nil
		},
	}
	svc := newTestService(rooms, &mockBookingRepository{}, &mockLocker{})

	list, total, err := svc.GetAll(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Errorf("expected 2 of 3 rooms, got %d of %d", len(list), total)
	}
}

func TestDelete_CascadesUnderRoomLock(t *testing.T) {
	var deletedRoom, cascadedRoom string
	rooms := &mockRoomRepository{
		deleteFunc: func(ctx context.Context, id string) error {
			deletedRoom = id
			return nil
		},
	}
	bookings := &mockBookingRepository{
		deleteByRoomFunc: func(ctx context.Context, roomID string) (int64, error) {
			cascadedRoom = roomID
			return 4, nil
		},
	}
	locker := &mockLocker{}
	svc := newTestService(rooms, bookings, locker)

	id := "507f1f77bcf86cd799439011"
	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deletedRoom != id || cascadedRoom != id {
		t.Errorf("expected room and its bookings deleted, got room=%q bookings=%q", deletedRoom, cascadedRoom)
	}
	if rooms.txCalls != 1 {
		t.Errorf("expected a single transaction, got %d", rooms.txCalls)
	}
	if len(locker.acquired) != 1 || locker.acquired[0] != id || locker.released != 1 {
		t.Errorf("expected lock on %s acquired and released once, got %v/%d", id, locker.acquired, locker.released)
	}
}

func TestDelete_LockTimeout(t *testing.T) {
	locker := &mockLocker{acquireErr: apperrors.Timeout("busy")}
	rooms := &mockRoomRepository{
		deleteFunc: func(ctx context.Context, id string) error {
			t.Fatal("room must not be deleted without the lock")
			return nil
		},
	}
	svc := newTestService(rooms, &mockBookingRepository{}, locker)

	err := svc.Delete(context.Background(), "507f1f77bcf86cd799439011")
	if !apperrors.HasCode(err, apperrors.CodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
}

func TestDelete_CascadeFailureAborts(t *testing.T) {
	bookings := &mockBookingRepository{
		deleteByRoomFunc: func(ctx context.Context, roomID string) (int64, error) {
			return 0, errors.New("write conflict")
		},
	}
	svc := newTestService(&mockRoomRepository{}, bookings, &mockLocker{})

	err := svc.Delete(context.Background(), "507f1f77bcf86cd799439011")
	if !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestUpdate_ReturnsStoredRoom(t *testing.T) {
	var updated *model.Room
	rooms := &mockRoomRepository{
		updateFunc: func(ctx context.Context, id string, room *model.Room) error {
			updated = room
			return nil
		},
		findByIDFunc: func(ctx context.Context, id string) (*model.Room, error) {
			return &model.Room{ID: id, Name: updated.Name, Capacity: updated.Capacity}, nil
		},
	}
	svc := newTestService(rooms, &mockBookingRepository{}, &mockLocker{})

	got, err := svc.Update(context.Background(), "507f1f77bcf86cd799439011", &model.Room{Name: " Nova ", Capacity: 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Nova" || got.Capacity != 6 {
		t.Errorf("unexpected room: %+v", got)
	}
}
