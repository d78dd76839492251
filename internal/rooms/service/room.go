package service

import (
	"context"
	"errors"
	bookingsrepo "roombook/internal/bookings/repository"
	"roombook/internal/roomlock"
	roomserrors "roombook/internal/rooms/errors"
	"roombook/internal/rooms/repository"
	"roombook/internal/rooms/validator"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
	"roombook/pkg/sanitizer"
	"roombook/pkg/validation"
	"sync"
)

type RoomService interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Room, int64, error)
	Update(ctx context.Context, id string, room *model.Room) (*model.Room, error)
	Delete(ctx context.Context, id string) error
}

type roomService struct {
	repo      repository.RoomRepository
	bookings  bookingsrepo.BookingRepository
	locker    roomlock.Locker
	validator *validator.RoomValidator
	cfg       *config.Config
}

func NewRoomService(
	repo repository.RoomRepository,
	bookings bookingsrepo.BookingRepository,
	locker roomlock.Locker,
	validator *validator.RoomValidator,
	cfg *config.Config,
) RoomService {
	return &roomService{
		repo:      repo,
		bookings:  bookings,
		locker:    locker,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *roomService) Create(ctx context.Context, room *model.Room) error {
	s.sanitize(room)
	if err := s.validate(room); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, room); err != nil {
		return s.mapError(err, "Failed to create room", room.Name)
	}

	s.cfg.Log.Info("Room created successfully",
		"id", room.ID,
		"name", room.Name,
		"floor", room.Floor,
		"capacity", room.Capacity,
	)
	return nil
}

func (s *roomService) GetByID(ctx context.Context, id string) (*model.Room, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Room ID cannot be empty")
	}

	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "Failed to retrieve room", id)
	}
	return room, nil
}

func (s *roomService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Room, int64, error) {
	var count int64
	var rooms []*model.Room
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count rooms", "error", errCount)
			errCount = apperrors.Internal("Failed to count rooms", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		rooms, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list rooms", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve rooms", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return rooms, count, nil
}

// Update replaces the editable fields of the room.
func (s *roomService) Update(ctx context.Context, id string, room *model.Room) (*model.Room, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Room ID cannot be empty")
	}

	s.sanitize(room)
	if err := s.validate(room); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, room); err != nil {
		return nil, s.mapError(err, "Failed to update room", id)
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "Failed to retrieve room", id)
	}

	s.cfg.Log.Info("Room updated successfully", "id", id, "name", updated.Name)
	return updated, nil
}

// Delete removes the room together with all of its bookings. It holds the room
// lock so no booking can be committed for the room while it goes away.
func (s *roomService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Room ID cannot be empty")
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	var removed int64
	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Delete(txCtx, id); err != nil {
			return s.mapError(err, "Failed to delete room", id)
		}
		n, err := s.bookings.DeleteByRoom(txCtx, id)
		if err != nil {
			return apperrors.Internal("Failed to delete bookings of room", err)
		}
		removed = n
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to delete room", "id", id, "error", err)
		return err
	}

	s.cfg.Log.Info("Room deleted successfully", "id", id, "bookings_removed", removed)
	return nil
}

func (s *roomService) sanitize(room *model.Room) {
	room.Name = sanitizer.SanitizeText(room.Name)
	room.Features = sanitizer.NormalizeFeatures(room.Features)
}

func (s *roomService) validate(room *model.Room) error {
	if err := s.validator.Validate(room); err != nil {
		s.cfg.Log.Warn("Room validation failed", "name", room.Name, "error", err)
		return apperrors.Validation("Room validation failed", validation.Details(err))
	}
	return nil
}

func (s *roomService) mapError(err error, message, ref string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, roomserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Room", ref)
	case errors.Is(err, roomserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid room ID format")
	case errors.Is(err, roomserrors.ErrDuplicateName):
		return apperrors.Conflict("A room with this name already exists")
	}
	s.cfg.Log.Error(message, "ref", ref, "error", err)
	return apperrors.Internal(message, err)
}
