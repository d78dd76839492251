package service

import (
	"context"
	"errors"
	bookingserrors "roombook/internal/bookings/errors"
	"roombook/internal/bookings/repository"
	"roombook/internal/bookings/validator"
	"roombook/internal/roomlock"
	roomserrors "roombook/internal/rooms/errors"
	roomsrepo "roombook/internal/rooms/repository"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/metrics"
	"roombook/pkg/model"
	"roombook/pkg/sanitizer"
	"roombook/pkg/validation"
	"sync"
	"time"
)

type BookingService interface {
	Create(ctx context.Context, actor *model.User, req *model.BookingRequest) (*model.Booking, error)
	Check(ctx context.Context, actor *model.User, req *model.BookingRequest) (*validator.Rejection, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	ListByRoom(ctx context.Context, roomID string, from, to *time.Time) ([]*model.Booking, error)
	ListByUser(ctx context.Context, actor *model.User) ([]*model.Booking, error)
	Delete(ctx context.Context, actor *model.User, id string) error
}

// EventPublisher announces booking lifecycle changes.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.BookingEvent) error
}

type bookingService struct {
	repo      repository.BookingRepository
	rooms     roomsrepo.RoomRepository
	locker    roomlock.Locker
	validator *validator.BookingValidator
	events    EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

type Option func(*bookingService)

// WithClock replaces time.Now as the source of "now" for the past-start rule.
func WithClock(now func() time.Time) Option {
	return func(s *bookingService) {
		s.now = now
	}
}

func NewBookingService(
	repo repository.BookingRepository,
	rooms roomsrepo.RoomRepository,
	locker roomlock.Locker,
	validator *validator.BookingValidator,
	events EventPublisher,
	cfg *config.Config,
	opts ...Option,
) BookingService {
	s := &bookingService{
		repo:      repo,
		rooms:     rooms,
		locker:    locker,
		validator: validator,
		events:    events,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	return s
}

func (s *bookingService) Create(ctx context.Context, actor *model.User, req *model.BookingRequest) (*model.Booking, error) {
	if err := s.prepare(actor, req); err != nil {
		return nil, err
	}

	// Reject what can be decided without the room's bookings before taking the lock.
	if rejection := validator.Check(req, nil, s.now()); rejection != nil {
		return nil, s.reject(req, rejection)
	}

	release, err := s.locker.Acquire(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	defer release()

	var booking *model.Booking
	var rejection *validator.Rejection
	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		rejection = nil
		if _, err := s.rooms.FindByID(txCtx, req.RoomID); err != nil {
			return mapRoomError(err, req.RoomID)
		}

		existing, err := s.repo.FindByRoom(txCtx, req.RoomID, &req.StartTime, &req.EndTime)
		if err != nil {
			return apperrors.Internal("Failed to check existing bookings", err)
		}

		now := s.now()
		if rejection = validator.Check(req, existing, now); rejection != nil {
			return rejectionError(rejection)
		}

		booking = req.ToBooking(now)
		if err := s.repo.Create(txCtx, booking); err != nil {
			return apperrors.Internal("Failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		if rejection != nil {
			s.recordRejection(req, rejection)
			return nil, err
		}
		s.cfg.Log.Error("Failed to create booking", "room_id", req.RoomID, "error", err)
		return nil, err
	}

	metrics.BookingCreated(booking.RoomID)
	s.publish(ctx, model.EventBookingCreated, booking, actor)

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"room_id", booking.RoomID,
		"user_name", booking.UserName,
		"start_time", booking.StartTime,
		"end_time", booking.EndTime,
	)
	return booking, nil
}

// Check runs the admission rules against the room's current bookings without
// reserving anything. A nil rejection means the request would be accepted now.
func (s *bookingService) Check(ctx context.Context, actor *model.User, req *model.BookingRequest) (*validator.Rejection, error) {
	if err := s.prepare(actor, req); err != nil {
		return nil, err
	}

	if _, err := s.rooms.FindByID(ctx, req.RoomID); err != nil {
		return nil, mapRoomError(err, req.RoomID)
	}

	var existing []*model.Booking
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.Before(req.EndTime) {
		var err error
		existing, err = s.repo.FindByRoom(ctx, req.RoomID, &req.StartTime, &req.EndTime)
		if err != nil {
			s.cfg.Log.Error("Failed to load bookings for check", "room_id", req.RoomID, "error", err)
			return nil, apperrors.Internal("Failed to check existing bookings", err)
		}
	}

	return validator.Check(req, existing, s.now()), nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		s.cfg.Log.Error("Failed to get booking by ID", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) ListByRoom(ctx context.Context, roomID string, from, to *time.Time) ([]*model.Booking, error) {
	if roomID == "" {
		return nil, apperrors.InvalidInput("Room ID cannot be empty")
	}
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		return nil, mapRoomError(err, roomID)
	}

	bookings, err := s.repo.FindByRoom(ctx, roomID, from, to)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings of room", "room_id", roomID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) ListByUser(ctx context.Context, actor *model.User) ([]*model.Booking, error) {
	if actor == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	bookings, err := s.repo.FindByUser(ctx, actor.Username)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings of user", "user_name", actor.Username, "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) Delete(ctx context.Context, actor *model.User, id string) error {
	if actor == nil {
		return apperrors.Unauthorized("Authentication required")
	}

	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !validator.CanDelete(actor, booking) {
		s.cfg.Log.Warn("Booking deletion denied",
			"id", id,
			"actor", actor.Username,
			"owner", booking.UserName,
		)
		return apperrors.Forbidden("Only the owner of a booking or an administrator can delete it")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to delete booking", "id", id, "error", err)
		return apperrors.Internal("Failed to delete booking", err)
	}

	metrics.BookingCancelled(actor.Username != booking.UserName)
	s.publish(ctx, model.EventBookingCancelled, booking, actor)

	s.cfg.Log.Info("Booking deleted successfully",
		"id", id,
		"room_id", booking.RoomID,
		"actor", actor.Username,
	)
	return nil
}

// --- Helpers ---

// prepare normalizes the request and settles who it is for. Only administrators
// may book on behalf of another user.
func (s *bookingService) prepare(actor *model.User, req *model.BookingRequest) error {
	if actor == nil {
		return apperrors.Unauthorized("Authentication required")
	}

	req.Purpose = sanitizer.SanitizeText(req.Purpose)
	req.UserName = sanitizer.SanitizeUsername(req.UserName)
	req.StartTime = req.StartTime.Truncate(model.StoredPrecision)
	req.EndTime = req.EndTime.Truncate(model.StoredPrecision)
	if req.UserName == "" {
		req.UserName = actor.Username
	}
	if req.UserName != actor.Username && !actor.IsAdmin {
		return apperrors.Forbidden("Only administrators can book on behalf of another user")
	}

	if err := s.validator.ValidateRequest(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "room_id", req.RoomID, "error", err)
		return apperrors.Validation("Booking validation failed", validation.Details(err))
	}
	return nil
}

func (s *bookingService) reject(req *model.BookingRequest, rejection *validator.Rejection) error {
	s.recordRejection(req, rejection)
	return rejectionError(rejection)
}

func (s *bookingService) recordRejection(req *model.BookingRequest, rejection *validator.Rejection) {
	metrics.BookingRejected(string(rejection.Reason))
	s.cfg.Log.Info("Booking rejected",
		"room_id", req.RoomID,
		"user_name", req.UserName,
		"reason", rejection.Reason,
		"field", rejection.Field,
		"conflicting_booking_id", rejection.BookingID,
	)
}

func (s *bookingService) publish(ctx context.Context, eventType string, booking *model.Booking, actor *model.User) {
	event := &model.BookingEvent{
		Type:       eventType,
		Booking:    *booking,
		Actor:      actor.Username,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.cfg.Log.Error("Failed to publish booking event",
			"type", eventType,
			"booking_id", booking.ID,
			"error", err,
		)
	}
}

func rejectionError(rejection *validator.Rejection) *apperrors.AppError {
	if rejection.Reason == validator.ReasonConflict {
		return apperrors.Conflict(rejection.String()).WithDetails(map[string]any{
			"reason":                 string(rejection.Reason),
			"conflicting_booking_id": rejection.BookingID,
		})
	}

	details := map[string]any{"reason": string(rejection.Reason)}
	if rejection.Field != "" {
		details["field"] = rejection.Field
	}
	return apperrors.Validation(rejection.String(), details)
}

func mapRoomError(err error, roomID string) error {
	switch {
	case errors.Is(err, roomserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Room", roomID)
	case errors.Is(err, roomserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid room ID format")
	}
	return apperrors.Internal("Failed to retrieve room", err)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *model.BookingEvent) error {
	return nil
}
