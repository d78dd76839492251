package service

import (
	"context"
	"errors"
	bookingsrepo "roombook/internal/bookings/repository"
	userserrors "roombook/internal/users/errors"
	"roombook/internal/users/repository"
	"roombook/internal/users/validator"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
	"roombook/pkg/sanitizer"
	"roombook/pkg/validation"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type UserService interface {
	Create(ctx context.Context, input *model.UserInput) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.User, int64, error)
	Update(ctx context.Context, actor *model.User, id string, input *model.UserInput) (*model.User, error)
	Delete(ctx context.Context, actor *model.User, id string) error
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	EnsureAdmin(ctx context.Context, username, password, email string) error
}

type userService struct {
	repo      repository.UserRepository
	bookings  bookingsrepo.BookingRepository
	validator *validator.UserValidator
	cfg       *config.Config
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(
	repo repository.UserRepository,
	bookings bookingsrepo.BookingRepository,
	validator *validator.UserValidator,
	cfg *config.Config,
) UserService {
	return &userService{
		repo:      repo,
		bookings:  bookings,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *userService) Create(ctx context.Context, input *model.UserInput) (*model.User, error) {
	sanitize(input)
	if err := s.validator.ValidateCreate(input); err != nil {
		s.cfg.Log.Warn("User validation failed", "username", input.Username, "error", err)
		return nil, apperrors.Validation("User validation failed", validation.Details(err))
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		IsAdmin:      input.IsAdmin,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, s.mapError(err, "Failed to create user", input.Username)
	}

	s.cfg.Log.Info("User created successfully",
		"id", user.ID,
		"username", user.Username,
		"is_admin", user.IsAdmin,
	)
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "Failed to retrieve user", id)
	}
	return user, nil
}

func (s *userService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.User, int64, error) {
	var count int64
	var users []*model.User
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count users", "error", errCount)
			errCount = apperrors.Internal("Failed to count users", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		users, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list users", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve users", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return users, count, nil
}

// Update replaces the user's profile. An empty password keeps the stored hash.
// Renaming carries the user's bookings over to the new username.
func (s *userService) Update(ctx context.Context, actor *model.User, id string, input *model.UserInput) (*model.User, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sanitize(input)
	if err := s.validator.Validate(input); err != nil {
		s.cfg.Log.Warn("User validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("User validation failed", validation.Details(err))
	}

	if actor != nil && actor.ID == current.ID && current.IsAdmin && !input.IsAdmin {
		return nil, apperrors.Conflict("Administrators cannot revoke their own admin rights")
	}

	updated := &model.User{
		ID:           current.ID,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: current.PasswordHash,
		IsAdmin:      input.IsAdmin,
		CreatedAt:    current.CreatedAt,
	}
	if input.Password != "" {
		if updated.PasswordHash, err = s.hash(input.Password); err != nil {
			return nil, err
		}
	}

	var reassigned int64
	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, id, updated); err != nil {
			return s.mapError(err, "Failed to update user", id)
		}
		if updated.Username == current.Username {
			return nil
		}
		n, err := s.bookings.ReassignUser(txCtx, current.Username, updated.Username)
		if err != nil {
			return apperrors.Internal("Failed to move bookings to the new username", err)
		}
		reassigned = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("User updated successfully",
		"id", id,
		"username", updated.Username,
		"previous_username", current.Username,
		"bookings_reassigned", reassigned,
	)
	return updated, nil
}

// Delete refuses to remove the caller's own account or a user who still owns
// bookings that have not ended.
func (s *userService) Delete(ctx context.Context, actor *model.User, id string) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if actor != nil && actor.ID == user.ID {
		return apperrors.Conflict("You cannot delete your own account")
	}

	active, err := s.bookings.CountActiveByUser(ctx, user.Username, s.now())
	if err != nil {
		s.cfg.Log.Error("Failed to count active bookings", "username", user.Username, "error", err)
		return apperrors.Internal("Failed to check bookings of user", err)
	}
	if active > 0 {
		return apperrors.Conflict("User still has upcoming bookings").WithDetails(map[string]any{
			"active_bookings": active,
		})
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapError(err, "Failed to delete user", id)
	}

	s.cfg.Log.Info("User deleted successfully", "id", id, "username", user.Username)
	return nil
}

// Authenticate checks Basic credentials. Unknown users still pay for a bcrypt
// comparison so response time does not reveal which usernames exist.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	username = sanitizer.SanitizeUsername(username)
	if username == "" || password == "" {
		return nil, apperrors.Unauthorized("Invalid credentials")
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userserrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, apperrors.Unauthorized("Invalid credentials")
		}
		s.cfg.Log.Error("Failed to load user for authentication", "username", username, "error", err)
		return nil, apperrors.Unavailable("user store")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized("Invalid credentials")
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator unless the username exists.
func (s *userService) EnsureAdmin(ctx context.Context, username, password, email string) error {
	existing, err := s.repo.FindByUsername(ctx, sanitizer.SanitizeUsername(username))
	if err == nil {
		if !existing.IsAdmin {
			s.cfg.Log.Warn("Bootstrap admin username belongs to a regular user", "username", existing.Username)
		}
		return nil
	}
	if !errors.Is(err, userserrors.ErrNotFound) {
		return s.mapError(err, "Failed to look up bootstrap admin", username)
	}

	_, err = s.Create(ctx, &model.UserInput{
		Username: username,
		Email:    email,
		Password: password,
		IsAdmin:  true,
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			return nil
		}
		return err
	}

	s.cfg.Log.Info("Bootstrap administrator created", "username", username)
	return nil
}

func (s *userService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		s.cfg.Log.Error("Failed to hash password", "error", err)
		return "", apperrors.Internal("Failed to hash password", err)
	}
	return string(hash), nil
}

func (s *userService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("roombook-dummy-password"), s.cfg.BcryptCost)
	})
	return s.dummyHash
}

func (s *userService) mapError(err error, message, ref string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, userserrors.ErrNotFound):
		return apperrors.NotFoundWithID("User", ref)
	case errors.Is(err, userserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid user ID format")
	case errors.Is(err, userserrors.ErrDuplicateUsername):
		return apperrors.Conflict("A user with this username already exists")
	}
	s.cfg.Log.Error(message, "ref", ref, "error", err)
	return apperrors.Internal(message, err)
}

func sanitize(input *model.UserInput) {
	input.Username = sanitizer.SanitizeUsername(input.Username)
	input.Email = sanitizer.SanitizeEmail(input.Email)
}
