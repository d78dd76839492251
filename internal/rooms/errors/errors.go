package errors

import "errors"

var (
	// ErrNotFound is returned when a room is not found by ID
	ErrNotFound = errors.New("room not found")

	// ErrInvalidID is returned when an ID format is invalid
	ErrInvalidID = errors.New("invalid room ID format")

	// ErrDuplicateName is returned when another room already uses the name
	ErrDuplicateName = errors.New("room name already exists")
)
