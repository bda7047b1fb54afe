package store

import "errors"

var (
	// ErrInvalidArgument is returned for empty names and non-positive
	// minute estimates.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a task id is unknown.
	ErrNotFound = errors.New("task not found")
	// ErrOutOfRange is returned for a subtask index outside the task's steps.
	ErrOutOfRange = errors.New("subtask index out of range")
)
