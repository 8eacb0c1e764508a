package domain

import "errors"

var (
	// ErrAdapter marks any failed or timed-out external call.
	ErrAdapter = errors.New("adapter error")
	// ErrNotFound marks a lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when a tracked ticket id already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrRunInProgress is returned when a run guard is already held.
	ErrRunInProgress = errors.New("run in progress")
)
