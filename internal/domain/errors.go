package domain

import "errors"

var (
	// ErrDuplicate signals that a win with the same URL already exists.
	ErrDuplicate = errors.New("url already submitted")
	// ErrExtraction signals that structured fields could not be extracted from a URL.
	ErrExtraction = errors.New("failed to extract information from url")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a state change does not match the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)
