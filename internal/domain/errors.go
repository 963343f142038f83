package domain

import "errors"

var (
	// ErrInvalidURL is returned when a URL cannot be parsed into a hostname.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidMinutes is returned when a grant length is outside 1-1440.
	ErrInvalidMinutes = errors.New("invalid number of minutes")

	// ErrInvalidJustification is returned for empty or oversized justifications.
	ErrInvalidJustification = errors.New("invalid justification")

	// ErrInvalidSettings is returned when required settings are missing.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrInvalidCode is returned when an emergency code does not match.
	ErrInvalidCode = errors.New("invalid emergency code")

	// ErrStorage wraps key-value store failures.
	ErrStorage = errors.New("storage unavailable")
)

// Grant limits.
const (
	MinGrantMinutes       = 1
	MaxGrantMinutes       = 1440
	MaxJustificationRunes = 500
)
