package lichess

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("lichess: not found")
	ErrRateLimited = errors.New("lichess: rate limited")
)

// APIError is a non-2xx reply from Lichess.
type APIError struct {
	Status  int
	Path    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lichess %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("lichess %s: status %d: %s", e.Path, e.Status, e.Message)
}

// Unwrap lets errors.Is match ErrNotFound and ErrRateLimited.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	}
	return nil
}
