package chatsync_errors

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrTransport           = errors.New("transport failure")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrEditWindowExpired   = errors.New("edit window expired")
	ErrDeleteWindowExpired = errors.New("delete window expired")
	ErrAlreadyDeleted      = errors.New("already deleted")
	ErrSessionClosed       = errors.New("session closed")
	ErrTokenExpired        = errors.New("token expired")
)

// Transport wraps err so callers can match it with errors.Is(err, ErrTransport).
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
