package service

import (
	"errors"
	"fmt"

	"github.com/gospotdev/gospot/internal/storage"
)

// The error taxonomy the HTTP edge maps onto status codes. Services
// return these sentinels wrapped with context; handlers test with
// errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientAssets  = errors.New("insufficient assets")
	ErrInsufficientLocked  = errors.New("insufficient locked assets")
	ErrNotFound            = errors.New("not found")
	ErrOwnership           = errors.New("ownership violation")
	ErrIllegalState        = errors.New("illegal state")
	ErrPartialMatch        = errors.New("unsupported partial match")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTransient           = errors.New("transient error")
)

// ValidationError tags a message with the validation sentinel, for
// callers outside this package.
func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// fromStorage lifts driver-level sentinels into the service taxonomy.
// Domain errors already in the taxonomy pass through unchanged.
func fromStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrTransient):
		return errors.Join(ErrTransient, err)
	default:
		return err
	}
}
