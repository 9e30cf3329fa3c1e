package domain

import "errors"

var (
	ErrValidation     = errors.New("validation error")
	ErrBusinessRule   = errors.New("business rule violation")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrNotImplemented = errors.New("not implemented")
)

// UnitNotFoundError reports a slab id that is absent from the store.
type UnitNotFoundError struct {
	ID string
}

func (e *UnitNotFoundError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "unit not found: " + e.ID
}

func (e *UnitNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
