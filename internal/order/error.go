package order

import "errors"

var (
	ErrValidation    = errors.New("invalid checkout input")
	ErrOrderNotFound = errors.New("order not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCannotCancel  = errors.New("order cannot be cancelled")
	ErrInvalidStatus = errors.New("invalid status transition")
)
