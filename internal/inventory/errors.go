package inventory

import "errors"

var (
	ErrAuthFailure      = errors.New("authorisation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTableNotFound    = errors.New("table not found")
	ErrValidation       = errors.New("invalid input")
)
