package models

import "errors"

// Общая таксономия ошибок. Слои заворачивают их через pkg/errors,
// наружу матчим errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrExternal     = errors.New("external service error")
)
