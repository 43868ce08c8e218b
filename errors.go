package main

import "errors"

// Failure categories surfaced to callers. Every rejected call wraps one
// of these so the gateway can map it to a distinct response.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
)
