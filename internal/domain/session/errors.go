package session

import "errors"

// Session domain errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionTerminal = errors.New("session already completed")
	ErrDuplicateOrder  = errors.New("active session exists for merchant order id")
)
