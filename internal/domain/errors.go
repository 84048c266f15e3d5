package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrStorageUnavailable = errors.New("identity storage unavailable")
)
