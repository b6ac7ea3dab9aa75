package repository

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateSnapshot = errors.New("snapshot already exists for user and day")
	ErrUnknownDriver     = errors.New("unknown database driver")
	ErrInvalidLimit      = errors.New("invalid history limit")
)
