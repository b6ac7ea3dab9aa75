package config

import "errors"

// Errors returned by Load and Validate; callers match them with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid pixelsync config")
	ErrLoadConfig    = errors.New("loading pixelsync config")
)
