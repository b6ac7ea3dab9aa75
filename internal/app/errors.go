package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrMissingUserID     = errors.New("missing userId")
	ErrUnknownUser       = errors.New("unknown user")
	ErrUsernameNotLinked = errors.New("platform username not set")
	ErrListUsers         = errors.New("failed to list linked users")
)

// Error classes reported on failed results that do not come from the platform.
const (
	// ErrorClassPersistence marks failures raised by the store.
	ErrorClassPersistence = "PersistenceError"
	// ErrorClassCancelled marks users abandoned because the run was cancelled
	// before their counts were fetched.
	ErrorClassCancelled = "Cancelled"
)
