package leetcode

import (
	"errors"
	"fmt"
)

// Kind tags the reason a fetch failed.
type Kind string

// Fetch failure kinds.
const (
	KindMissingUsername   Kind = "missing_username"
	KindNetworkOrTimeout  Kind = "network_or_timeout"
	KindRateLimited       Kind = "rate_limited"
	KindServerError       Kind = "server_error"
	KindMalformedResponse Kind = "malformed_response"
	KindUserNotFound      Kind = "user_not_found"
)

// Class groups kinds the way callers react to them.
type Class string

// Error classes.
const (
	ClassInput             Class = "InputError"
	ClassTransientExternal Class = "TransientExternalError"
	ClassPermanentExternal Class = "PermanentExternalError"
)

// Messages used when the platform does not supply one.
const (
	msgMissingUsername = "missing platform username"
	msgUnreachable     = "failed to reach platform"
	msgPlatformErrors  = "platform returned errors"
	msgUserNotFound    = "user not found"
	msgMalformedBody   = "malformed platform response"
)

// ErrFetch matches any *FetchError with errors.Is.
var ErrFetch = errors.New("stats fetch failed")

// FetchError is the only error type returned by Client.FetchStats.
type FetchError struct {
	Kind      Kind
	Message   string
	Status    int // HTTP status when one was received, 0 otherwise
	Retryable bool
	// RetryAfter is a non-negative seconds hint, nil when the platform gave none.
	RetryAfter *int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetch) succeed for every fetch failure.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Class maps the failure kind to its error class.
func (e *FetchError) Class() Class {
	switch e.Kind {
	case KindMissingUsername:
		return ClassInput
	case KindNetworkOrTimeout, KindRateLimited:
		return ClassTransientExternal
	case KindServerError:
		if e.Retryable {
			return ClassTransientExternal
		}
		return ClassPermanentExternal
	default:
		return ClassPermanentExternal
	}
}

// MissingUsername is the input failure for an empty username.
func MissingUsername() *FetchError {
	return &FetchError{Kind: KindMissingUsername, Message: msgMissingUsername}
}

// AsFetchError unwraps err into a *FetchError.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
