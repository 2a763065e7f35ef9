package models

import "errors"

// Directory and protocol failures surfaced to callers. Handlers in the
// inbound-message and deferred-job contexts convert these into local
// notifications instead of propagating them further.
var (
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrRemoteFailure       = errors.New("remote directory failure")
	ErrAlreadyPaired       = errors.New("already paired with this code")
	ErrSelfPairing         = errors.New("cannot pair with own code")
	ErrLocationUnavailable = errors.New("no location available")
	ErrContactUnresolved   = errors.New("contact could not be resolved")
	ErrInvalidCoordinates  = errors.New("invalid coordinates in response")
)
