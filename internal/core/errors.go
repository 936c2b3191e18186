package core

import "errors"

var (
	// ErrAuthorization means the user has not granted, or has denied,
	// access to a media backend.
	ErrAuthorization = errors.New("media access not authorized")
	// ErrConnectivity means a backend or service could not be reached.
	ErrConnectivity = errors.New("media backend unreachable")
)
