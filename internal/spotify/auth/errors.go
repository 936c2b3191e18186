package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCallback means the callback carried neither a code nor an error.
	ErrInvalidCallback = errors.New("invalid OAuth callback")
	// ErrCallbackSchemeMismatch means the callback URL was not for our scheme.
	ErrCallbackSchemeMismatch = errors.New("callback scheme does not match redirect URI")
	// ErrTokenExchangeFailed wraps failures exchanging a code for tokens.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrTokenRefreshFailed wraps failures refreshing an access token.
	ErrTokenRefreshFailed = errors.New("token refresh failed")
	// ErrNoRefreshToken means a refresh was needed but none is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrNotAuthenticated means no access token is stored.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthorizationDeniedError is returned when the callback reports an error,
// typically because the user declined access.
type AuthorizationDeniedError struct {
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}
