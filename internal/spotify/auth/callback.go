package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// CallbackResult contains the query parameters of an OAuth callback.
type CallbackResult struct {
	Code  string
	State string
	Error string
}

// ParseCallback validates rawURL against redirectURI and extracts the
// callback parameters. An error parameter takes precedence over a code.
func ParseCallback(rawURL, redirectURI string) (CallbackResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	want, err := url.Parse(redirectURI)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	if !strings.EqualFold(u.Scheme, want.Scheme) {
		return CallbackResult{}, fmt.Errorf("%w: got %q, want %q", ErrCallbackSchemeMismatch, u.Scheme, want.Scheme)
	}

	query := u.Query()
	result := CallbackResult{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	if result.Error != "" {
		return result, &AuthorizationDeniedError{Reason: result.Error}
	}
	if result.Code == "" {
		return result, ErrInvalidCallback
	}
	return result, nil
}
