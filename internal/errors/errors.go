package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/spotify/auth"
	"github.com/tessro/verse/internal/spotify/client"
)

// Error types for common failure scenarios.
var (
	ErrNotRunning     = errors.New("verse is not running")
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// VerseError wraps an error with a user-friendly suggestion.
type VerseError struct {
	Err        error
	Suggestion string
}

func (e *VerseError) Error() string {
	return e.Err.Error()
}

func (e *VerseError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &VerseError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	// Check if it's already a VerseError with suggestion
	var verseErr *VerseError
	if errors.As(err, &verseErr) && verseErr.Suggestion != "" {
		return verseErr.Suggestion
	}

	var denied *auth.AuthorizationDeniedError
	errStr := strings.ToLower(err.Error())

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrNoRefreshToken),
		errors.Is(err, auth.ErrTokenRefreshFailed), client.IsUnauthorizedError(err):
		return "Run 'verse auth login' to authenticate with Spotify"

	case errors.As(err, &denied):
		return "Spotify access was declined. Run 'verse auth login' and approve the request"

	case errors.Is(err, auth.ErrInvalidCallback), errors.Is(err, auth.ErrCallbackSchemeMismatch):
		return "Pass the full redirect URL, e.g. 'verse auth callback \"verse://callback?code=...\"'"

	case errors.Is(err, auth.ErrTokenExchangeFailed):
		return "The authorization code may have expired. Run 'verse auth login' again"

	// Local media
	case errors.Is(err, core.ErrAuthorization):
		return "Allow verse to control mpv when prompted, or run 'verse auth reset-local'"

	case errors.Is(err, core.ErrConnectivity):
		return "Start mpv with --input-ipc-server, or set local.mpv_path so verse can launch it"

	// Device errors
	case client.IsNoActiveDeviceError(err) || strings.Contains(errStr, "no active device"):
		return "Open Spotify on a device and start playing"

	case errors.Is(err, coordinator.ErrUnknownSource):
		return "Valid sources are 'local' and 'spotify'"

	// Running instance
	case errors.Is(err, ErrNotRunning) || strings.Contains(errStr, "connection refused"):
		return "Start verse with 'verse run' first"

	// Rate limiting
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429"):
		return "Too many requests. Wait a moment and try again"

	// Network errors
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "timeout"):
		return "Check your internet connection and try again"

	// Config errors
	case errors.Is(err, ErrConfigNotFound) || errors.Is(err, ErrInvalidConfig) || strings.Contains(errStr, "config"):
		return "Check your config file with 'verse config show'"

	// Server errors
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "server error"):
		return "Spotify is having issues. Try again in a moment"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}
