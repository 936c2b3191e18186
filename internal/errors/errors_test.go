package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/spotify/auth"
)

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"explicit suggestion", WithSuggestion(errors.New("x"), "do y"), "do y"},
		{"not authenticated", fmt.Errorf("status: %w", auth.ErrNotAuthenticated), "verse auth login"},
		{"refresh failed", auth.ErrTokenRefreshFailed, "verse auth login"},
		{"denied", &auth.AuthorizationDeniedError{Reason: "access_denied"}, "declined"},
		{"invalid callback", auth.ErrInvalidCallback, "full redirect URL"},
		{"local authorization", fmt.Errorf("connect: %w", core.ErrAuthorization), "mpv"},
		{"local connectivity", core.ErrConnectivity, "--input-ipc-server"},
		{"unknown source", fmt.Errorf("%w: tape", coordinator.ErrUnknownSource), "'local'"},
		{"not running", errors.New("dial tcp 127.0.0.1:7878: connect: connection refused"), "verse run"},
		{"rate limited", errors.New("HTTP 429"), "Wait a moment"},
		{"unknown", errors.New("something odd"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetSuggestion(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("GetSuggestion() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("GetSuggestion() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestVerseErrorUnwrap(t *testing.T) {
	err := WithSuggestion(core.ErrConnectivity, "retry")
	if !errors.Is(err, core.ErrConnectivity) {
		t.Error("errors.Is failed through VerseError")
	}
	if err.Error() != core.ErrConnectivity.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestFormat(t *testing.T) {
	if Format(nil) != "" {
		t.Error("Format(nil) should be empty")
	}
	if got := Format(errors.New("plain")); got != "Error: plain" {
		t.Errorf("Format() = %q", got)
	}
	got := Format(WithSuggestion(errors.New("bad"), "fix it"))
	if got != "Error: bad\n\nSuggestion: fix it" {
		t.Errorf("Format() = %q", got)
	}
}
