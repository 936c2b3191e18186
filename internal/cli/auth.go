package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tessro/verse/internal/app"
	"github.com/tessro/verse/internal/browser"
	"github.com/tessro/verse/internal/config"
	verrors "github.com/tessro/verse/internal/errors"
	"github.com/tessro/verse/internal/mpv"
	"github.com/tessro/verse/internal/spotify/auth"
	"github.com/tessro/verse/internal/store"
)

const spotifySignInHint = "Finish signing in to Spotify in your browser, then run 'verse auth callback <url>' with the URL it redirects to"

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long:  `Commands for Spotify sign-in and local player access.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Spotify",
	Long: `Opens a browser to sign in to Spotify.

When verse is running, the running instance handles the sign-in and you
finish it with 'verse auth callback'. Otherwise you are asked to paste the
redirect URL here.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored Spotify credentials",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authCallbackCmd = &cobra.Command{
	Use:   "callback <url>",
	Short: "Complete Spotify sign-in",
	Long:  `Passes the Spotify redirect URL to the running instance to finish sign-in.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthCallback,
}

var authResetLocalCmd = &cobra.Command{
	Use:   "reset-local",
	Short: "Forget the local player access decision",
	Long:  `Clears the stored answer to the mpv access prompt so it is asked again on the next run.`,
	Args:  cobra.NoArgs,
	RunE:  runAuthResetLocal,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authCallbackCmd)
	authCmd.AddCommand(authResetLocalCmd)
	rootCmd.AddCommand(authCmd)
}

func requireClientID() error {
	if cfg.Spotify.ClientID == "" {
		return verrors.WithSuggestion(
			errors.New("spotify.client_id not configured"),
			"Set it in your config file or via VERSE_SPOTIFY_CLIENT_ID",
		)
	}
	return nil
}

// newAuthManager builds an in-process session manager over the configured
// token store.
func newAuthManager(ctx context.Context, opts ...auth.Option) (*auth.Manager, error) {
	secrets, err := app.OpenSecrets(cfg)
	if err != nil {
		return nil, err
	}
	// Short-lived commands log to stderr only.
	logger, _, err := newLogger(config.LogConfig{Level: cfg.Log.Level})
	if err != nil {
		return nil, err
	}
	opts = append([]auth.Option{auth.WithLogger(logger.WithPrefix("auth"))}, opts...)
	return auth.NewManager(ctx, app.AuthConfig(cfg), secrets, opts...), nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if err := requireClientID(); err != nil {
		return err
	}

	ctx, cancel := timeoutContext(cmd.Context())
	err := instance().Connect(ctx, "spotify")
	cancel()
	if err == nil {
		return report(cmd, map[string]string{"status": "pending"}, spotifySignInHint)
	}
	if !errors.Is(notRunning(err), verrors.ErrNotRunning) {
		return err
	}

	return loginInProcess(cmd)
}

func loginInProcess(cmd *cobra.Command) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	out := cmd.OutOrStdout()
	mgr, err := newAuthManager(ctx, auth.WithOpener(func(url string) error {
		fmt.Fprintln(out, "Opening browser for Spotify sign-in...")
		if err := browser.Open(url); err != nil {
			fmt.Fprintf(out, "Could not open browser automatically.\nPlease open this URL in your browser:\n\n%s\n\n", url)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	if err := mgr.Authenticate(ctx); err != nil {
		return err
	}

	var redirect string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Paste the URL Spotify redirected to").
				Value(&redirect).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a URL is required")
					}
					return nil
				}),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return fmt.Errorf("sign-in cancelled: %w", err)
	}

	if err := mgr.HandleCallback(ctx, strings.TrimSpace(redirect)); err != nil {
		return err
	}
	return report(cmd, map[string]string{"status": "authenticated"}, "Signed in to Spotify.")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	mgr, err := newAuthManager(ctx)
	if err != nil {
		return err
	}

	if !mgr.IsAuthenticated() {
		return report(cmd, map[string]string{"status": "not_authenticated"}, "Not signed in to Spotify.")
	}

	mgr.SignOut(ctx)
	return report(cmd, map[string]string{"status": "logged_out"}, "Signed out of Spotify.")
}

// AuthStatus is the output of 'verse auth status'.
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	Expired       bool       `json:"expired"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Storage       string     `json:"storage"`
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	mgr, err := newAuthManager(ctx)
	if err != nil {
		return err
	}

	status := AuthStatus{Storage: cfg.Storage.Backend}
	if s := mgr.Session(); s != nil {
		status.Authenticated = true
		status.Expired = !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
		expires := s.ExpiresAt
		status.ExpiresAt = &expires
	}

	if JSONOutput() {
		return printJSON(cmd.OutOrStdout(), status)
	}

	out := cmd.OutOrStdout()
	switch {
	case !status.Authenticated:
		fmt.Fprintln(out, "Not signed in to Spotify.")
		fmt.Fprintln(out, "Run 'verse auth login' to sign in.")
	case status.Expired:
		fmt.Fprintln(out, "Signed in to Spotify; the access token has expired and will be refreshed on next use.")
	default:
		fmt.Fprintln(out, "Signed in to Spotify.")
		fmt.Fprintf(out, "Token expires: %s\n", status.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Token storage: %s\n", status.Storage)
	return nil
}

func runAuthCallback(cmd *cobra.Command, args []string) error {
	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	if err := instance().Callback(ctx, args[0]); err != nil {
		return notRunning(err)
	}
	return report(cmd, map[string]string{"status": "authenticated"}, "Signed in to Spotify.")
}

func runAuthResetLocal(cmd *cobra.Command, args []string) error {
	db, err := store.Open(filepath.Join(cfg.Storage.DataDir, store.DefaultFileName))
	if err != nil {
		return verrors.WithSuggestion(err, "Stop the running verse instance and try again")
	}
	defer func() { _ = db.Close() }()

	if err := db.ClearConsent(mpv.ConsentKey); err != nil {
		return err
	}
	return report(cmd, map[string]string{"status": "reset"}, "Local player access will be asked again on the next run.")
}
