package auth

import (
	"time"

	"golang.org/x/oauth2"
)

const (
	// SpotifyAuthURL is the Spotify authorization endpoint.
	SpotifyAuthURL = "https://accounts.spotify.com/authorize"

	// SpotifyTokenURL is the Spotify token endpoint.
	SpotifyTokenURL = "https://accounts.spotify.com/api/token"

	// DefaultRedirectURI is the registered custom-scheme callback.
	DefaultRedirectURI = "verse://callback"

	// RefreshSkew is how long before expiry a session stops being usable.
	RefreshSkew = 300 * time.Second
)

// DefaultScopes are the Spotify scopes required for verse functionality.
var DefaultScopes = []string{
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
}

// Config holds the OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// AuthURL and TokenURL default to Spotify's endpoints.
	AuthURL  string
	TokenURL string
}

// NewConfig creates a new OAuth configuration with defaults.
func NewConfig(clientID string) Config {
	return Config{
		ClientID:    clientID,
		RedirectURI: DefaultRedirectURI,
		Scopes:      DefaultScopes,
		AuthURL:     SpotifyAuthURL,
		TokenURL:    SpotifyTokenURL,
	}
}

func (c Config) oauth2() *oauth2.Config {
	authURL, tokenURL := c.AuthURL, c.TokenURL
	if authURL == "" {
		authURL = SpotifyAuthURL
	}
	if tokenURL == "" {
		tokenURL = SpotifyTokenURL
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
			// Spotify accepts client_id in the form body, which is what
			// public clients without a secret have to do.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// BuildAuthURL constructs the authorization URL carrying client_id,
// redirect_uri, scope, response_type=code and state.
func (c Config) BuildAuthURL(state string) string {
	return c.oauth2().AuthCodeURL(state)
}
