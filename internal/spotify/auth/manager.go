package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tessro/verse/internal/observe"
	"github.com/tessro/verse/internal/securestore"
)

// State is the sign-in state of the session.
type State int

const (
	SignedOut State = iota
	Authenticating
	SignedIn
)

func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed out"
	case Authenticating:
		return "authenticating"
	case SignedIn:
		return "signed in"
	default:
		return "unknown"
	}
}

// Manager owns the Spotify OAuth session: the authorization-code flow,
// token refresh, and persistence in a securestore.Store. It is the only
// writer to the store.
type Manager struct {
	cfg    Config
	oauth  *oauth2.Config
	store  securestore.Store
	open   func(url string) error
	client *http.Client
	now    func() time.Time
	log    *log.Logger

	mu           sync.Mutex
	session      *Session
	pendingState string

	state         *observe.Value[State]
	authenticated *observe.Value[bool]
	refresh       singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener sets the function that hands the authorization URL to the
// user's browser.
func WithOpener(open func(url string) error) Option {
	return func(m *Manager) { m.open = open }
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager. If store already holds an access token the
// manager starts SignedIn without validating it; a stale token surfaces as
// a refresh failure on first use.
func NewManager(ctx context.Context, cfg Config, store securestore.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		oauth:  cfg.oauth2(),
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
		log:    log.Default(),
		open: func(string) error {
			return errors.New("no browser opener configured")
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	session, err := loadSession(ctx, store)
	if err != nil {
		m.log.Warn("failed to load stored session", "err", err)
	}
	m.session = session

	initial := SignedOut
	if session != nil {
		initial = SignedIn
	}
	m.state = observe.NewComparable(initial)
	m.authenticated = observe.NewComparable(initial == SignedIn)

	return m
}

// State returns the observable sign-in state.
func (m *Manager) State() observe.Observable[State] {
	return m.state
}

// Authenticated reports true exactly while the state is SignedIn.
func (m *Manager) Authenticated() observe.Observable[bool] {
	return m.authenticated
}

// IsAuthenticated returns the current value of Authenticated.
func (m *Manager) IsAuthenticated() bool {
	return m.authenticated.Get()
}

func (m *Manager) setState(s State) {
	m.state.Set(s)
	m.authenticated.Set(s == SignedIn)
}

// Authenticate builds the authorization URL and hands it to the opener.
// A nil error means only that the hand-off succeeded; sign-in completes
// later through HandleCallback.
func (m *Manager) Authenticate(ctx context.Context) error {
	state := uuid.NewString()

	m.mu.Lock()
	m.pendingState = state
	prev := m.state.Get()
	m.mu.Unlock()

	m.setState(Authenticating)

	authURL := m.cfg.BuildAuthURL(state)
	m.log.Debug("opening authorization URL", "url", authURL)

	if err := m.open(authURL); err != nil {
		m.mu.Lock()
		m.pendingState = ""
		m.mu.Unlock()
		m.setState(prev)
		return fmt.Errorf("failed to open authorization URL: %w", err)
	}
	return nil
}

// AuthURL returns a fresh authorization URL without changing state.
func (m *Manager) AuthURL() string {
	return m.cfg.BuildAuthURL(uuid.NewString())
}

// HandleCallback completes sign-in from the redirect URL. A failed
// callback never signs out an existing session.
func (m *Manager) HandleCallback(ctx context.Context, rawURL string) error {
	result, err := ParseCallback(rawURL, m.cfg.RedirectURI)
	if err != nil {
		m.callbackFailed()
		return err
	}

	m.mu.Lock()
	pending := m.pendingState
	m.mu.Unlock()
	if pending != "" && result.State != "" && result.State != pending {
		m.callbackFailed()
		return fmt.Errorf("%w: state mismatch", ErrInvalidCallback)
	}

	tok, err := m.oauth.Exchange(m.httpContext(ctx), result.Code)
	if err != nil {
		m.callbackFailed()
		return fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}

	session := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt(tok, m.now()),
	}
	if err := m.persist(ctx, session); err != nil {
		m.callbackFailed()
		return fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}

	m.mu.Lock()
	m.pendingState = ""
	m.mu.Unlock()

	m.log.Info("signed in to Spotify")
	m.setState(SignedIn)
	return nil
}

func (m *Manager) callbackFailed() {
	if m.state.Get() != SignedIn {
		m.setState(SignedOut)
	}
}

// RefreshTokenIfNeeded refreshes the access token unless it is still usable
// for at least RefreshSkew. Concurrent callers share a single exchange.
func (m *Manager) RefreshTokenIfNeeded(ctx context.Context) error {
	if m.Session().Usable(m.now()) {
		return nil
	}

	_, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	current := m.Session()
	if current.Usable(m.now()) {
		return nil
	}
	if current == nil || current.RefreshToken == "" {
		if current != nil {
			m.log.Warn("session expired without a refresh token")
			m.SignOut(ctx)
		}
		return ErrNoRefreshToken
	}

	src := m.oauth.TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		if rejected(err) {
			m.log.Warn("refresh token rejected, signing out", "err", err)
			m.SignOut(ctx)
		}
		return fmt.Errorf("%w: %w", ErrTokenRefreshFailed, err)
	}

	session := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt(tok, m.now()),
	}
	if session.RefreshToken == "" {
		session.RefreshToken = current.RefreshToken
	}
	if err := m.persist(ctx, session); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenRefreshFailed, err)
	}

	m.log.Debug("refreshed access token", "expires_at", session.ExpiresAt)
	return nil
}

// persist writes s to the store and then swaps it in as the current
// session, so readers never observe a partially updated session.
func (m *Manager) persist(ctx context.Context, s *Session) error {
	if err := saveSession(ctx, m.store, s); err != nil {
		return err
	}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return nil
}

// SignOut erases every stored key and transitions to SignedOut. Keys that
// are already missing are not an error.
func (m *Manager) SignOut(ctx context.Context) {
	for _, key := range sessionKeys {
		err := m.store.Delete(ctx, key)
		if err != nil && !errors.Is(err, securestore.ErrNotFound) {
			m.log.Warn("failed to delete stored key", "key", key, "err", err)
		}
	}

	m.mu.Lock()
	m.session = nil
	m.pendingState = ""
	m.mu.Unlock()

	m.setState(SignedOut)
}

// Session returns a copy of the current session, or nil when signed out.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// AccessToken returns the current access token without refreshing it.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	s := m.Session()
	if s == nil || s.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	return s.AccessToken, nil
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

// rejected reports whether the token endpoint refused the grant, as opposed
// to being unreachable or failing server-side.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	return re.Response == nil || re.Response.StatusCode < http.StatusInternalServerError
}

// expiresAt computes now + expires_in from the raw token response.
func expiresAt(tok *oauth2.Token, now time.Time) time.Time {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return now.Add(time.Duration(v) * time.Second)
	case string:
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return now
}
