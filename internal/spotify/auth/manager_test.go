package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tessro/verse/internal/securestore"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tokenServer is a fake token endpoint that records the forms it receives.
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	forms    []url.Values
	requests atomic.Int32

	status   int
	response map[string]any
	gate     chan struct{}
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		status: http.StatusOK,
		response: map[string]any{
			"access_token":  "new_access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "new_refresh",
		},
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		ts.requests.Add(1)
		ts.mu.Lock()
		ts.forms = append(ts.forms, r.PostForm)
		gate := ts.gate
		status, response := ts.status, ts.response
		ts.mu.Unlock()

		if gate != nil {
			<-gate
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) lastForm() url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.forms) == 0 {
		return nil
	}
	return ts.forms[len(ts.forms)-1]
}

func newTestManager(t *testing.T, ts *tokenServer, store securestore.Store, opts ...Option) *Manager {
	t.Helper()
	cfg := NewConfig("client_123")
	if ts != nil {
		cfg.TokenURL = ts.URL
	}
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithOpener(func(string) error { return nil }),
	}, opts...)
	return NewManager(context.Background(), cfg, store, opts...)
}

func seedSession(t *testing.T, store securestore.Store, access, refresh string, expires time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := store.Save(ctx, securestore.KeyAccessToken, access); err != nil {
		t.Fatal(err)
	}
	if refresh != "" {
		if err := store.Save(ctx, securestore.KeyRefreshToken, refresh); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Save(ctx, securestore.KeyTokenExpiry, strconv.FormatInt(expires.Unix(), 10)); err != nil {
		t.Fatal(err)
	}
}

func TestNewManagerInitialState(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		m := newTestManager(t, nil, securestore.NewMemoryStore())
		if got := m.State().Get(); got != SignedOut {
			t.Errorf("State() = %v, want SignedOut", got)
		}
		if m.IsAuthenticated() {
			t.Error("IsAuthenticated() = true, want false")
		}
	})

	t.Run("stored token is trusted", func(t *testing.T) {
		store := securestore.NewMemoryStore()
		// Long expired; the manager must not validate it at startup.
		seedSession(t, store, "old_access", "old_refresh", testNow.Add(-24*time.Hour))

		m := newTestManager(t, nil, store)
		if got := m.State().Get(); got != SignedIn {
			t.Errorf("State() = %v, want SignedIn", got)
		}
		if tok, _ := m.AccessToken(context.Background()); tok != "old_access" {
			t.Errorf("AccessToken() = %q, want old_access", tok)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	var opened string
	m := newTestManager(t, nil, securestore.NewMemoryStore(), WithOpener(func(u string) error {
		opened = u
		return nil
	}))

	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got := m.State().Get(); got != Authenticating {
		t.Errorf("State() = %v, want Authenticating", got)
	}
	if m.IsAuthenticated() {
		t.Error("hand-off alone must not sign in")
	}

	u, err := url.Parse(opened)
	if err != nil {
		t.Fatalf("opened invalid URL %q", opened)
	}
	q := u.Query()
	if q.Get("client_id") != "client_123" || q.Get("response_type") != "code" ||
		q.Get("redirect_uri") != DefaultRedirectURI || q.Get("state") == "" {
		t.Errorf("authorization URL query = %v", q)
	}
}

func TestAuthenticateOpenerFailure(t *testing.T) {
	m := newTestManager(t, nil, securestore.NewMemoryStore(), WithOpener(func(string) error {
		return errors.New("no browser")
	}))

	if err := m.Authenticate(context.Background()); err == nil {
		t.Fatal("Authenticate() error = nil, want error")
	}
	if got := m.State().Get(); got != SignedOut {
		t.Errorf("State() = %v, want SignedOut", got)
	}
}

func TestHandleCallbackExchangesCode(t *testing.T) {
	ts := newTokenServer(t)
	store := securestore.NewMemoryStore()
	m := newTestManager(t, ts, store)

	var states []State
	m.State().Subscribe(func(s State) { states = append(states, s) })

	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.HandleCallback(context.Background(), "verse://callback?code=the_code"); err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	form := ts.lastForm()
	want := map[string]string{
		"grant_type":   "authorization_code",
		"code":         "the_code",
		"redirect_uri": DefaultRedirectURI,
		"client_id":    "client_123",
	}
	for k, v := range want {
		if got := form.Get(k); got != v {
			t.Errorf("form %s = %q, want %q", k, got, v)
		}
	}

	if got := m.State().Get(); got != SignedIn {
		t.Errorf("State() = %v, want SignedIn", got)
	}
	if len(states) != 2 || states[0] != Authenticating || states[1] != SignedIn {
		t.Errorf("state transitions = %v", states)
	}

	ctx := context.Background()
	if v, _ := store.Read(ctx, securestore.KeyAccessToken); v != "new_access" {
		t.Errorf("stored access token = %q", v)
	}
	if v, _ := store.Read(ctx, securestore.KeyRefreshToken); v != "new_refresh" {
		t.Errorf("stored refresh token = %q", v)
	}
	wantExpiry := strconv.FormatInt(testNow.Add(time.Hour).Unix(), 10)
	if v, _ := store.Read(ctx, securestore.KeyTokenExpiry); v != wantExpiry {
		t.Errorf("stored expiry = %q, want %q", v, wantExpiry)
	}
}

func TestHandleCallbackFailures(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		status  int
		wantErr error
	}{
		{"missing code and error", "verse://callback?foo=bar", http.StatusOK, ErrInvalidCallback},
		{"wrong scheme", "other://callback?code=x", http.StatusOK, ErrCallbackSchemeMismatch},
		{"exchange rejected", "verse://callback?code=x", http.StatusBadRequest, ErrTokenExchangeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.status = tt.status
			if tt.status != http.StatusOK {
				ts.response = map[string]any{"error": "invalid_grant"}
			}
			store := securestore.NewMemoryStore()
			m := newTestManager(t, ts, store)

			err := m.HandleCallback(context.Background(), tt.url)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleCallback() error = %v, want %v", err, tt.wantErr)
			}
			if got := m.State().Get(); got != SignedOut {
				t.Errorf("State() = %v, want SignedOut", got)
			}
			if _, err := store.Read(context.Background(), securestore.KeyAccessToken); !errors.Is(err, securestore.ErrNotFound) {
				t.Error("failed callback must not store tokens")
			}
		})
	}
}

func TestHandleCallbackDenied(t *testing.T) {
	m := newTestManager(t, nil, securestore.NewMemoryStore())

	err := m.HandleCallback(context.Background(), "verse://callback?error=access_denied")

	var denied *AuthorizationDeniedError
	if !errors.As(err, &denied) || denied.Reason != "access_denied" {
		t.Errorf("HandleCallback() error = %v, want AuthorizationDeniedError(access_denied)", err)
	}
}

func TestHandleCallbackFailureKeepsExistingSession(t *testing.T) {
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "refresh", testNow.Add(time.Hour))
	m := newTestManager(t, nil, store)

	if err := m.HandleCallback(context.Background(), "verse://callback"); err == nil {
		t.Fatal("HandleCallback() error = nil")
	}
	if got := m.State().Get(); got != SignedIn {
		t.Errorf("State() = %v, want SignedIn", got)
	}
}

func TestRefreshTokenIfNeededBoundary(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		wantRefresh bool
	}{
		{"well before skew", time.Hour, false},
		{"one second before boundary", RefreshSkew + time.Second, false},
		{"exactly at boundary", RefreshSkew, true},
		{"inside skew", RefreshSkew - time.Second, true},
		{"already expired", -time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			store := securestore.NewMemoryStore()
			seedSession(t, store, "access", "refresh", testNow.Add(tt.expiresIn))
			m := newTestManager(t, ts, store)

			if err := m.RefreshTokenIfNeeded(context.Background()); err != nil {
				t.Fatalf("RefreshTokenIfNeeded() error = %v", err)
			}

			refreshed := ts.requests.Load() == 1
			if refreshed != tt.wantRefresh {
				t.Errorf("refreshed = %v, want %v", refreshed, tt.wantRefresh)
			}
			if refreshed {
				form := ts.lastForm()
				if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh" {
					t.Errorf("refresh form = %v", form)
				}
				if tok, _ := m.AccessToken(context.Background()); tok != "new_access" {
					t.Errorf("AccessToken() = %q, want new_access", tok)
				}
			}
		})
	}
}

func TestRefreshKeepsRefreshTokenWhenOmitted(t *testing.T) {
	ts := newTokenServer(t)
	ts.response = map[string]any{
		"access_token": "rotated_access",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "keep_me", testNow)
	m := newTestManager(t, ts, store)

	if err := m.RefreshTokenIfNeeded(context.Background()); err != nil {
		t.Fatalf("RefreshTokenIfNeeded() error = %v", err)
	}

	s := m.Session()
	if s.AccessToken != "rotated_access" {
		t.Errorf("AccessToken = %q", s.AccessToken)
	}
	if s.RefreshToken != "keep_me" {
		t.Errorf("RefreshToken = %q, want keep_me", s.RefreshToken)
	}
	if v, _ := store.Read(context.Background(), securestore.KeyRefreshToken); v != "keep_me" {
		t.Errorf("stored refresh token = %q, want keep_me", v)
	}
	if got := m.State().Get(); got != SignedIn {
		t.Errorf("State() = %v, want SignedIn", got)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "", testNow)
	m := newTestManager(t, ts, store)

	err := m.RefreshTokenIfNeeded(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("RefreshTokenIfNeeded() error = %v, want ErrNoRefreshToken", err)
	}
	if ts.requests.Load() != 0 {
		t.Error("no token request should be made without a refresh token")
	}
}

func TestRefreshRejectedSignsOut(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	ts.response = map[string]any{"error": "invalid_grant"}
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "revoked", testNow)
	m := newTestManager(t, ts, store)

	err := m.RefreshTokenIfNeeded(context.Background())
	if !errors.Is(err, ErrTokenRefreshFailed) {
		t.Errorf("RefreshTokenIfNeeded() error = %v, want ErrTokenRefreshFailed", err)
	}
	if got := m.State().Get(); got != SignedOut {
		t.Errorf("State() = %v, want SignedOut", got)
	}
}

func TestRefreshServerErrorKeepsSession(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadGateway
	ts.response = map[string]any{"error": "temporarily_unavailable"}
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "refresh", testNow)
	m := newTestManager(t, ts, store)

	if err := m.RefreshTokenIfNeeded(context.Background()); !errors.Is(err, ErrTokenRefreshFailed) {
		t.Errorf("RefreshTokenIfNeeded() error = %v, want ErrTokenRefreshFailed", err)
	}
	if got := m.State().Get(); got != SignedIn {
		t.Errorf("State() = %v, want SignedIn", got)
	}
}

func TestRefreshIsSingleFlight(t *testing.T) {
	ts := newTokenServer(t)
	ts.gate = make(chan struct{})
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "refresh", testNow)
	m := newTestManager(t, ts, store)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.RefreshTokenIfNeeded(context.Background())
		}()
	}

	// Let the first exchange reach the server before releasing it.
	deadline := time.After(5 * time.Second)
	for ts.requests.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no refresh request arrived")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(ts.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("RefreshTokenIfNeeded() error = %v", err)
		}
	}
	if n := ts.requests.Load(); n != 1 {
		t.Errorf("token requests = %d, want 1", n)
	}
}

func TestSignOut(t *testing.T) {
	store := securestore.NewMemoryStore()
	seedSession(t, store, "access", "refresh", testNow.Add(time.Hour))
	m := newTestManager(t, nil, store)

	m.SignOut(context.Background())

	if got := m.State().Get(); got != SignedOut {
		t.Errorf("State() = %v, want SignedOut", got)
	}
	for _, key := range sessionKeys {
		if _, err := store.Read(context.Background(), key); !errors.Is(err, securestore.ErrNotFound) {
			t.Errorf("Read(%s) after SignOut error = %v, want ErrNotFound", key, err)
		}
	}
	if _, err := m.AccessToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("AccessToken() error = %v, want ErrNotAuthenticated", err)
	}

	// Signing out again with nothing stored still succeeds.
	m.SignOut(context.Background())
	if got := m.State().Get(); got != SignedOut {
		t.Errorf("State() = %v, want SignedOut", got)
	}
}

func TestSessionUsable(t *testing.T) {
	s := &Session{AccessToken: "a", ExpiresAt: testNow.Add(RefreshSkew)}
	if s.Usable(testNow) {
		t.Error("session exactly at the skew boundary must not be usable")
	}
	if !s.Usable(testNow.Add(-time.Second)) {
		t.Error("session one second before the boundary should be usable")
	}
	var nilSession *Session
	if nilSession.Usable(testNow) {
		t.Error("nil session should not be usable")
	}
}

// expiryFailStore fails every write of the token expiry.
type expiryFailStore struct {
	*securestore.MemoryStore
}

func (s expiryFailStore) Save(ctx context.Context, key, value string) error {
	if key == securestore.KeyTokenExpiry {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(ctx, key, value)
}

func TestRefreshWriteFailureRestoresStore(t *testing.T) {
	ts := newTokenServer(t)
	mem := securestore.NewMemoryStore()
	seedSession(t, mem, "access", "refresh", testNow)
	m := newTestManager(t, ts, expiryFailStore{mem})

	err := m.RefreshTokenIfNeeded(context.Background())
	if !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("RefreshTokenIfNeeded() error = %v, want ErrTokenRefreshFailed", err)
	}

	ctx := context.Background()
	want := map[string]string{
		securestore.KeyAccessToken:  "access",
		securestore.KeyRefreshToken: "refresh",
		securestore.KeyTokenExpiry:  strconv.FormatInt(testNow.Unix(), 10),
	}
	for key, v := range want {
		if got, _ := mem.Read(ctx, key); got != v {
			t.Errorf("stored %s = %q, want %q", key, got, v)
		}
	}
	if s := m.Session(); s == nil || s.AccessToken != "access" {
		t.Errorf("Session() = %+v, want the previous session", s)
	}
}

func TestCallbackWriteFailureLeavesStoreEmpty(t *testing.T) {
	ts := newTokenServer(t)
	mem := securestore.NewMemoryStore()
	m := newTestManager(t, ts, expiryFailStore{mem})

	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := m.HandleCallback(context.Background(), "verse://callback?code=the_code")
	if !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("HandleCallback() error = %v, want ErrTokenExchangeFailed", err)
	}

	for _, key := range sessionKeys {
		if _, err := mem.Read(context.Background(), key); !errors.Is(err, securestore.ErrNotFound) {
			t.Errorf("%s still stored after failed write (err = %v)", key, err)
		}
	}
	if got := m.State().Get(); got != SignedOut {
		t.Errorf("State() = %v, want SignedOut", got)
	}
}
