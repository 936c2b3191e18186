// Package app assembles verse from configuration: storage, the Spotify
// session and player, the local mpv provider, the renderer bridge, the
// coordinator and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/verse/internal/artwork"
	"github.com/tessro/verse/internal/bridge"
	"github.com/tessro/verse/internal/config"
	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/local"
	"github.com/tessro/verse/internal/mpv"
	"github.com/tessro/verse/internal/securestore"
	"github.com/tessro/verse/internal/server"
	"github.com/tessro/verse/internal/spotify/auth"
	"github.com/tessro/verse/internal/spotify/client"
	"github.com/tessro/verse/internal/spotify/player"
	"github.com/tessro/verse/internal/store"
)

// KeyringService is the keyring service name for stored tokens.
const KeyringService = "verse"

// Option configures an App.
type Option func(*options)

type options struct {
	prompt  mpv.Prompter
	opener  func(string) error
	secrets securestore.Store
}

// WithPrompter sets the local consent prompt.
func WithPrompter(p mpv.Prompter) Option {
	return func(o *options) { o.prompt = p }
}

// WithOpener sets how the OAuth URL reaches the browser.
func WithOpener(open func(string) error) Option {
	return func(o *options) { o.opener = open }
}

// WithSecrets overrides the configured token store.
func WithSecrets(s securestore.Store) Option {
	return func(o *options) { o.secrets = s }
}

// App holds every long-lived component.
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	DB          *store.DB
	Secrets     securestore.Store
	Auth        *auth.Manager
	Spotify     *player.Player
	MPV         *mpv.Backend
	Local       *local.Provider
	Channel     *bridge.Channel
	Coordinator *coordinator.Coordinator
	Server      *server.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the application. Nothing connects or listens until Connect
// and Run.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	db, err := store.Open(filepath.Join(cfg.Storage.DataDir, store.DefaultFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	a.DB = db

	a.Secrets = o.secrets
	if a.Secrets == nil {
		a.Secrets, err = OpenSecrets(cfg)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	var providers []core.Provider

	if cfg.Local.Enabled {
		a.MPV = mpv.New(mpv.Config{Socket: cfg.Local.MPVSocket, Binary: cfg.Local.MPVPath}, db, o.prompt, logger)
		a.Local = local.New(a.MPV,
			local.WithSampleRate(cfg.Local.SampleRate),
			local.WithLogger(logger.WithPrefix("local")),
		)
		providers = append(providers, a.Local)
	}

	if cfg.Spotify.ClientID != "" {
		authCfg := AuthConfig(cfg)
		managerOpts := []auth.Option{auth.WithLogger(logger.WithPrefix("auth"))}
		if o.opener != nil {
			managerOpts = append(managerOpts, auth.WithOpener(o.opener))
		}
		a.Auth = auth.NewManager(ctx, authCfg, a.Secrets, managerOpts...)

		api := client.New(a.Auth, client.WithLogger(logger.WithPrefix("spotify")))
		a.Spotify = player.New(api, a.Auth,
			player.WithPollInterval(time.Duration(cfg.Spotify.PollInterval)*time.Millisecond),
			player.WithLogger(logger.WithPrefix("spotify")),
		)
		providers = append(providers, a.Spotify)
	}

	if len(providers) == 0 {
		_ = db.Close()
		return nil, errors.New("no sources configured: enable local or set spotify.client_id")
	}

	a.Channel = bridge.NewChannel(logger)
	fetcher := artwork.NewCache(db, artwork.NewHTTPFetcher(), logger)
	a.Coordinator = coordinator.New(providers, a.Channel, fetcher, coordinator.WithLogger(logger))
	a.Channel.OnSeekRequest(func(ms float64) {
		go a.Coordinator.HandleSeekRequest(a.ctx, ms)
	})
	a.Channel.OnReady(a.Coordinator.Resync)

	var callback server.CallbackHandler
	if a.Auth != nil {
		callback = a.Auth
	}
	a.Server = server.New(server.Options{
		Addr:       Addr(cfg),
		Controller: a.Coordinator,
		Callback:   callback,
		Renderer:   bridge.RendererPage(cfg.Renderer.ComponentURL),
		Bridge:     bridge.NewHandler(a.Channel, logger),
		Logger:     logger,
	})

	return a, nil
}

// AuthConfig derives the OAuth settings from cfg.
func AuthConfig(cfg *config.Config) auth.Config {
	c := auth.NewConfig(cfg.Spotify.ClientID)
	if cfg.Spotify.RedirectURI != "" {
		c.RedirectURI = cfg.Spotify.RedirectURI
	}
	if len(cfg.Spotify.Scopes) > 0 {
		c.Scopes = cfg.Spotify.Scopes
	}
	return c
}

// OpenSecrets opens the configured token store.
func OpenSecrets(cfg *config.Config) (securestore.Store, error) {
	s, err := securestore.New(securestore.Options{
		Backend: cfg.Storage.Backend,
		Service: KeyringService,
		Path:    cfg.Storage.TokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	return s, nil
}

// Addr is the server's listen address.
func Addr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(int(cfg.Server.Port)))
}

// BaseURL is the server's URL for clients.
func BaseURL(cfg *config.Config) string {
	return "http://" + Addr(cfg)
}

// Connect connects the local provider. The Spotify player follows the
// session on its own, so it is left alone here to avoid opening a browser
// at startup.
func (a *App) Connect(ctx context.Context) {
	if a.Local == nil {
		return
	}
	if err := a.Coordinator.Connect(ctx, core.SourceLocal); err != nil {
		a.Logger.Warn("local source unavailable", "err", err)
	}
}

// Run serves HTTP until ctx is cancelled, then disconnects every provider.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		for _, src := range a.Coordinator.Sources() {
			_ = a.Coordinator.Disconnect(src)
		}
		return nil
	})

	return g.Wait()
}

// Close releases every resource held by the app.
func (a *App) Close() error {
	a.cancel()
	a.Coordinator.Close()

	var errs []error
	if a.MPV != nil {
		errs = append(errs, a.MPV.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
