// Package server exposes the running player over HTTP: the renderer page,
// its websocket bridge, and a small JSON control API used by the CLI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/observe"
)

// Controller is the playback surface the API drives.
type Controller interface {
	State() observe.Observable[core.PlaybackState]
	Selected() observe.Observable[core.Source]
	Artwork() observe.Observable[coordinator.Artwork]

	Play(ctx context.Context)
	Pause(ctx context.Context)
	TogglePlayback(ctx context.Context)
	SkipNext(ctx context.Context)
	SkipPrevious(ctx context.Context)
	Seek(ctx context.Context, progress float64)

	SwitchSource(to core.Source) error
	Connect(ctx context.Context, src core.Source) error
}

// CallbackHandler completes an OAuth redirect.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, rawURL string) error
}

// Options holds the server's collaborators.
type Options struct {
	Addr       string
	Controller Controller
	Callback   CallbackHandler
	Renderer   http.Handler
	Bridge     http.Handler
	Logger     *log.Logger
}

// Server is the local HTTP server.
type Server struct {
	addr   string
	ctl    Controller
	cb     CallbackHandler
	logger *log.Logger
	router *mux.Router
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		addr:   opts.Addr,
		ctl:    opts.Controller,
		cb:     opts.Callback,
		logger: logger.WithPrefix("server"),
		router: mux.NewRouter(),
	}

	if opts.Renderer != nil {
		s.router.Handle("/", opts.Renderer).Methods(http.MethodGet)
	}
	if opts.Bridge != nil {
		s.router.Handle("/bridge", opts.Bridge).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/artwork", s.handleArtwork).Methods(http.MethodGet)
	api.HandleFunc("/play", s.command(Controller.Play)).Methods(http.MethodPost)
	api.HandleFunc("/pause", s.command(Controller.Pause)).Methods(http.MethodPost)
	api.HandleFunc("/toggle", s.command(Controller.TogglePlayback)).Methods(http.MethodPost)
	api.HandleFunc("/next", s.command(Controller.SkipNext)).Methods(http.MethodPost)
	api.HandleFunc("/previous", s.command(Controller.SkipPrevious)).Methods(http.MethodPost)
	api.HandleFunc("/seek", s.handleSeek).Methods(http.MethodPost)
	api.HandleFunc("/source", s.handleSource).Methods(http.MethodPost)
	api.HandleFunc("/connect/{source}", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/auth/callback", s.handleCallback).Methods(http.MethodPost)

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStateResponse(
		s.ctl.Selected().Get(),
		s.ctl.State().Get(),
		s.ctl.Artwork().Get(),
	))
}

func (s *Server) handleArtwork(w http.ResponseWriter, r *http.Request) {
	art := s.ctl.Artwork().Get()
	if len(art.Image) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(art.Image))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(art.Image)
}

func (s *Server) command(fn func(Controller, context.Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(s.ctl, r.Context())
		writeJSON(w, http.StatusOK, okResponse)
	}
}

// SeekRequest is the body of POST /api/seek.
type SeekRequest struct {
	Progress *float64 `json:"progress"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Progress == nil {
		writeError(w, http.StatusBadRequest, "progress is required")
		return
	}
	s.ctl.Seek(r.Context(), *req.Progress)
	writeJSON(w, http.StatusOK, okResponse)
}

// SourceRequest is the body of POST /api/source.
type SourceRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.ctl.SwitchSource(core.Source(req.Source)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, coordinator.ErrUnknownSource) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	src := core.Source(mux.Vars(r)["source"])
	if err := s.ctl.Connect(r.Context(), src); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, coordinator.ErrUnknownSource):
			status = http.StatusNotFound
		case errors.Is(err, core.ErrAuthorization):
			status = http.StatusForbidden
		}
		s.logger.Warn("connect failed", "source", src, "err", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

// CallbackRequest is the body of POST /api/auth/callback.
type CallbackRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.cb == nil {
		writeError(w, http.StatusNotFound, "spotify is not configured")
		return
	}
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := s.cb.HandleCallback(r.Context(), req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

var okResponse = map[string]string{"status": "ok"}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
