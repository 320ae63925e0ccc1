// Package server serves the local web interface of the loader: the HTML
// pages, the JSON API and the live event stream.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Guliveer/steam-gameloader-go/internal/app"
	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// Server serves the UI and API backed by an app.App.
type Server struct {
	addr    string
	app     *app.App
	log     *logger.Logger
	srv     *http.Server
	started time.Time

	header *cache.TTL[HeaderData]
	now    func() time.Time
}

// New creates a Server bound to addr.
func New(a *app.App, addr string) *Server {
	s := &Server{
		addr:    addr,
		app:     a,
		log:     a.Log.WithComponent("server"),
		started: time.Now(),
		header:  cache.NewTTL[HeaderData](cache.NewMemoryStore(), "header", constants.HeaderCacheTTL),
		now:     time.Now,
	}

	// No WriteTimeout: downloads run for up to the cascade budget and
	// /api/events never ends.
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           withLogging(s.log, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}
	return s
}

// Handler returns the root handler, including the logging middleware.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	for _, p := range pageNames {
		mux.HandleFunc("GET /"+p, s.handlePage(p))
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticFiles()))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/system/status", s.handleSystemStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("POST /api/game/{appid}/download", s.handleDownload)
	mux.HandleFunc("GET /api/game/{appid}/install-status", s.handleInstallStatus)
	mux.HandleFunc("POST /api/game/{appid}/verify-installation", s.handleVerifyInstallation)
	mux.HandleFunc("GET /api/game/{appid}/details", s.handleGameDetails)
	mux.HandleFunc("GET /api/search/games", s.handleSearchGames)
	mux.HandleFunc("POST /api/upload/zip", s.handleUpload)
	mux.HandleFunc("GET /api/download/system-status", s.handleDownloadStatus)
	mux.HandleFunc("POST /api/download/clear-cache", s.handleDownloadClearCache)
	mux.HandleFunc("GET /api/downloads/history", s.handleDownloadHistory)

	mux.HandleFunc("GET /api/games/installed", s.handleGamesInstalled)
	mux.HandleFunc("POST /api/games/detect", s.handleGamesDetect)
	mux.HandleFunc("POST /api/games/refresh/{appid}", s.handleGamesRefresh)
	mux.HandleFunc("POST /api/games/backup", s.handleGamesBackup)
	mux.HandleFunc("POST /api/games/remove", s.handleGamesRemove)
	mux.HandleFunc("GET /api/games/status", s.handleGamesStatus)
	mux.HandleFunc("POST /api/games/validate-path", s.handleGamesValidatePath)
	mux.HandleFunc("GET /api/games/statistics", s.handleGamesStatistics)

	mux.HandleFunc("GET /api/dlc/status", s.handleDLCStatus)
	mux.HandleFunc("GET /api/dlc/games", s.handleDLCGames)
	mux.HandleFunc("GET /api/dlc/search", s.handleDLCSearch)
	mux.HandleFunc("GET /api/dlc/health", s.handleDLCHealth)
	// /api/dlc/games/{appid} and /api/dlc/{appid}/list overlap on
	// /api/dlc/games/list, so both go through one pattern.
	mux.HandleFunc("GET /api/dlc/{first}/{second}", s.handleDLCLookup)
	mux.HandleFunc("POST /api/dlc/{appid}/install", s.handleDLCInstall)
	mux.HandleFunc("POST /api/dlc/{appid}/uninstall", s.handleDLCUninstall)
	mux.HandleFunc("POST /api/dlc/cache/clear", s.handleDLCClearCache)

	mux.HandleFunc("GET /api/fixes/check/{appid}", s.handleFixCheck)
	mux.HandleFunc("POST /api/fixes/apply", s.handleFixApply)
	mux.HandleFunc("POST /api/fixes/remove/{appid}", s.handleFixRemove)
	mux.HandleFunc("GET /api/fixes/apply-status/{appid}", s.handleFixApplyStatus)
	mux.HandleFunc("GET /api/fixes/remove-status/{appid}", s.handleFixRemoveStatus)
	mux.HandleFunc("POST /api/fixes/cancel/{appid}", s.handleFixCancel)
	mux.HandleFunc("POST /api/fixes/jobs/clear", s.handleFixClearJobs)
	mux.HandleFunc("GET /api/fixes/system-status", s.handleFixSystemStatus)
	mux.HandleFunc("GET /api/fixes/local/all", s.handleFixLocalAll)
	mux.HandleFunc("GET /api/fixes/local/search", s.handleFixLocalSearch)
	mux.HandleFunc("GET /api/fixes/local/stats", s.handleFixLocalStats)

	mux.HandleFunc("GET /api/steam/user/username", s.handleSteamUsername)
	mux.HandleFunc("GET /api/steam/user/full-info", s.handleSteamUserInfo)
	mux.HandleFunc("POST /api/steam/user/refresh", s.handleSteamUserRefresh)
	mux.HandleFunc("GET /api/steam/status", s.handleSteamStatus)
	mux.HandleFunc("GET /api/steam/path", s.handleSteamPath)
	mux.HandleFunc("POST /api/steam/path", s.handleSteamSetPath)
	mux.HandleFunc("POST /api/steam/control", s.handleSteamControl)
	mux.HandleFunc("GET /api/steam/dll-status", s.handleDLLStatus)
	mux.HandleFunc("POST /api/steam/dll/repair", s.handleDLLRepair)
	mux.HandleFunc("POST /api/steam/clear-cache", s.handleSteamClearCache)
	mux.HandleFunc("GET /api/steam/health", s.handleSteamHealth)
	mux.HandleFunc("GET /api/header/status", s.handleHeaderStatus)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})

	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("Web interface starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("web server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Web interface shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("HTTP request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the websocket upgrade.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
