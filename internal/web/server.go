package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/sparx/internal/service"
)

type Server struct {
	clients *service.ClientService
	tokens  *ClientTokens
	mux     *http.ServeMux
	logger  *slog.Logger
}

func NewServer(clients *service.ClientService, tokens *ClientTokens, logger *slog.Logger) *Server {
	s := &Server{
		clients: clients,
		tokens:  tokens,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/state", s.withView(s.handleState))
	s.mux.HandleFunc("POST /api/login", s.withApp(s.handleLogin))
	s.mux.HandleFunc("POST /api/logout", s.withApp(s.handleLogout))
	s.mux.HandleFunc("POST /api/dialog/confirm", s.withApp(s.handleDialogConfirm))
	s.mux.HandleFunc("POST /api/dialog/dismiss", s.withApp(s.handleDialogDismiss))
	s.mux.HandleFunc("GET /api/spots", s.withApp(s.handleSearch))
	s.mux.HandleFunc("POST /api/spots/{id}/select", s.withApp(s.handleSelectSpot))
	s.mux.HandleFunc("POST /api/spots/{id}/favorite", s.withApp(s.handleToggleFavorite))
	s.mux.HandleFunc("POST /api/favorites/clear", s.withApp(s.handleClearFavorites))
	s.mux.HandleFunc("POST /api/reservations", s.withApp(s.handleCreateReservation))
	s.mux.HandleFunc("POST /api/reservations/{ref}/cancel", s.withApp(s.handleCancelReservation))
	s.mux.HandleFunc("POST /api/navigate", s.withApp(s.handleNavigate))
	s.mux.HandleFunc("POST /api/done", s.withApp(s.handleDone))
	s.mux.HandleFunc("POST /api/back", s.withApp(s.handleBack))
	s.mux.HandleFunc("POST /api/refresh", s.withApp(s.handleRefresh))
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
