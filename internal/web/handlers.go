package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/navigation"
	"github.com/vbonduro/sparx/internal/task"
	"github.com/vbonduro/sparx/internal/workflow"
)

const maxBodyBytes = 64 << 10

type appHandler func(w http.ResponseWriter, r *http.Request, app *workflow.App)

// withApp resolves the caller's client id and hands the handler its App.
func (s *Server) withApp(h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.tokens.clientID(w, r)
		if err != nil {
			writeDomainError(w, s.logger, err)
			return
		}
		app, err := s.clients.App(r.Context(), id)
		if err != nil {
			writeDomainError(w, s.logger, err)
			return
		}
		h(w, r, app)
	}
}

// withView is withApp for read-only routes. It does not register state for
// a client that has none yet.
func (s *Server) withView(h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.tokens.clientID(w, r)
		if err != nil {
			writeDomainError(w, s.logger, err)
			return
		}
		app, err := s.clients.View(r.Context(), id)
		if err != nil {
			writeDomainError(w, s.logger, err)
			return
		}
		h(w, r, app)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]any{"status": "ok", "clients": s.clients.Count()})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	writeData(w, app.Snapshot())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	var form workflow.LoginForm
	if !s.decodeJSON(w, r, &form) {
		return
	}
	fut, err := app.SubmitLogin(r.Context(), form)
	s.respondAfter(w, r, app, fut, err)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	s.respond(w, app, app.RequestLogout())
}

func (s *Server) handleDialogConfirm(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	s.respond(w, app, app.ConfirmDialog(r.Context()))
}

func (s *Server) handleDialogDismiss(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	app.DismissDialog()
	writeData(w, app.Snapshot())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	app.Search(r.URL.Query().Get("q"))
	writeData(w, app.Snapshot())
}

func (s *Server) handleSelectSpot(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	id, err := parseID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	s.respond(w, app, app.SelectSpot(id))
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	id, err := parseID(r)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	s.respond(w, app, app.ToggleFavorite(r.Context(), id))
}

func (s *Server) handleClearFavorites(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	s.respond(w, app, app.RequestClearFavorites())
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	var form workflow.ReservationForm
	if !s.decodeJSON(w, r, &form) {
		return
	}
	fut, err := app.SubmitReservation(r.Context(), form)
	s.respondAfter(w, r, app, fut, err)
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	s.respond(w, app, app.RequestCancel(r.PathValue("ref")))
}

type navigateRequest struct {
	Screen string `json:"screen"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, app *workflow.App) {
	var req navigateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	screen, err := navigation.ParseScreen(req.Screen)
	if err != nil {
		writeDomainError(w, s.logger, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	s.respond(w, app, app.Navigate(screen))
}

func (s *Server) handleDone(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	s.respond(w, app, app.Done())
}

func (s *Server) handleBack(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	s.respond(w, app, app.Back())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request, app *workflow.App) {
	app.Refresh()
	writeData(w, app.Snapshot())
}

// respond writes err, or the current snapshot when err is nil.
func (s *Server) respond(w http.ResponseWriter, app *workflow.App, err error) {
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeData(w, app.Snapshot())
}

// respondAfter waits for a deferred intent to settle before responding, so
// the client sees the committed state. A nil future means nothing was
// started.
func (s *Server) respondAfter(w http.ResponseWriter, r *http.Request, app *workflow.App, fut *task.Future, err error) {
	if err == nil && fut != nil {
		err = fut.Wait(r.Context())
	}
	s.respond(w, app, err)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return false
	}
	return true
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid spot id %q: %w", r.PathValue("id"), domain.ErrValidation)
	}
	return id, nil
}
