// Package workflow coordinates one user's reservation flow: sign-in, spot
// selection, deferred reservation commit, cancellation, favorites and the
// confirmation dialogs that gate destructive actions.
//
// An App serializes every intent behind a single mutex. Deferred actions run
// through a task.Runner and re-enter the App under the same mutex, so the
// catalog's reserved flags and the ledger always change together. While a
// deferred action is in flight every state-changing intent except Search and
// DismissDialog fails with domain.ErrBusy.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/navigation"
	"github.com/vbonduro/sparx/internal/notify"
	"github.com/vbonduro/sparx/internal/task"
)

const (
	TaskLogin   = "login"
	TaskReserve = "reserve"

	DefaultLoginDelay   = time.Second
	DefaultReserveDelay = 1500 * time.Millisecond
)

const (
	noticeLoginInvalid   = "Please enter a valid email and password."
	noticeFormIncomplete = "Please fill in all reservation details."
	noticeAlreadyTaken   = "This spot is already reserved."
	noticeSignInRequired = "Please sign in first."
)

type spotCatalog interface {
	Find(id int64) (domain.Spot, bool)
	Filter(query string) []domain.Spot
	SetReserved(id int64, reserved bool) error
	AvailableCount() int
}

type reservationLedger interface {
	Create(spotID int64, holderName, vehicleLabel string, date time.Time) (domain.Reservation, error)
	Cancel(reference string) (domain.Reservation, error)
	Find(reference string) (domain.Reservation, bool)
	ListActive() []domain.Reservation
}

type favoriteSet interface {
	Toggle(ctx context.Context, id int64) []int64
	Clear(ctx context.Context)
	Contains(id int64) bool
	IDs() []int64
	Len() int
	Degraded() bool
}

type pendingSelection struct {
	spotID     int64
	holderName string
	date       time.Time
}

type App struct {
	mu        sync.Mutex
	catalog   spotCatalog
	ledger    reservationLedger
	favorites favoriteSet
	nav       *navigation.Controller
	tasks     *task.Runner
	events    notify.Publisher
	validate  *validator.Validate
	logger    *slog.Logger

	now          func() time.Time
	loginDelay   time.Duration
	reserveDelay time.Duration
	clientID     string

	session *domain.Session
	pending *pendingSelection
	receipt *Receipt
	dialog  *dialog
	query   string
	notice  string

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
}

type Option func(*App)

// WithDelays sets the simulated latency of sign-in and reservation commit.
func WithDelays(login, reserve time.Duration) Option {
	return func(a *App) {
		a.loginDelay = login
		a.reserveDelay = reserve
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithClientID tags published events with the owning client.
func WithClientID(id string) Option {
	return func(a *App) { a.clientID = id }
}

func WithTaskRunner(r *task.Runner) Option {
	return func(a *App) { a.tasks = r }
}

// NewApp wires an App over its collaborators. events may be nil.
func NewApp(catalog spotCatalog, ledger reservationLedger, favorites favoriteSet, events notify.Publisher, logger *slog.Logger, opts ...Option) *App {
	a := &App{
		catalog:      catalog,
		ledger:       ledger,
		favorites:    favorites,
		nav:          navigation.NewController(),
		events:       events,
		validate:     newValidator(),
		logger:       logger,
		now:          time.Now,
		loginDelay:   DefaultLoginDelay,
		reserveDelay: DefaultReserveDelay,
		subscribers:  make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tasks == nil {
		a.tasks = task.NewRunner()
	}
	a.tasks.OnSettle(func(string) { a.publish() })
	return a
}

// SubmitLogin validates the form and signs in after the login delay.
func (a *App) SubmitLogin(ctx context.Context, form LoginForm) (*task.Future, error) {
	form.Email = strings.TrimSpace(form.Email)
	form.Password = strings.TrimSpace(form.Password)

	a.mu.Lock()
	if err := a.idleLocked(); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if err := validateForm(a.validate, form); err != nil {
		a.notice = noticeLoginInvalid
		a.mu.Unlock()
		a.publish()
		return nil, err
	}

	email := form.Email
	fut, err := a.tasks.Start(TaskLogin, a.loginDelay, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.session = &domain.Session{DisplayName: DisplayNameFromEmail(email), Email: email}
		a.notice = ""
		a.goTo(navigation.Choose)
		a.logger.Info("session started", "client_id", a.clientID)
		return nil
	})
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a.publish()
	return fut, nil
}

// RequestLogout opens the logout confirmation dialog.
func (a *App) RequestLogout() error {
	return a.change(func() error {
		if a.session == nil {
			return nil
		}
		a.dialog = &dialog{kind: DialogLogout}
		return nil
	})
}

// SelectSpot records id as the pending selection and shows the reserve form.
func (a *App) SelectSpot(id int64) error {
	return a.change(func() error {
		if _, ok := a.catalog.Find(id); !ok {
			return fmt.Errorf("spot %d: %w", id, domain.ErrNotFound)
		}
		holder := ""
		if a.session != nil {
			holder = a.session.DisplayName
		}
		a.pending = &pendingSelection{spotID: id, holderName: holder, date: a.tomorrow()}
		a.notice = ""
		a.goTo(navigation.Reserve)
		return nil
	})
}

// SubmitReservation validates the form against the pending selection and
// commits it after the reservation delay. With no pending selection it
// returns to Choose and yields a nil future.
func (a *App) SubmitReservation(ctx context.Context, form ReservationForm) (*task.Future, error) {
	form.HolderName = strings.TrimSpace(form.HolderName)
	form.VehicleLabel = strings.TrimSpace(form.VehicleLabel)
	form.Date = strings.TrimSpace(form.Date)

	a.mu.Lock()
	if err := a.idleLocked(); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if a.pending == nil {
		a.goTo(navigation.Choose)
		a.mu.Unlock()
		a.publish()
		return nil, nil
	}
	if err := validateForm(a.validate, form); err != nil {
		a.notice = noticeFormIncomplete
		a.mu.Unlock()
		a.publish()
		return nil, err
	}
	spotID := a.pending.spotID
	spot, ok := a.catalog.Find(spotID)
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("spot %d: %w", spotID, domain.ErrNotFound)
	}
	if spot.Reserved {
		a.notice = noticeAlreadyTaken
		a.mu.Unlock()
		a.publish()
		return nil, fmt.Errorf("spot %d: %w", spotID, domain.ErrAlreadyReserved)
	}
	date, err := time.ParseInLocation(domain.DateLayout, form.Date, a.now().Location())
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("failed to parse date: %w", err)
	}

	fut, err := a.tasks.Start(TaskReserve, a.reserveDelay, func() error {
		return a.commitReservation(spotID, form.HolderName, form.VehicleLabel, date)
	})
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a.publish()
	return fut, nil
}

func (a *App) commitReservation(spotID int64, holder, vehicle string, date time.Time) error {
	a.mu.Lock()
	spot, ok := a.catalog.Find(spotID)
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("spot %d: %w", spotID, domain.ErrNotFound)
	}
	if spot.Reserved {
		a.notice = noticeAlreadyTaken
		a.mu.Unlock()
		return fmt.Errorf("spot %d: %w", spotID, domain.ErrAlreadyReserved)
	}

	r, err := a.ledger.Create(spotID, holder, vehicle, date)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyReserved) {
			a.notice = noticeAlreadyTaken
		}
		a.mu.Unlock()
		return err
	}
	if err := a.catalog.SetReserved(spotID, true); err != nil {
		if _, cerr := a.ledger.Cancel(r.Reference); cerr != nil {
			a.logger.Error("failed to roll back reservation", "reference", r.Reference, "error", cerr)
		}
		a.mu.Unlock()
		return fmt.Errorf("failed to mark spot reserved: %w", err)
	}

	if a.pending != nil && a.pending.spotID == spotID {
		a.pending = nil
	}
	a.receipt = newReceipt(spot, r)
	a.notice = ""
	a.goTo(navigation.Confirm)
	a.logger.Info("reservation confirmed", "client_id", a.clientID, "reference", r.Reference, "spot_id", spotID)
	a.mu.Unlock()

	a.emit(notify.ReservationConfirmed, r)
	return nil
}

// RequestCancel opens the cancel dialog for reference. When asked from the
// confirmation screen, confirming returns the user to Choose.
func (a *App) RequestCancel(reference string) error {
	return a.change(func() error {
		if _, ok := a.ledger.Find(reference); !ok {
			return fmt.Errorf("reservation %s: %w", reference, domain.ErrNotFound)
		}
		a.dialog = &dialog{
			kind:           DialogCancelReservation,
			reference:      reference,
			returnToChoose: a.nav.Current() == navigation.Confirm,
		}
		return nil
	})
}

// ConfirmDialog runs the action the open dialog is gating and closes it.
// It is a no-op when no dialog is open.
func (a *App) ConfirmDialog(ctx context.Context) error {
	var cancelled *domain.Reservation

	err := a.change(func() error {
		d := a.dialog
		if d == nil {
			return nil
		}
		a.dialog = nil

		switch d.kind {
		case DialogCancelReservation:
			r, err := a.cancelLocked(d.reference)
			if err != nil {
				return err
			}
			cancelled = &r
			if d.returnToChoose {
				a.goTo(navigation.Choose)
			}
		case DialogLogout:
			a.session = nil
			a.pending = nil
			a.receipt = nil
			a.notice = ""
			a.goTo(navigation.Login)
			a.logger.Info("session ended", "client_id", a.clientID)
		case DialogClearFavorites:
			a.favorites.Clear(ctx)
		}
		return nil
	})

	if cancelled != nil {
		a.emit(notify.ReservationCancelled, *cancelled)
	}
	return err
}

func (a *App) cancelLocked(reference string) (domain.Reservation, error) {
	r, err := a.ledger.Cancel(reference)
	if err != nil {
		return domain.Reservation{}, err
	}
	if err := a.catalog.SetReserved(r.SpotID, false); err != nil {
		a.logger.Warn("cancelled reservation for unknown spot", "reference", reference, "spot_id", r.SpotID)
	}
	if a.receipt != nil && a.receipt.Reference == reference {
		a.receipt = nil
	}
	a.logger.Info("reservation cancelled", "client_id", a.clientID, "reference", reference, "spot_id", r.SpotID)
	return r, nil
}

// DismissDialog closes the open dialog without running its action.
func (a *App) DismissDialog() {
	_ = a.apply(func() error {
		a.dialog = nil
		return nil
	})
}

// ToggleFavorite flips id in the favorites set. Ids that are neither known
// spots nor already favorited are rejected.
func (a *App) ToggleFavorite(ctx context.Context, id int64) error {
	return a.change(func() error {
		if _, ok := a.catalog.Find(id); !ok && !a.favorites.Contains(id) {
			return fmt.Errorf("spot %d: %w", id, domain.ErrNotFound)
		}
		a.favorites.Toggle(ctx, id)
		return nil
	})
}

// RequestClearFavorites opens the clear dialog unless there is nothing to clear.
func (a *App) RequestClearFavorites() error {
	return a.change(func() error {
		if a.favorites.Len() == 0 {
			return nil
		}
		a.dialog = &dialog{kind: DialogClearFavorites}
		return nil
	})
}

func (a *App) Search(query string) {
	_ = a.apply(func() error {
		a.query = query
		return nil
	})
}

// Navigate shows screen, falling back to Choose when the target has nothing
// to display. Navigating to Login while signed in is ignored; use
// RequestLogout.
func (a *App) Navigate(screen navigation.Screen) error {
	return a.change(func() error {
		if screen == navigation.Login {
			if a.session == nil {
				a.goTo(navigation.Login)
			}
			return nil
		}
		if err := a.requireSession(); err != nil {
			return err
		}
		switch {
		case screen == navigation.Reserve && a.pending == nil:
			screen = navigation.Choose
		case screen == navigation.Confirm && a.receipt == nil:
			screen = navigation.Choose
		}
		a.goTo(screen)
		return nil
	})
}

// Done leaves the confirmation screen.
func (a *App) Done() error {
	return a.Navigate(navigation.Choose)
}

// Back returns to Choose from Reserve or Manage. The pending selection is
// kept so the form can be resumed.
func (a *App) Back() error {
	return a.Navigate(navigation.Choose)
}

// Refresh republishes the current snapshot.
func (a *App) Refresh() {
	a.publish()
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned function removes the subscription.
func (a *App) Subscribe(fn func(Snapshot)) func() {
	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subscribers[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subscribers, id)
		a.subMu.Unlock()
	}
}

// change is apply for intents that must wait until no deferred action is
// in flight.
func (a *App) change(fn func() error) error {
	return a.apply(func() error {
		if err := a.idleLocked(); err != nil {
			return err
		}
		return fn()
	})
}

// apply runs fn under the App mutex, records user-facing errors in the
// notice, and publishes a snapshot once the mutex is released.
func (a *App) apply(fn func() error) error {
	a.mu.Lock()
	err := fn()
	if err != nil {
		if msg := noticeFor(err); msg != "" {
			a.notice = msg
		}
	}
	a.mu.Unlock()

	a.publish()
	return err
}

func (a *App) publish() {
	a.subMu.Lock()
	if len(a.subscribers) == 0 {
		a.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()

	snap := a.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (a *App) emit(kind string, r domain.Reservation) {
	if a.events == nil {
		return
	}
	ev := notify.NewEvent(kind, r, a.now())
	ev.ClientID = a.clientID
	if err := a.events.Publish(context.Background(), ev); err != nil {
		a.logger.Error("failed to publish reservation event", "type", kind, "reference", r.Reference, "error", err)
	}
}

// idleLocked reports ErrBusy while a deferred action is in flight. a.mu must
// be held.
func (a *App) idleLocked() error {
	if names := a.tasks.InFlight(); len(names) > 0 {
		return fmt.Errorf("%s in progress: %w", strings.Join(names, ", "), domain.ErrBusy)
	}
	return nil
}

// goTo shows screen and logs the transition. a.mu must be held.
func (a *App) goTo(screen navigation.Screen) {
	a.nav.Go(screen)
	if from := a.nav.Previous(); from != screen {
		a.logger.Debug("screen changed", "client_id", a.clientID, "from", from, "to", screen)
	}
}

// requireSession reports ErrNoSession when nobody is signed in. a.mu must be held.
func (a *App) requireSession() error {
	if a.session == nil {
		a.notice = noticeSignInRequired
		return domain.ErrNoSession
	}
	return nil
}

func (a *App) tomorrow() time.Time {
	now := a.now()
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return noticeFormIncomplete
	case errors.Is(err, domain.ErrAlreadyReserved):
		return noticeAlreadyTaken
	case errors.Is(err, domain.ErrNoSession):
		return noticeSignInRequired
	default:
		return ""
	}
}

// DisplayNameFromEmail turns "jane.doe@example.com" into "Jane Doe".
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.Split(local, ".")
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		if r == utf8.RuneError {
			continue
		}
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	name := strings.TrimSpace(strings.Join(parts, " "))
	if name == "" {
		return "Authorized User"
	}
	return name
}
