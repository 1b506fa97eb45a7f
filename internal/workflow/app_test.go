package workflow

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/sparx/internal/catalog"
	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/favorites"
	"github.com/vbonduro/sparx/internal/ledger"
	"github.com/vbonduro/sparx/internal/navigation"
	"github.com/vbonduro/sparx/internal/notify"
	"github.com/vbonduro/sparx/internal/task"
)

var referencePattern = regexp.MustCompile(`^SPX-[A-Z0-9]{6}$`)

type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (m *manualScheduler) schedule(_ time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
}

func (m *manualScheduler) fire() {
	m.mu.Lock()
	fns := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type memKV struct {
	data   map[string]string
	putErr error
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key, value string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

type recordingPublisher struct {
	events []notify.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type harness struct {
	app     *App
	sched   *manualScheduler
	kv      *memKV
	events  *recordingPublisher
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
}

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, seed map[string]string) *harness {
	t.Helper()
	return newLoggedHarness(t, seed, slog.Default())
}

func newLoggedHarness(t *testing.T, seed map[string]string, logger *slog.Logger) *harness {
	t.Helper()
	if seed == nil {
		seed = map[string]string{}
	}
	h := &harness{
		sched:   &manualScheduler{},
		kv:      &memKV{data: seed},
		events:  &recordingPublisher{},
		catalog: catalog.NewDefault(),
		ledger:  ledger.New(ledger.WithClock(func() time.Time { return fixedNow })),
	}
	ctx := context.Background()
	favs := favorites.Open(ctx, favorites.NewStore(h.kv, favorites.DefaultKey, logger))
	h.app = NewApp(h.catalog, h.ledger, favs, h.events, logger,
		WithTaskRunner(task.NewRunner(task.WithScheduler(h.sched.schedule))),
		WithClock(func() time.Time { return fixedNow }),
		WithClientID("client-1"),
	)
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	fut, err := h.app.SubmitLogin(context.Background(), LoginForm{Email: "jane.doe@example.com", Password: "secret"})
	require.NoError(t, err)
	h.sched.fire()
	require.NoError(t, fut.Err())
}

func (h *harness) reserve(t *testing.T, spotID int64) string {
	t.Helper()
	require.NoError(t, h.app.SelectSpot(spotID))
	fut, err := h.app.SubmitReservation(context.Background(), ReservationForm{
		HolderName:   "A B",
		VehicleLabel: "ABC-123",
		Date:         "2026-10-20",
	})
	require.NoError(t, err)
	require.NotNil(t, fut)
	h.sched.fire()
	require.NoError(t, fut.Err())

	snap := h.app.Snapshot()
	require.NotNil(t, snap.Receipt)
	return snap.Receipt.Reference
}

// assertReservedMatchesLedger checks that every reserved spot other than the
// externally reserved ones has exactly one active reservation, and vice versa.
func (h *harness) assertReservedMatchesLedger(t *testing.T, external ...int64) {
	t.Helper()
	for _, s := range h.catalog.List() {
		_, inLedger := h.ledger.ActiveForSpot(s.ID)
		isExternal := false
		for _, id := range external {
			if id == s.ID {
				isExternal = true
			}
		}
		if isExternal {
			assert.True(t, s.Reserved, "spot %d", s.ID)
			continue
		}
		assert.Equal(t, inLedger, s.Reserved, "spot %d", s.ID)
	}
}

func TestLoginSignsInAfterDelay(t *testing.T) {
	h := newHarness(t, nil)

	fut, err := h.app.SubmitLogin(context.Background(), LoginForm{Email: " jane.doe@example.com ", Password: "secret"})
	require.NoError(t, err)

	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Login, snap.Screen)
	assert.Equal(t, []string{TaskLogin}, snap.Busy)
	assert.Nil(t, snap.Session)

	h.sched.fire()
	require.NoError(t, fut.Err())

	snap = h.app.Snapshot()
	assert.Equal(t, navigation.Choose, snap.Screen)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "Jane Doe", snap.Session.DisplayName)
	assert.Equal(t, "jane.doe@example.com", snap.Session.Email)
	assert.Empty(t, snap.Busy)
}

func TestLoginRejectsReentry(t *testing.T) {
	h := newHarness(t, nil)
	form := LoginForm{Email: "a@b.co", Password: "x"}

	_, err := h.app.SubmitLogin(context.Background(), form)
	require.NoError(t, err)
	_, err = h.app.SubmitLogin(context.Background(), form)
	assert.ErrorIs(t, err, domain.ErrBusy)

	h.sched.fire()
	_, err = h.app.SubmitLogin(context.Background(), form)
	assert.NoError(t, err)
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.app.SubmitLogin(context.Background(), LoginForm{Email: "not-an-email"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]bool{}
	for _, fe := range verrs {
		fields[fe.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["password"])

	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Login, snap.Screen)
	assert.Equal(t, noticeLoginInvalid, snap.Notice)
	assert.Empty(t, snap.Busy)
}

func TestLoginRejectsBlankPassword(t *testing.T) {
	h := newHarness(t, nil)

	fut, err := h.app.SubmitLogin(context.Background(), LoginForm{Email: "a@b.co", Password: "   "})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, fut)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "password", verrs[0].Field)
	assert.Empty(t, h.app.Snapshot().Busy)
}

func TestDisplayNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"jane.doe@example.com", "Jane Doe"},
		{"alex@example.com", "Alex"},
		{"j.r.r.tolkien@example.com", "J R R Tolkien"},
		{"@example.com", "Authorized User"},
		{"", "Authorized User"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayNameFromEmail(tt.email))
		})
	}
}

func TestReserveHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	require.NoError(t, h.app.SelectSpot(1))
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Reserve, snap.Screen)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "Spot 1A (AEB Front) — BSU - Alangilan", snap.Pending.Summary)
	assert.Equal(t, "Jane Doe", snap.Pending.HolderName)
	assert.Equal(t, "2026-10-20", snap.Pending.Date)

	fut, err := h.app.SubmitReservation(context.Background(), ReservationForm{
		HolderName:   "A B",
		VehicleLabel: "ABC-123",
		Date:         snap.Pending.Date,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{TaskReserve}, h.app.Snapshot().Busy)
	assert.Equal(t, 0, h.ledger.Len(), "nothing is committed before the delay")

	h.sched.fire()
	require.NoError(t, fut.Err())

	snap = h.app.Snapshot()
	assert.Equal(t, navigation.Confirm, snap.Screen)
	assert.Nil(t, snap.Pending)
	require.Len(t, snap.Reservations, 1)
	assert.Regexp(t, referencePattern, snap.Reservations[0].Reference)
	assert.Equal(t, "Spot 1A (AEB Front)", snap.Reservations[0].SpotTitle)

	spot, ok := h.catalog.Find(1)
	require.True(t, ok)
	assert.True(t, spot.Reserved)

	require.NotNil(t, snap.Receipt)
	assert.Equal(t, "Spot 1A (AEB Front)", snap.Receipt.SpotTitle)
	assert.Equal(t, "BSU - Alangilan · Neptune St.", snap.Receipt.Location)
	assert.Equal(t, "A B (ABC-123)", snap.Receipt.Holder)
	assert.Equal(t, "Tuesday, October 20, 2026", snap.Receipt.Date)
	assert.Equal(t, snap.Reservations[0].Reference, snap.Receipt.Reference)

	require.Len(t, h.events.events, 1)
	assert.Equal(t, notify.ReservationConfirmed, h.events.events[0].Type)
	assert.Equal(t, "client-1", h.events.events[0].ClientID)

	h.assertReservedMatchesLedger(t, 6)
}

func TestReserveConflictOnPreReservedSpot(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	assert.Equal(t, h.catalog.Len()-1, h.app.Snapshot().AvailableCount)

	require.NoError(t, h.app.SelectSpot(6))
	fut, err := h.app.SubmitReservation(context.Background(), ReservationForm{
		HolderName:   "A B",
		VehicleLabel: "ABC-123",
		Date:         "2026-10-20",
	})
	assert.Nil(t, fut)
	assert.ErrorIs(t, err, domain.ErrAlreadyReserved)

	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Reserve, snap.Screen)
	assert.NotNil(t, snap.Pending, "selection is kept so another spot can be picked")
	assert.Equal(t, noticeAlreadyTaken, snap.Notice)
	assert.Equal(t, 0, h.ledger.Len())
	assert.Empty(t, snap.Busy)
}

func TestReserveValidation(t *testing.T) {
	tests := []struct {
		name string
		form ReservationForm
	}{
		{"blank holder", ReservationForm{HolderName: "  ", VehicleLabel: "ABC-123", Date: "2026-10-20"}},
		{"blank vehicle", ReservationForm{HolderName: "A B", Date: "2026-10-20"}},
		{"blank date", ReservationForm{HolderName: "A B", VehicleLabel: "ABC-123"}},
		{"malformed date", ReservationForm{HolderName: "A B", VehicleLabel: "ABC-123", Date: "20/10/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.login(t)
			require.NoError(t, h.app.SelectSpot(1))

			fut, err := h.app.SubmitReservation(context.Background(), tt.form)
			assert.Nil(t, fut)
			assert.ErrorIs(t, err, domain.ErrValidation)

			snap := h.app.Snapshot()
			assert.Equal(t, navigation.Reserve, snap.Screen)
			assert.Equal(t, noticeFormIncomplete, snap.Notice)
			assert.Empty(t, snap.Busy)
			assert.Equal(t, 0, h.ledger.Len())
			spot, _ := h.catalog.Find(1)
			assert.False(t, spot.Reserved)
		})
	}
}

func TestSubmitWithoutSelectionReturnsToChoose(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.app.Navigate(navigation.Manage))

	fut, err := h.app.SubmitReservation(context.Background(), ReservationForm{})
	assert.NoError(t, err)
	assert.Nil(t, fut)
	assert.Equal(t, navigation.Choose, h.app.Snapshot().Screen)
}

func TestReserveRejectsReentry(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.app.SelectSpot(1))

	form := ReservationForm{HolderName: "A B", VehicleLabel: "ABC-123", Date: "2026-10-20"}
	_, err := h.app.SubmitReservation(context.Background(), form)
	require.NoError(t, err)
	_, err = h.app.SubmitReservation(context.Background(), form)
	assert.ErrorIs(t, err, domain.ErrBusy)

	h.sched.fire()
	assert.Equal(t, 1, h.ledger.Len())
}

func TestIntentsWaitForReservationCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ctx := context.Background()
	ref := h.reserve(t, 2)
	require.NoError(t, h.app.Navigate(navigation.Choose))

	require.NoError(t, h.app.SelectSpot(1))
	fut, err := h.app.SubmitReservation(ctx, ReservationForm{HolderName: "A B", VehicleLabel: "ABC-123", Date: "2026-10-20"})
	require.NoError(t, err)

	assert.ErrorIs(t, h.app.RequestLogout(), domain.ErrBusy)
	assert.NoError(t, h.app.ConfirmDialog(ctx), "no dialog was opened")
	assert.ErrorIs(t, h.app.SelectSpot(3), domain.ErrBusy)
	assert.ErrorIs(t, h.app.RequestCancel(ref), domain.ErrBusy)
	assert.ErrorIs(t, h.app.ToggleFavorite(ctx, 1), domain.ErrBusy)
	assert.ErrorIs(t, h.app.Navigate(navigation.Manage), domain.ErrBusy)
	assert.ErrorIs(t, h.app.Back(), domain.ErrBusy)
	_, err = h.app.SubmitLogin(ctx, LoginForm{Email: "a@b.co", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrBusy)

	h.app.Search("lot")
	snap := h.app.Snapshot()
	assert.Equal(t, "lot", snap.Query)
	assert.Nil(t, snap.Dialog)
	assert.Equal(t, navigation.Reserve, snap.Screen)
	assert.Empty(t, snap.Favorites)

	h.sched.fire()
	require.NoError(t, fut.Err())

	snap = h.app.Snapshot()
	assert.Equal(t, navigation.Confirm, snap.Screen)
	require.NotNil(t, snap.Session, "still signed in when the commit lands")
	require.NotNil(t, snap.Receipt)
	assert.Len(t, snap.Reservations, 2)
	h.assertReservedMatchesLedger(t, 6)

	require.NoError(t, h.app.RequestLogout(), "intents resume once the commit settles")
	require.NoError(t, h.app.ConfirmDialog(ctx))
	assert.Equal(t, navigation.Login, h.app.Snapshot().Screen)
}

func TestLogoutDialogCannotConfirmDuringCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ctx := context.Background()

	require.NoError(t, h.app.SelectSpot(1))
	require.NoError(t, h.app.RequestLogout())
	fut, err := h.app.SubmitReservation(ctx, ReservationForm{HolderName: "A B", VehicleLabel: "ABC-123", Date: "2026-10-20"})
	require.NoError(t, err)

	assert.ErrorIs(t, h.app.ConfirmDialog(ctx), domain.ErrBusy)
	assert.NotNil(t, h.app.Snapshot().Session)

	h.sched.fire()
	require.NoError(t, fut.Err())
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Confirm, snap.Screen)
	assert.NotNil(t, snap.Session)

	h.app.DismissDialog()
	assert.Nil(t, h.app.Snapshot().Dialog)
}

func TestCommitRechecksReservedFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.app.SelectSpot(1))

	fut, err := h.app.SubmitReservation(context.Background(), ReservationForm{HolderName: "A B", VehicleLabel: "ABC-123", Date: "2026-10-20"})
	require.NoError(t, err)

	require.NoError(t, h.catalog.SetReserved(1, true))
	h.sched.fire()

	assert.ErrorIs(t, fut.Err(), domain.ErrAlreadyReserved)
	assert.Equal(t, 0, h.ledger.Len())
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Reserve, snap.Screen)
	assert.Equal(t, noticeAlreadyTaken, snap.Notice)
	assert.Empty(t, h.events.events)
}

func TestCancellationRestoresAvailability(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	before := h.app.Snapshot().AvailableCount

	ref := h.reserve(t, 4)
	assert.Equal(t, before-1, h.app.Snapshot().AvailableCount)

	require.NoError(t, h.app.RequestCancel(ref))
	snap := h.app.Snapshot()
	require.NotNil(t, snap.Dialog)
	assert.Equal(t, DialogCancelReservation, snap.Dialog.Kind)
	assert.Contains(t, snap.Dialog.Message, ref)

	require.NoError(t, h.app.ConfirmDialog(context.Background()))

	snap = h.app.Snapshot()
	assert.Nil(t, snap.Dialog)
	assert.Equal(t, navigation.Choose, snap.Screen, "cancel from Confirm returns to Choose")
	assert.Nil(t, snap.Receipt)
	assert.Empty(t, snap.Reservations)
	assert.Equal(t, before, snap.AvailableCount)
	spot, _ := h.catalog.Find(4)
	assert.False(t, spot.Reserved)

	require.Len(t, h.events.events, 2)
	assert.Equal(t, notify.ReservationCancelled, h.events.events[1].Type)
	assert.Equal(t, ref, h.events.events[1].Reference)

	h.assertReservedMatchesLedger(t, 6)
}

func TestCancelFromManageStaysOnManage(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ref := h.reserve(t, 2)
	require.NoError(t, h.app.Navigate(navigation.Manage))

	require.NoError(t, h.app.RequestCancel(ref))
	require.NoError(t, h.app.ConfirmDialog(context.Background()))

	assert.Equal(t, navigation.Manage, h.app.Snapshot().Screen)
	assert.Equal(t, 0, h.ledger.Len())
}

func TestCancelTwiceIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ref := h.reserve(t, 3)

	require.NoError(t, h.app.RequestCancel(ref))
	require.NoError(t, h.app.ConfirmDialog(context.Background()))

	assert.ErrorIs(t, h.app.RequestCancel(ref), domain.ErrNotFound)
	assert.Nil(t, h.app.Snapshot().Dialog)
}

func TestConfirmCancelOfVanishedReferenceClosesDialog(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ref := h.reserve(t, 3)

	require.NoError(t, h.app.RequestCancel(ref))
	_, err := h.ledger.Cancel(ref)
	require.NoError(t, err)

	assert.ErrorIs(t, h.app.ConfirmDialog(context.Background()), domain.ErrNotFound)
	assert.Nil(t, h.app.Snapshot().Dialog)
}

func TestDismissDialogMutatesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	ref := h.reserve(t, 1)
	require.NoError(t, h.app.ToggleFavorite(context.Background(), 2))

	require.NoError(t, h.app.RequestCancel(ref))
	h.app.DismissDialog()
	require.NoError(t, h.app.RequestLogout())
	h.app.DismissDialog()
	require.NoError(t, h.app.RequestClearFavorites())
	h.app.DismissDialog()

	snap := h.app.Snapshot()
	assert.Nil(t, snap.Dialog)
	assert.NotNil(t, snap.Session)
	assert.Len(t, snap.Reservations, 1)
	assert.Len(t, snap.Favorites, 1)
	assert.Equal(t, navigation.Confirm, snap.Screen)
}

func TestConfirmWithoutDialogIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	assert.NoError(t, h.app.ConfirmDialog(context.Background()))
	assert.Equal(t, navigation.Choose, h.app.Snapshot().Screen)
}

func TestToggleFavoriteIsIdempotentInPairs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.app.ToggleFavorite(ctx, 3))
	assert.Equal(t, "[3]", h.kv.data[favorites.DefaultKey])
	assert.True(t, h.app.Snapshot().Spots[2].Favorite)

	require.NoError(t, h.app.ToggleFavorite(ctx, 3))
	assert.Equal(t, "[]", h.kv.data[favorites.DefaultKey])
	assert.Empty(t, h.app.Snapshot().Favorites)
}

func TestFavoritesSurviveNewApp(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.app.ToggleFavorite(ctx, 2))
	require.NoError(t, h.app.ToggleFavorite(ctx, 5))

	again := newHarness(t, h.kv.data)
	snap := again.app.Snapshot()
	require.Len(t, snap.Favorites, 2)
	assert.Equal(t, int64(2), snap.Favorites[0].SpotID)
	assert.Equal(t, "Spot 2A (AEB Front)", snap.Favorites[0].Title)
	assert.Equal(t, int64(5), snap.Favorites[1].SpotID)
}

func TestStaleFavoritesAreSkipped(t *testing.T) {
	h := newHarness(t, map[string]string{favorites.DefaultKey: "[99,2]"})
	ctx := context.Background()

	snap := h.app.Snapshot()
	require.Len(t, snap.Favorites, 1)
	assert.Equal(t, int64(2), snap.Favorites[0].SpotID)

	assert.ErrorIs(t, h.app.ToggleFavorite(ctx, 42), domain.ErrNotFound)
	require.NoError(t, h.app.ToggleFavorite(ctx, 99), "stale ids can still be removed")
	assert.Equal(t, "[2]", h.kv.data[favorites.DefaultKey])
}

func TestClearFavoritesIsGated(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.app.RequestClearFavorites())
	assert.Nil(t, h.app.Snapshot().Dialog, "nothing to clear")

	require.NoError(t, h.app.ToggleFavorite(ctx, 1))
	require.NoError(t, h.app.ToggleFavorite(ctx, 4))
	require.NoError(t, h.app.RequestClearFavorites())
	require.NotNil(t, h.app.Snapshot().Dialog)
	assert.Len(t, h.app.Snapshot().Favorites, 2)

	require.NoError(t, h.app.ConfirmDialog(ctx))
	assert.Empty(t, h.app.Snapshot().Favorites)
	_, stored := h.kv.data[favorites.DefaultKey]
	assert.False(t, stored, "clearing deletes the durable key")
}

func TestFavoritesDegradeWhenStorageFails(t *testing.T) {
	h := newHarness(t, nil)
	h.kv.putErr = errors.New("disk full")

	require.NoError(t, h.app.ToggleFavorite(context.Background(), 1))

	snap := h.app.Snapshot()
	assert.True(t, snap.FavoritesDegraded)
	require.Len(t, snap.Favorites, 1)
	assert.Equal(t, int64(1), snap.Favorites[0].SpotID)
}

func TestSearchFiltersByNeptune(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	available := h.app.Snapshot().AvailableCount

	h.app.Search("neptune")

	snap := h.app.Snapshot()
	assert.Equal(t, "neptune", snap.Query)
	ids := make([]int64, 0, len(snap.Spots))
	for _, s := range snap.Spots {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{1, 2, 5}, ids)
	assert.Equal(t, available, snap.AvailableCount, "filtering does not change availability")

	h.app.Search("")
	assert.Len(t, h.app.Snapshot().Spots, h.catalog.Len())
}

func TestSelectUnknownSpot(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	assert.ErrorIs(t, h.app.SelectSpot(404), domain.ErrNotFound)
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Choose, snap.Screen)
	assert.Nil(t, snap.Pending)
}

func TestNavigate(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.app.Navigate(navigation.Manage), domain.ErrNoSession)
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Login, snap.Screen)
	assert.Equal(t, noticeSignInRequired, snap.Notice)

	h.login(t)

	require.NoError(t, h.app.Navigate(navigation.Reserve))
	assert.Equal(t, navigation.Choose, h.app.Snapshot().Screen, "no pending selection")

	require.NoError(t, h.app.Navigate(navigation.Confirm))
	assert.Equal(t, navigation.Choose, h.app.Snapshot().Screen, "no receipt")

	require.NoError(t, h.app.Navigate(navigation.Manage))
	assert.Equal(t, navigation.Manage, h.app.Snapshot().Screen)

	require.NoError(t, h.app.Navigate(navigation.Login))
	assert.Equal(t, navigation.Manage, h.app.Snapshot().Screen, "signed-in users log out through the dialog")

	require.NoError(t, h.app.Back())
	assert.Equal(t, navigation.Choose, h.app.Snapshot().Screen)
}

func TestBackKeepsPendingSelection(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	require.NoError(t, h.app.SelectSpot(2))

	require.NoError(t, h.app.Back())
	assert.Equal(t, navigation.Choose, h.app.Snapshot().Screen)

	require.NoError(t, h.app.Navigate(navigation.Reserve))
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Reserve, snap.Screen)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, int64(2), snap.Pending.SpotID)
}

func TestDoneLeavesConfirm(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.reserve(t, 5)

	require.NoError(t, h.app.Done())
	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Choose, snap.Screen)
	assert.NotNil(t, snap.Receipt)
}

func TestLogoutKeepsFavoritesAndReservations(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.reserve(t, 1)
	require.NoError(t, h.app.ToggleFavorite(context.Background(), 3))

	require.NoError(t, h.app.RequestLogout())
	require.NotNil(t, h.app.Snapshot().Dialog)
	assert.Equal(t, DialogLogout, h.app.Snapshot().Dialog.Kind)

	require.NoError(t, h.app.ConfirmDialog(context.Background()))

	snap := h.app.Snapshot()
	assert.Equal(t, navigation.Login, snap.Screen)
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.Pending)
	assert.Nil(t, snap.Receipt)
	assert.Len(t, snap.Favorites, 1)
	assert.Len(t, snap.Reservations, 1)
	h.assertReservedMatchesLedger(t, 6)
}

func TestLogoutWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.app.RequestLogout())
	assert.Nil(t, h.app.Snapshot().Dialog)
}

func TestSnapshotFallsBackToUnknownSpot(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.ledger.Create(99, "A B", "ABC-123", fixedNow)
	require.NoError(t, err)

	snap := h.app.Snapshot()
	require.Len(t, snap.Reservations, 1)
	assert.Equal(t, "Unknown Spot", snap.Reservations[0].SpotTitle)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	h := newHarness(t, nil)

	var got []Snapshot
	unsubscribe := h.app.Subscribe(func(s Snapshot) { got = append(got, s) })

	fut, err := h.app.SubmitLogin(context.Background(), LoginForm{Email: "a@b.co", Password: "x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{TaskLogin}, got[0].Busy)

	h.sched.fire()
	require.NoError(t, fut.Err())
	require.Len(t, got, 2)
	assert.Equal(t, navigation.Choose, got[1].Screen)
	assert.Empty(t, got[1].Busy, "settled snapshot no longer reports the task")

	h.app.Refresh()
	assert.Len(t, got, 3)

	unsubscribe()
	h.app.Search("lot")
	assert.Len(t, got, 3)
}

func TestReservedMatchesLedgerThroughMixedSequence(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	refs := map[int64]string{}
	for _, id := range []int64{1, 3, 5} {
		refs[id] = h.reserve(t, id)
		h.assertReservedMatchesLedger(t, 6)
	}

	require.NoError(t, h.app.Navigate(navigation.Manage))
	require.NoError(t, h.app.RequestCancel(refs[3]))
	require.NoError(t, h.app.ConfirmDialog(context.Background()))
	h.assertReservedMatchesLedger(t, 6)

	h.reserve(t, 3)
	h.assertReservedMatchesLedger(t, 6)

	snap := h.app.Snapshot()
	require.Len(t, snap.Reservations, 3)
	assert.Equal(t, int64(3), snap.Reservations[0].SpotID, "newest first")
	assert.Equal(t, h.catalog.Len()-4, snap.AvailableCount)
}

func TestScreenChangesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newLoggedHarness(t, nil, logger)
	h.login(t)
	h.reserve(t, 1)

	out := buf.String()
	assert.Contains(t, out, `"from":"login","to":"choose"`)
	assert.Contains(t, out, `"from":"choose","to":"reserve"`)
	assert.Contains(t, out, `"from":"reserve","to":"confirm"`)
}
