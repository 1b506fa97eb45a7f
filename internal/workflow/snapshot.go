package workflow

import (
	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/navigation"
)

const receiptDateLayout = "Monday, January 2, 2006"

// Snapshot is an immutable read model of one App. Renderers draw from it and
// never touch App state directly.
type Snapshot struct {
	Screen            navigation.Screen `json:"screen"`
	Session           *domain.Session   `json:"session,omitempty"`
	Query             string            `json:"query"`
	Spots             []SpotView        `json:"spots"`
	AvailableCount    int               `json:"available_count"`
	Favorites         []FavoriteView    `json:"favorites"`
	FavoritesDegraded bool              `json:"favorites_degraded"`
	Reservations      []ReservationView `json:"reservations"`
	Pending           *PendingView      `json:"pending,omitempty"`
	Receipt           *Receipt          `json:"receipt,omitempty"`
	Dialog            *DialogView       `json:"dialog,omitempty"`
	Busy              []string          `json:"busy"`
	Notice            string            `json:"notice,omitempty"`
}

type SpotView struct {
	domain.Spot
	Favorite bool `json:"favorite"`
}

type FavoriteView struct {
	SpotID int64  `json:"spot_id"`
	Title  string `json:"title"`
}

type ReservationView struct {
	domain.Reservation
	SpotTitle string `json:"spot_title"`
}

// PendingView summarizes the spot being reserved and the form defaults.
type PendingView struct {
	SpotID     int64  `json:"spot_id"`
	Title      string `json:"title"`
	Campus     string `json:"campus"`
	Summary    string `json:"summary"`
	HolderName string `json:"holder_name"`
	Date       string `json:"date"`
}

// Receipt holds the display fields of the last confirmed reservation.
type Receipt struct {
	SpotTitle string `json:"spot_title"`
	Location  string `json:"location"`
	Holder    string `json:"holder"`
	Date      string `json:"date"`
	Reference string `json:"reference"`
}

type DialogView struct {
	Kind      DialogKind `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Reference string     `json:"reference,omitempty"`
}

func newReceipt(spot domain.Spot, r domain.Reservation) *Receipt {
	return &Receipt{
		SpotTitle: spot.Title,
		Location:  spot.Campus + " · " + spot.Address,
		Holder:    r.HolderName + " (" + r.VehicleLabel + ")",
		Date:      r.Date.Format(receiptDateLayout),
		Reference: r.Reference,
	}
}

// snapshotLocked builds a Snapshot. a.mu must be held.
func (a *App) snapshotLocked() Snapshot {
	snap := Snapshot{
		Screen:            a.nav.Current(),
		Query:             a.query,
		AvailableCount:    a.catalog.AvailableCount(),
		FavoritesDegraded: a.favorites.Degraded(),
		Busy:              a.tasks.InFlight(),
		Notice:            a.notice,
	}

	if a.session != nil {
		s := *a.session
		snap.Session = &s
	}

	spots := a.catalog.Filter(a.query)
	snap.Spots = make([]SpotView, 0, len(spots))
	for _, s := range spots {
		snap.Spots = append(snap.Spots, SpotView{Spot: s, Favorite: a.favorites.Contains(s.ID)})
	}

	ids := a.favorites.IDs()
	snap.Favorites = make([]FavoriteView, 0, len(ids))
	for _, id := range ids {
		s, ok := a.catalog.Find(id)
		if !ok {
			continue
		}
		snap.Favorites = append(snap.Favorites, FavoriteView{SpotID: id, Title: s.Title})
	}

	active := a.ledger.ListActive()
	snap.Reservations = make([]ReservationView, 0, len(active))
	for _, r := range active {
		title := "Unknown Spot"
		if s, ok := a.catalog.Find(r.SpotID); ok {
			title = s.Title
		}
		snap.Reservations = append(snap.Reservations, ReservationView{Reservation: r, SpotTitle: title})
	}

	if a.pending != nil {
		if s, ok := a.catalog.Find(a.pending.spotID); ok {
			snap.Pending = &PendingView{
				SpotID:     s.ID,
				Title:      s.Title,
				Campus:     s.Campus,
				Summary:    s.Title + " — " + s.Campus,
				HolderName: a.pending.holderName,
				Date:       a.pending.date.Format(domain.DateLayout),
			}
		}
	}

	if a.receipt != nil {
		r := *a.receipt
		snap.Receipt = &r
	}

	if a.dialog != nil {
		d := a.dialog.view()
		snap.Dialog = &d
	}

	return snap
}
