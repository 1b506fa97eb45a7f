package workflow

import "fmt"

// DialogKind names the action a confirmation dialog is gating.
type DialogKind string

const (
	DialogCancelReservation DialogKind = "cancel_reservation"
	DialogLogout            DialogKind = "logout"
	DialogClearFavorites    DialogKind = "clear_favorites"
)

type dialog struct {
	kind           DialogKind
	reference      string
	returnToChoose bool
}

func (d *dialog) view() DialogView {
	v := DialogView{Kind: d.kind, Reference: d.reference}
	switch d.kind {
	case DialogCancelReservation:
		v.Title = "Cancel Reservation?"
		v.Message = fmt.Sprintf("Are you sure you want to cancel booking reference %s? This action cannot be undone.", d.reference)
	case DialogLogout:
		v.Title = "Confirm Logout"
		v.Message = "Are you sure you want to end your session?"
	case DialogClearFavorites:
		v.Title = "Clear Favorites"
		v.Message = "Are you sure you want to clear your favorite spots?"
	}
	return v
}
