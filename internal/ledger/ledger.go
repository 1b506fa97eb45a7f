package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/vbonduro/sparx/internal/domain"
)

const (
	referencePrefix   = "SPX-"
	referenceLength   = 6
	referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// maxReferenceAttempts bounds regeneration when a generated reference
	// collides with an active one.
	maxReferenceAttempts = 32
)

// ReferenceGenerator produces candidate booking references.
type ReferenceGenerator func() (string, error)

// RandomReference returns "SPX-" followed by six uppercase alphanumerics.
func RandomReference() (string, error) {
	buf := make([]byte, referenceLength)
	base := big.NewInt(int64(len(referenceAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference: %w", err)
		}
		buf[i] = referenceAlphabet[n.Int64()]
	}
	return referencePrefix + string(buf), nil
}

// Ledger holds active reservations in creation order. It is not safe for
// concurrent use; the owning workflow serializes access.
type Ledger struct {
	active []domain.Reservation
	newRef ReferenceGenerator
	now    func() time.Time
	lastID int64
}

type Option func(*Ledger)

func WithReferenceGenerator(g ReferenceGenerator) Option {
	return func(l *Ledger) { l.newRef = g }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{newRef: RandomReference, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create records a reservation for spotID. It refuses a spot that already
// has an active reservation and guarantees the reference is unique among
// active reservations.
func (l *Ledger) Create(spotID int64, holderName, vehicleLabel string, date time.Time) (domain.Reservation, error) {
	if _, ok := l.ActiveForSpot(spotID); ok {
		return domain.Reservation{}, fmt.Errorf("spot %d: %w", spotID, domain.ErrAlreadyReserved)
	}

	ref, err := l.uniqueReference()
	if err != nil {
		return domain.Reservation{}, err
	}

	created := l.now()
	id := created.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id

	r := domain.Reservation{
		ID:           id,
		SpotID:       spotID,
		HolderName:   holderName,
		VehicleLabel: vehicleLabel,
		Date:         date,
		Reference:    ref,
		CreatedAt:    created,
	}
	l.active = append(l.active, r)
	return r, nil
}

func (l *Ledger) uniqueReference() (string, error) {
	for range maxReferenceAttempts {
		ref, err := l.newRef()
		if err != nil {
			return "", err
		}
		if _, taken := l.Find(ref); !taken {
			return ref, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique reference after %d attempts", maxReferenceAttempts)
}

// Cancel removes the reservation carrying reference and returns it.
func (l *Ledger) Cancel(reference string) (domain.Reservation, error) {
	for i, r := range l.active {
		if r.Reference == reference {
			l.active = append(l.active[:i], l.active[i+1:]...)
			return r, nil
		}
	}
	return domain.Reservation{}, fmt.Errorf("reservation %s: %w", reference, domain.ErrNotFound)
}

func (l *Ledger) Find(reference string) (domain.Reservation, bool) {
	for _, r := range l.active {
		if r.Reference == reference {
			return r, true
		}
	}
	return domain.Reservation{}, false
}

func (l *Ledger) ActiveForSpot(spotID int64) (domain.Reservation, bool) {
	for _, r := range l.active {
		if r.SpotID == spotID {
			return r, true
		}
	}
	return domain.Reservation{}, false
}

// ListActive returns active reservations, most recently created first.
func (l *Ledger) ListActive() []domain.Reservation {
	out := make([]domain.Reservation, 0, len(l.active))
	for i := len(l.active) - 1; i >= 0; i-- {
		out = append(out, l.active[i])
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.active)
}
