package catalog

import (
	"fmt"
	"strings"

	"github.com/vbonduro/sparx/internal/domain"
)

// DefaultSpots returns a fresh copy of the demo catalog. Spot 6 starts out
// reserved by someone outside this session.
func DefaultSpots() []domain.Spot {
	return []domain.Spot{
		{ID: 1, Title: "Spot 1A (AEB Front)", Campus: "BSU - Alangilan", Address: "Neptune St.", Location: &domain.Coordinates{Lat: 13.755, Lng: 121.052}},
		{ID: 2, Title: "Spot 2A (AEB Front)", Campus: "BSU - Alangilan", Address: "Neptune St.", Location: &domain.Coordinates{Lat: 13.7555, Lng: 121.0525}},
		{ID: 3, Title: "Lot A-01", Campus: "North", Address: "Mercury St.", Location: &domain.Coordinates{Lat: 13.754, Lng: 121.051}},
		{ID: 4, Title: "Lot B-12", Campus: "South", Address: "Mars St.", Location: &domain.Coordinates{Lat: 13.753, Lng: 121.053}},
		{ID: 5, Title: "Spot 1S (Steer Hub)", Campus: "BSU - Alangilan", Address: "Neptune St.", Location: &domain.Coordinates{Lat: 13.756, Lng: 121.054}},
		{ID: 6, Title: "Lot C-05", Campus: "East", Address: "Venus St.", Reserved: true, Location: &domain.Coordinates{Lat: 13.7545, Lng: 121.0535}},
	}
}

// Catalog holds spots in insertion order. It is not safe for concurrent use;
// the owning workflow serializes access.
type Catalog struct {
	spots []domain.Spot
	index map[int64]int
}

func New(spots []domain.Spot) (*Catalog, error) {
	c := &Catalog{index: make(map[int64]int, len(spots))}
	for _, s := range spots {
		if err := c.Add(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewDefault builds a catalog over DefaultSpots.
func NewDefault() *Catalog {
	c, err := New(DefaultSpots())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Add(s domain.Spot) error {
	if s.ID <= 0 {
		return fmt.Errorf("spot id must be positive, got %d", s.ID)
	}
	if _, exists := c.index[s.ID]; exists {
		return fmt.Errorf("duplicate spot id %d", s.ID)
	}
	s.Location = copyCoords(s.Location)
	c.index[s.ID] = len(c.spots)
	c.spots = append(c.spots, s)
	return nil
}

func (c *Catalog) List() []domain.Spot {
	out := make([]domain.Spot, len(c.spots))
	for i, s := range c.spots {
		out[i] = cloneSpot(s)
	}
	return out
}

func (c *Catalog) Find(id int64) (domain.Spot, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Spot{}, false
	}
	return cloneSpot(c.spots[i]), true
}

// Filter returns spots whose "title campus address" contains query,
// ignoring case. An empty query matches everything.
func (c *Catalog) Filter(query string) []domain.Spot {
	q := strings.ToLower(query)
	out := make([]domain.Spot, 0, len(c.spots))
	for _, s := range c.spots {
		haystack := strings.ToLower(s.Title + " " + s.Campus + " " + s.Address)
		if strings.Contains(haystack, q) {
			out = append(out, cloneSpot(s))
		}
	}
	return out
}

func (c *Catalog) SetReserved(id int64, reserved bool) error {
	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("spot %d: %w", id, domain.ErrNotFound)
	}
	c.spots[i].Reserved = reserved
	return nil
}

func (c *Catalog) AvailableCount() int {
	n := 0
	for _, s := range c.spots {
		if !s.Reserved {
			n++
		}
	}
	return n
}

func (c *Catalog) Len() int {
	return len(c.spots)
}

func cloneSpot(s domain.Spot) domain.Spot {
	s.Location = copyCoords(s.Location)
	return s
}

func copyCoords(p *domain.Coordinates) *domain.Coordinates {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
