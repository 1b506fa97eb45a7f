package domain

import "time"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Spot struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Campus   string       `json:"campus"`
	Address  string       `json:"address"`
	Reserved bool         `json:"reserved"`
	Location *Coordinates `json:"location,omitempty"`
}

type Reservation struct {
	ID           int64     `json:"id"`
	SpotID       int64     `json:"spot_id"`
	HolderName   string    `json:"holder_name"`
	VehicleLabel string    `json:"vehicle_label"`
	Date         time.Time `json:"date"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the mock-authenticated user. It is never checked against a
// backing store.
type Session struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// DateLayout is the wire format of reservation dates.
const DateLayout = "2006-01-02"
