package models

import "time"

// Position is a single geographic fix. Both coordinates are always present;
// an absent position is represented by a nil *Position, never by a partially
// filled one.
type Position struct {
	Latitude   float64   `json:"latitude" db:"latitude"`
	Longitude  float64   `json:"longitude" db:"longitude"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}
