package models

import "time"

// Website is a third-party tool whose accounts are rented out.
// ValidityHours is how long a single rental of one of its accounts lasts.
type Website struct {
	ID            string
	Name          string
	URL           string
	ValidityHours int
	Description   string
	CreatedAt     time.Time
}
