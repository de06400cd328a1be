package domain

import "time"

// Rider represents a passenger in the system. Only the fields snapshotted
// onto rides are kept here.
type Rider struct {
	ID        string
	Name      string
	Phone     string
	CreatedAt time.Time
}
