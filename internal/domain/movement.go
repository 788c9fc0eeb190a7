package domain

import "time"

// Movement is the parent campaign a run of pieces belongs to.
type Movement struct {
	ID        string
	Title     string
	CreatedAt time.Time
}
