package domain

import "time"

// Platform is a streaming service that hosts titles.
type Platform struct {
	ID        string
	Name      string
	About     string
	Website   string
	Titles    []Title
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Title is a watchlist entry together with its rating aggregate.
type Title struct {
	ID             string
	Name           string
	Storyline      string
	PlatformID     string
	PlatformName   string
	Active         bool
	AverageRating  float64
	NumberOfRating int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
