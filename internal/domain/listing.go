package domain

import "time"

type Listing struct {
	ID              string
	OwnerID         string
	Title           string
	Active          bool
	DailyPriceCents int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BlackoutEntry marks a single calendar day as unavailable regardless of
// bookings. Date is truncated to midnight in the engine's reference zone.
type BlackoutEntry struct {
	ListingID string
	Date      time.Time
	Reason    string
}
