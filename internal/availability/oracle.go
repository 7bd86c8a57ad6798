// Package availability answers whether a stay interval is free on a listing.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/pricing"
)

type State int

const (
	Available State = iota
	ConflictBooking
	BlackedOut
)

// Result carries the oracle's verdict; Reason is set for BlackedOut.
type Result struct {
	State  State
	Reason string
}

type BookingStore interface {
	HasOverlap(ctx context.Context, listingID string, checkIn, checkOut time.Time) (bool, error)
}

type BlackoutStore interface {
	FirstBlackout(ctx context.Context, listingID string, from, to time.Time) (*domain.BlackoutEntry, error)
}

type Oracle struct {
	bookings  BookingStore
	blackouts BlackoutStore
	loc       *time.Location
}

func NewOracle(bookings BookingStore, blackouts BlackoutStore, loc *time.Location) *Oracle {
	return &Oracle{bookings: bookings, blackouts: blackouts, loc: loc}
}

// Check answers for the half-open interval [checkIn, checkOut). Inputs must be
// day-aligned in the reference zone with checkIn before checkOut. PENDING
// bookings never count as conflicts: holding capacity happens at the
// CONFIRMED gate, where the store re-runs these queries under a listing lock.
func (o *Oracle) Check(ctx context.Context, listingID string, checkIn, checkOut time.Time) (Result, error) {
	if err := ValidateInterval(checkIn, checkOut, o.loc); err != nil {
		return Result{}, err
	}

	overlaps, err := o.bookings.HasOverlap(ctx, listingID, checkIn, checkOut)
	if err != nil {
		return Result{}, err
	}
	if overlaps {
		return Result{State: ConflictBooking}, nil
	}

	entry, err := o.blackouts.FirstBlackout(ctx, listingID, checkIn, checkOut)
	if err != nil {
		if errors.Is(err, domain.NotFound("")) {
			return Result{State: Available}, nil
		}
		return Result{}, err
	}
	return Result{State: BlackedOut, Reason: entry.Reason}, nil
}

// ValidateInterval rejects intervals that are not day-aligned in loc or not
// strictly increasing.
func ValidateInterval(checkIn, checkOut time.Time, loc *time.Location) error {
	if !pricing.AlignedToDay(checkIn, loc) {
		return domain.Validation("check-in must fall on a day boundary")
	}
	if !pricing.AlignedToDay(checkOut, loc) {
		return domain.Validation("check-out must fall on a day boundary")
	}
	if !checkIn.Before(checkOut) {
		return domain.Validation("check-out must be after check-in")
	}
	return nil
}
