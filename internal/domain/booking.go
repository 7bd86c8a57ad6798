package domain

import (
	"strconv"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
)

// IsTerminal reports whether the booking can never change status again.
// Terminal bookings are kept for audit, never deleted.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = "NONE"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type Booking struct {
	ID              string
	BookingNumber   int64
	ListingID       string
	CustomerID      string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	SpecialRequests string
	TotalPriceCents int64
	Status          BookingStatus
	PaymentStatus   PaymentStatus
	PaymentRef      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookingNumberString renders the monotonic booking number the way it is
// shown to users and embedded in notifications.
func (b *Booking) BookingNumberString() string {
	return strconv.FormatInt(b.BookingNumber, 10)
}

// Overlaps reports whether the booking's half-open [CheckIn, CheckOut)
// interval intersects [in, out).
func (b *Booking) Overlaps(in, out time.Time) bool {
	return b.CheckIn.Before(out) && b.CheckOut.After(in)
}

// DateRange is a half-open [CheckIn, CheckOut) interval.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}
