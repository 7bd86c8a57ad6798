// Package pricing derives booking totals from the listing's daily price.
// Money is integer cents end to end; multiplying an exact cents amount by a
// whole number of nights never produces a fractional remainder, so the
// half-up rounding rule is trivially satisfied.
package pricing

import "time"

const day = 24 * time.Hour

// Nights counts the nights in the half-open interval [checkIn, checkOut),
// rounding any partial day up. Inputs are expected in the engine's reference
// zone; day-aligned inputs yield the plain calendar-night count.
func Nights(checkIn, checkOut time.Time) int {
	span := checkOut.Sub(checkIn)
	if span <= 0 {
		return 0
	}
	n := span / day
	if span%day != 0 {
		n++
	}
	return int(n)
}

// Total computes the booking price in cents from the daily price snapshot
// taken at reservation time.
func Total(dailyPriceCents int64, nights int) int64 {
	return dailyPriceCents * int64(nights)
}

// AlignedToDay reports whether t falls exactly on a day boundary in loc.
func AlignedToDay(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	h, m, s := local.Clock()
	return h == 0 && m == 0 && s == 0 && local.Nanosecond() == 0
}

// TruncateToDay returns midnight of t's calendar day in loc.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
