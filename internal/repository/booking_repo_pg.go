package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/pricing"
)

const bookingColumns = `id, booking_number, listing_id, customer_id, check_in, check_out, guests,
	special_requests, total_price_cents, status, payment_status, payment_ref, created_at, updated_at`

type BookingRepository interface {
	// CreatePending atomically snapshots the listing, re-checks availability and
	// inserts the booking in PENDING/NONE. It fills ID, BookingNumber,
	// TotalPriceCents and the timestamps on success.
	CreatePending(ctx context.Context, booking *domain.Booking, nights int) error
	// ConfirmPending is the serialised PENDING→CONFIRMED gate. It locks the
	// listing row, re-runs the overlap and blackout checks and flips the status,
	// all in one transaction. A lost availability race surfaces as a conflict or
	// blackout error with the booking left in PENDING.
	ConfirmPending(ctx context.Context, bookingID string) (*domain.Booking, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error)
	// UpdateStatus flips status conditionally on the expected current status,
	// so concurrent double-fires are no-ops.
	UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error)
	// UpdatePayment flips payment status conditionally on the expected current
	// payment status and records the payment reference.
	UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, paymentRef string) (*domain.Booking, error)
	HasOverlap(ctx context.Context, listingID string, checkIn, checkOut time.Time) (bool, error)
	BookedRanges(ctx context.Context, listingID string, from, to time.Time) ([]domain.DateRange, error)
	// SweepInProgress promotes every CONFIRMED booking whose check-in has been
	// reached; SweepCompleted completes every IN_PROGRESS booking past check-out.
	// Both are conditional bulk updates and therefore idempotent.
	SweepInProgress(ctx context.Context, now time.Time) ([]domain.Booking, error)
	SweepCompleted(ctx context.Context, now time.Time) ([]domain.Booking, error)
	// RecordPaymentEvent inserts into the payment-event dedup table and reports
	// whether the event was seen for the first time.
	RecordPaymentEvent(ctx context.Context, bookingID, paymentRef, eventType string) (bool, error)
	// DeletePaymentEvent removes a dedup row so the provider's redelivery of a
	// half-handled event is applied instead of swallowed as a duplicate.
	DeletePaymentEvent(ctx context.Context, bookingID, paymentRef, eventType string) error
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking, nights int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var active bool
	var dailyPriceCents int64
	err = tx.QueryRow(ctx, `SELECT active, daily_price_cents FROM listings WHERE id=$1 FOR UPDATE`, booking.ListingID).
		Scan(&active, &dailyPriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound("listing not found")
	}
	if err != nil {
		return domain.Unavailable("read listing", err)
	}
	if !active {
		return domain.Inactive("listing is not active")
	}

	if err := checkInterval(ctx, tx, booking.ListingID, booking.CheckIn, booking.CheckOut, ""); err != nil {
		return err
	}

	if err := tx.QueryRow(ctx, `SELECT nextval('booking_numbers')`).Scan(&booking.BookingNumber); err != nil {
		return domain.Unavailable("allocate booking number", err)
	}

	booking.TotalPriceCents = pricing.Total(dailyPriceCents, nights)
	booking.Status = domain.BookingStatusPending
	booking.PaymentStatus = domain.PaymentStatusNone

	err = tx.QueryRow(ctx, `INSERT INTO bookings
		(id, booking_number, listing_id, customer_id, check_in, check_out, guests, special_requests, total_price_cents, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		booking.ID, booking.BookingNumber, booking.ListingID, booking.CustomerID,
		booking.CheckIn, booking.CheckOut, booking.Guests, booking.SpecialRequests,
		booking.TotalPriceCents, booking.Status, booking.PaymentStatus).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return domain.Unavailable("insert booking", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable("commit booking", err)
	}
	return nil
}

func (r *PGBookingRepository) ConfirmPending(ctx context.Context, bookingID string) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, domain.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var listingID string
	var checkIn, checkOut time.Time
	var status domain.BookingStatus
	err = tx.QueryRow(ctx, `SELECT listing_id, check_in, check_out, status FROM bookings WHERE id=$1 FOR UPDATE`, bookingID).
		Scan(&listingID, &checkIn, &checkOut, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("booking not found")
	}
	if err != nil {
		return nil, domain.Unavailable("read booking", err)
	}
	if status != domain.BookingStatusPending {
		return nil, domain.InvalidTransition(status, domain.BookingStatusConfirmed)
	}

	// The listing row lock is the per-listing serialisation point: only one
	// confirm per listing can hold it, and the availability re-check below runs
	// while it is held.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM listings WHERE id=$1 FOR UPDATE`, listingID); err != nil {
		return nil, domain.Unavailable("lock listing", err)
	}

	if err := checkInterval(ctx, tx, listingID, checkIn, checkOut, bookingID); err != nil {
		return nil, err
	}

	b, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 RETURNING `+bookingColumns,
		domain.BookingStatusConfirmed, bookingID))
	if err != nil {
		return nil, domain.Unavailable("confirm booking", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Unavailable("commit confirm", err)
	}
	return b, nil
}

// checkInterval re-runs the oracle's queries inside a transaction. excludeID
// skips the booking being confirmed so it does not conflict with itself.
func checkInterval(ctx context.Context, tx pgx.Tx, listingID string, checkIn, checkOut time.Time, excludeID string) error {
	var overlaps bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE listing_id=$1 AND id != $2
			  AND status IN ('CONFIRMED', 'IN_PROGRESS')
			  AND check_in < $4 AND check_out > $3)`,
		listingID, excludeID, checkIn, checkOut).Scan(&overlaps)
	if err != nil {
		return domain.Unavailable("check overlap", err)
	}
	if overlaps {
		return domain.Conflict("dates conflict with an existing booking")
	}

	var reason string
	err = tx.QueryRow(ctx, `SELECT reason FROM blackout_dates
		WHERE listing_id=$1 AND date >= $2 AND date < $3 ORDER BY date LIMIT 1`,
		listingID, checkIn, checkOut).Scan(&reason)
	if err == nil {
		return domain.Blackout(reason)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Unavailable("check blackouts", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("booking not found")
	}
	if err != nil {
		return nil, domain.Unavailable("read booking", err)
	}
	return b, nil
}

func (r *PGBookingRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, domain.Unavailable("list bookings", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3 RETURNING `+bookingColumns, to, id, from))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.InvalidTransition(from, to)
	}
	if err != nil {
		return nil, domain.Unavailable("update status", err)
	}
	return b, nil
}

func (r *PGBookingRepository) UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, paymentRef string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings SET payment_status=$1, payment_ref=COALESCE(NULLIF($2, ''), payment_ref), updated_at=now()
		WHERE id=$3 AND payment_status=$4 RETURNING `+bookingColumns, to, paymentRef, id, from))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Conflict("payment status changed concurrently")
	}
	if err != nil {
		return nil, domain.Unavailable("update payment status", err)
	}
	return b, nil
}

func (r *PGBookingRepository) HasOverlap(ctx context.Context, listingID string, checkIn, checkOut time.Time) (bool, error) {
	var overlaps bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE listing_id=$1 AND status IN ('CONFIRMED', 'IN_PROGRESS')
			  AND check_in < $3 AND check_out > $2)`,
		listingID, checkIn, checkOut).Scan(&overlaps)
	if err != nil {
		return false, domain.Unavailable("check overlap", err)
	}
	return overlaps, nil
}

func (r *PGBookingRepository) BookedRanges(ctx context.Context, listingID string, from, to time.Time) ([]domain.DateRange, error) {
	rows, err := r.db.Query(ctx, `SELECT check_in, check_out FROM bookings
		WHERE listing_id=$1 AND status IN ('CONFIRMED', 'IN_PROGRESS')
		  AND check_in < $3 AND check_out > $2
		ORDER BY check_in`, listingID, from, to)
	if err != nil {
		return nil, domain.Unavailable("list booked ranges", err)
	}
	defer rows.Close()

	ranges := make([]domain.DateRange, 0)
	for rows.Next() {
		var dr domain.DateRange
		if err := rows.Scan(&dr.CheckIn, &dr.CheckOut); err != nil {
			return nil, domain.Unavailable("scan booked range", err)
		}
		ranges = append(ranges, dr)
	}
	return ranges, rows.Err()
}

func (r *PGBookingRepository) SweepInProgress(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE status=$2 AND check_in <= $3 RETURNING `+bookingColumns,
		domain.BookingStatusInProgress, domain.BookingStatusConfirmed, now)
	if err != nil {
		return nil, domain.Unavailable("sweep in-progress", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PGBookingRepository) SweepCompleted(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE status=$2 AND check_out <= $3 RETURNING `+bookingColumns,
		domain.BookingStatusCompleted, domain.BookingStatusInProgress, now)
	if err != nil {
		return nil, domain.Unavailable("sweep completed", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PGBookingRepository) RecordPaymentEvent(ctx context.Context, bookingID, paymentRef, eventType string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `INSERT INTO payment_events (booking_id, payment_ref, event_type)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, bookingID, paymentRef, eventType)
	if err != nil {
		return false, domain.Unavailable("record payment event", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *PGBookingRepository) DeletePaymentEvent(ctx context.Context, bookingID, paymentRef, eventType string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM payment_events WHERE booking_id=$1 AND payment_ref=$2 AND event_type=$3`,
		bookingID, paymentRef, eventType)
	if err != nil {
		return domain.Unavailable("delete payment event", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.BookingNumber, &b.ListingID, &b.CustomerID, &b.CheckIn, &b.CheckOut,
		&b.Guests, &b.SpecialRequests, &b.TotalPriceCents, &b.Status, &b.PaymentStatus, &b.PaymentRef,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, domain.Unavailable("scan booking", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
