// Package payments consumes externally verified payment events and drives the
// payment state machine plus its coupling into the booking lifecycle.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/repository"
)

// Event is the inbound payment webhook payload. Signature verification is the
// payment collaborator's job; by the time an event reaches the reconciler it
// is trusted.
type Event struct {
	Type        string `json:"type"`
	BookingID   string `json:"booking_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
}

const (
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventRefunded  = "refunded"
)

type Clock interface {
	Now() time.Time
}

type Locker interface {
	AcquireListingLock(ctx context.Context, listingID string, ttl time.Duration) (string, error)
	ReleaseListingLock(ctx context.Context, listingID, token string) error
}

type Emitter interface {
	Notify(ctx context.Context, n notify.Notification)
	EmitBookingEvent(ctx context.Context, ev notify.BookingEvent)
}

type Reconciler struct {
	bookings repository.BookingRepository
	locker   Locker
	emitter  Emitter
	clock    Clock
	lockTTL  time.Duration
	log      zerolog.Logger
}

func NewReconciler(bookings repository.BookingRepository, locker Locker, emitter Emitter, clk Clock, lockTTL time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		bookings: bookings,
		locker:   locker,
		emitter:  emitter,
		clock:    clk,
		lockTTL:  lockTTL,
		log:      log,
	}
}

// Handle processes one payment event. Events may arrive duplicated or out of
// order: the (bookingID, paymentRef, type) dedup insert makes replays no-ops,
// and each branch tolerates a payment status that has already moved on. When
// handling fails after the dedup insert, the row is removed again so the
// provider's retry is applied rather than dropped as a duplicate.
func (r *Reconciler) Handle(ctx context.Context, ev Event) error {
	if ev.BookingID == "" || ev.PaymentRef == "" {
		return domain.Validation("payment event requires booking_id and payment_ref")
	}

	fresh, err := r.bookings.RecordPaymentEvent(ctx, ev.BookingID, ev.PaymentRef, ev.Type)
	if err != nil {
		return err
	}
	if !fresh {
		r.log.Info().
			Str("booking_id", ev.BookingID).
			Str("payment_ref", ev.PaymentRef).
			Str("type", ev.Type).
			Msg("duplicate payment event ignored")
		return nil
	}

	if err := r.apply(ctx, ev); err != nil {
		if delErr := r.bookings.DeletePaymentEvent(context.WithoutCancel(ctx), ev.BookingID, ev.PaymentRef, ev.Type); delErr != nil {
			return errors.Join(err, delErr)
		}
		return err
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, ev Event) error {
	b, err := r.bookings.GetByID(ctx, ev.BookingID)
	if err != nil {
		return err
	}

	switch ev.Type {
	case EventCompleted:
		return r.handleCompleted(ctx, b, ev)
	case EventFailed:
		return r.handleFailed(ctx, b, ev)
	case EventRefunded:
		return r.handleRefunded(ctx, b, ev)
	default:
		return domain.Validation("unknown payment event type %q", ev.Type)
	}
}

func (r *Reconciler) handleCompleted(ctx context.Context, b *domain.Booking, ev Event) error {
	// A completed capture implies an attempt: NONE and FAILED move through
	// PENDING on the way to COMPLETED.
	if b.PaymentStatus == domain.PaymentStatusNone || b.PaymentStatus == domain.PaymentStatusFailed {
		updated, err := r.bookings.UpdatePayment(ctx, b.ID, b.PaymentStatus, domain.PaymentStatusPending, ev.PaymentRef)
		if err != nil {
			return err
		}
		b = updated
	}
	if b.PaymentStatus != domain.PaymentStatusPending {
		r.log.Warn().
			Str("booking_id", b.ID).
			Str("payment_status", string(b.PaymentStatus)).
			Msg("completed event for payment not in PENDING, ignoring")
		return nil
	}

	updated, err := r.bookings.UpdatePayment(ctx, b.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, ev.PaymentRef)
	if err != nil {
		return err
	}
	b = updated

	r.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: b.CustomerID,
		BookingID:       b.ID,
		Type:            notify.TypePaymentConfirmed,
		Title:           "Payment Confirmed",
		Body:            fmt.Sprintf("Your payment for booking #%s has been confirmed", b.BookingNumberString()),
		OccurredAt:      r.clock.Now(),
	})

	if b.Status != domain.BookingStatusPending {
		return nil
	}
	return r.confirmPaid(ctx, b)
}

// confirmPaid attempts the payment-driven PENDING→CONFIRMED transition. Losing
// the availability re-check is recovery, not an error: the booking is
// cancelled and a refund of the captured amount is queued.
func (r *Reconciler) confirmPaid(ctx context.Context, b *domain.Booking) error {
	unlock, err := r.lockListing(ctx, b.ListingID)
	if err != nil {
		return err
	}
	defer unlock()

	confirmed, err := r.bookings.ConfirmPending(ctx, b.ID)
	if err == nil {
		r.log.Info().Str("booking_id", confirmed.ID).Msg("booking confirmed by payment")
		r.emitter.Notify(ctx, notify.Notification{
			RecipientUserID: confirmed.CustomerID,
			BookingID:       confirmed.ID,
			Type:            notify.TypeBookingConfirmed,
			Title:           "Booking Confirmed",
			Body:            fmt.Sprintf("Booking #%s has been confirmed", confirmed.BookingNumberString()),
			OccurredAt:      r.clock.Now(),
		})
		r.emitBookingEvent(ctx, "booking_confirmed", confirmed)
		return nil
	}

	code := domain.CodeOf(err)
	if code != domain.CodeConflict && code != domain.CodeBlackout {
		return err
	}

	cancelled, cancelErr := r.bookings.UpdateStatus(ctx, b.ID, domain.BookingStatusPending, domain.BookingStatusCancelled)
	if cancelErr != nil {
		return errors.Join(err, cancelErr)
	}

	r.log.Warn().
		Str("booking_id", cancelled.ID).
		Str("reason", string(code)).
		Msg("paid booking lost availability race, cancelled with refund queued")

	r.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: cancelled.CustomerID,
		BookingID:       cancelled.ID,
		Type:            notify.TypeRefundRequired,
		Title:           "Booking Unavailable",
		Body:            fmt.Sprintf("Booking #%s could not be confirmed; your payment will be refunded", cancelled.BookingNumberString()),
		OccurredAt:      r.clock.Now(),
	})
	r.emitBookingEvent(ctx, "refund_required", cancelled)
	return nil
}

func (r *Reconciler) handleFailed(ctx context.Context, b *domain.Booking, ev Event) error {
	if b.PaymentStatus == domain.PaymentStatusNone {
		updated, err := r.bookings.UpdatePayment(ctx, b.ID, b.PaymentStatus, domain.PaymentStatusPending, ev.PaymentRef)
		if err != nil {
			return err
		}
		b = updated
	}
	if b.PaymentStatus != domain.PaymentStatusPending {
		r.log.Warn().
			Str("booking_id", b.ID).
			Str("payment_status", string(b.PaymentStatus)).
			Msg("failed event for payment not in PENDING, ignoring")
		return nil
	}

	updated, err := r.bookings.UpdatePayment(ctx, b.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, ev.PaymentRef)
	if err != nil {
		return err
	}

	// Booking status is untouched on failure; the customer may retry.
	r.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: updated.CustomerID,
		BookingID:       updated.ID,
		Type:            notify.TypePaymentFailed,
		Title:           "Payment Failed",
		Body:            "Your payment could not be processed. Please try again.",
		OccurredAt:      r.clock.Now(),
	})
	return nil
}

func (r *Reconciler) handleRefunded(ctx context.Context, b *domain.Booking, ev Event) error {
	if !domain.CanTransitionPayment(b.PaymentStatus, domain.PaymentStatusRefunded) {
		r.log.Warn().
			Str("booking_id", b.ID).
			Str("payment_status", string(b.PaymentStatus)).
			Msg("refunded event for payment not in COMPLETED, ignoring")
		return nil
	}

	updated, err := r.bookings.UpdatePayment(ctx, b.ID, b.PaymentStatus, domain.PaymentStatusRefunded, ev.PaymentRef)
	if err != nil {
		return err
	}

	// Refunds record money movement only; booking status is unchanged.
	r.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: updated.CustomerID,
		BookingID:       updated.ID,
		Type:            notify.TypePaymentRefunded,
		Title:           "Refund Processed",
		Body:            fmt.Sprintf("A refund of %d cents has been processed", ev.AmountCents),
		OccurredAt:      r.clock.Now(),
	})
	return nil
}

const lockRetryInterval = 50 * time.Millisecond

func (r *Reconciler) lockListing(ctx context.Context, listingID string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, domain.DeadlineExceeded("deadline exceeded before entering critical section")
		}
		token, err := r.locker.AcquireListingLock(ctx, listingID, r.lockTTL)
		if err != nil {
			return nil, domain.Unavailable("acquire listing lock", err)
		}
		if token != "" {
			release := func() {
				if err := r.locker.ReleaseListingLock(context.WithoutCancel(ctx), listingID, token); err != nil {
					r.log.Warn().Err(err).Str("listing_id", listingID).Msg("failed to release listing lock")
				}
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, domain.DeadlineExceeded("deadline exceeded before entering critical section")
		case <-time.After(lockRetryInterval):
		}
	}
}

func (r *Reconciler) emitBookingEvent(ctx context.Context, eventType string, b *domain.Booking) {
	r.emitter.EmitBookingEvent(ctx, notify.BookingEvent{
		Type:          eventType,
		BookingID:     b.ID,
		BookingNumber: b.BookingNumberString(),
		ListingID:     b.ListingID,
		CustomerID:    b.CustomerID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		OccurredAt:    r.clock.Now(),
	})
}
