package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Notification is the outbound event shape consumed by the delivery worker.
type Notification struct {
	RecipientUserID string    `json:"recipient_user_id"`
	BookingID       string    `json:"booking_id"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Notification type vocabulary.
const (
	TypeNewBooking        = "new_booking"
	TypeBookingConfirmed  = "booking_confirmed"
	TypeBookingCancelled  = "booking_cancelled"
	TypePaymentConfirmed  = "payment_confirmed"
	TypePaymentFailed     = "payment_failed"
	TypePaymentRefunded   = "payment_refunded"
	TypeRefundRequired    = "payment_refund_required"
	TypeBookingInProgress = "booking_in_progress"
	TypeBookingCompleted  = "booking_completed"
)

// BookingEvent mirrors a booking transition onto the events topic.
type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     string    `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	ListingID     string    `json:"listing_id"`
	CustomerID    string    `json:"customer_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Producer interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error
}

// Emitter is the fire-and-forget notification sink. Publish failures are
// logged and swallowed: an emission never rolls back the transition behind it.
type Emitter struct {
	producer           Producer
	notificationsTopic string
	eventsTopic        string
	log                zerolog.Logger
}

func NewEmitter(producer Producer, notificationsTopic, eventsTopic string, log zerolog.Logger) *Emitter {
	return &Emitter{
		producer:           producer,
		notificationsTopic: notificationsTopic,
		eventsTopic:        eventsTopic,
		log:                log,
	}
}

const publishRetries = 3

func (e *Emitter) Notify(ctx context.Context, n Notification) {
	if e == nil || e.producer == nil || e.notificationsTopic == "" {
		return
	}
	if err := e.producer.PublishWithRetry(ctx, e.notificationsTopic, n.BookingID, n, publishRetries); err != nil {
		e.log.Warn().Err(err).
			Str("booking_id", n.BookingID).
			Str("type", n.Type).
			Msg("failed to publish notification")
	}
}

func (e *Emitter) EmitBookingEvent(ctx context.Context, ev BookingEvent) {
	if e == nil || e.producer == nil || e.eventsTopic == "" {
		return
	}
	if err := e.producer.PublishWithRetry(ctx, e.eventsTopic, ev.BookingID, ev, publishRetries); err != nil {
		e.log.Warn().Err(err).
			Str("booking_id", ev.BookingID).
			Str("type", ev.Type).
			Msg("failed to publish booking event")
	}
}
