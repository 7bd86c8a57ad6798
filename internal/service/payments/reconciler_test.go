package payments

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/clock"
	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/notify"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking, nights int) error {
	args := m.Called(ctx, booking, nights)
	return args.Error(0)
}

func (m *MockBookingRepository) ConfirmPending(ctx context.Context, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, paymentRef string) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to, paymentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) HasOverlap(ctx context.Context, listingID string, checkIn, checkOut time.Time) (bool, error) {
	args := m.Called(ctx, listingID, checkIn, checkOut)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) BookedRanges(ctx context.Context, listingID string, from, to time.Time) ([]domain.DateRange, error) {
	args := m.Called(ctx, listingID, from, to)
	return args.Get(0).([]domain.DateRange), args.Error(1)
}

func (m *MockBookingRepository) SweepInProgress(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) SweepCompleted(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) RecordPaymentEvent(ctx context.Context, bookingID, paymentRef, eventType string) (bool, error) {
	args := m.Called(ctx, bookingID, paymentRef, eventType)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) DeletePaymentEvent(ctx context.Context, bookingID, paymentRef, eventType string) error {
	args := m.Called(ctx, bookingID, paymentRef, eventType)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireListingLock(ctx context.Context, listingID string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, listingID, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockLocker) ReleaseListingLock(ctx context.Context, listingID, token string) error {
	args := m.Called(ctx, listingID, token)
	return args.Error(0)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) Notify(ctx context.Context, n notify.Notification) {
	m.Called(ctx, n)
}

func (m *MockEmitter) EmitBookingEvent(ctx context.Context, ev notify.BookingEvent) {
	m.Called(ctx, ev)
}

type fixture struct {
	bookings *MockBookingRepository
	locker   *MockLocker
	emitter  *MockEmitter
	rec      *Reconciler
}

func newFixture() *fixture {
	f := &fixture{
		bookings: &MockBookingRepository{},
		locker:   &MockLocker{},
		emitter:  &MockEmitter{},
	}
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f.rec = NewReconciler(f.bookings, f.locker, f.emitter, clk, 10*time.Second, zerolog.Nop())
	return f
}

func pendingBooking() *domain.Booking {
	return &domain.Booking{
		ID:            "b-1",
		BookingNumber: 42,
		ListingID:     "listing-1",
		CustomerID:    "customer-1",
		Status:        domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusNone,
	}
}

func withPayment(b *domain.Booking, s domain.PaymentStatus) *domain.Booking {
	c := *b
	c.PaymentStatus = s
	return &c
}

func TestHandle_RequiresIdentifiers(t *testing.T) {
	f := newFixture()

	err := f.rec.Handle(context.Background(), Event{Type: EventCompleted})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	err = f.rec.Handle(context.Background(), Event{Type: EventCompleted, BookingID: "b-1"})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestHandle_DuplicateEventIsNoop(t *testing.T) {
	f := newFixture()

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted).Return(false, nil)

	err := f.rec.Handle(context.Background(), Event{Type: EventCompleted, BookingID: "b-1", PaymentRef: "pay-1"})

	require.NoError(t, err)
	f.bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	f.bookings.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_TransientFailureDoesNotDropEvent(t *testing.T) {
	f := newFixture()
	ev := Event{Type: EventCompleted, BookingID: "b-1", PaymentRef: "pay-1"}
	b := pendingBooking()
	paying := withPayment(b, domain.PaymentStatusPending)
	paid := withPayment(b, domain.PaymentStatusCompleted)
	confirmed := withPayment(b, domain.PaymentStatusCompleted)
	confirmed.Status = domain.BookingStatusConfirmed

	// First delivery: the dedup row is inserted, then the booking read fails.
	// The row must be compensated so the provider's retry is not a duplicate.
	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").
		Return(nil, domain.Unavailable("read booking", assert.AnError)).Once()
	f.bookings.On("DeletePaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted).Return(nil).Once()

	err := f.rec.Handle(context.Background(), ev)
	assert.Equal(t, domain.CodeUnavailable, domain.CodeOf(err))
	f.bookings.AssertCalled(t, "DeletePaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted)

	// Redelivery: the capture is applied in full.
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusNone, domain.PaymentStatusPending, "pay-1").Return(paying, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusPending, domain.PaymentStatusCompleted, "pay-1").Return(paid, nil)
	f.locker.On("AcquireListingLock", mock.Anything, "listing-1", mock.Anything).Return("lock-token", nil)
	f.locker.On("ReleaseListingLock", mock.Anything, "listing-1", "lock-token").Return(nil)
	f.bookings.On("ConfirmPending", mock.Anything, "b-1").Return(confirmed, nil)
	f.emitter.On("Notify", mock.Anything, mock.Anything).Return()
	f.emitter.On("EmitBookingEvent", mock.Anything, mock.Anything).Return()

	err = f.rec.Handle(context.Background(), ev)

	require.NoError(t, err)
	f.bookings.AssertExpectations(t)
}

func TestHandle_UnknownType(t *testing.T) {
	f := newFixture()

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", "captured").Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
	f.bookings.On("DeletePaymentEvent", mock.Anything, "b-1", "pay-1", "captured").Return(nil)

	err := f.rec.Handle(context.Background(), Event{Type: "captured", BookingID: "b-1", PaymentRef: "pay-1"})

	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestHandle_CompletedConfirmsPendingBooking(t *testing.T) {
	f := newFixture()
	b := pendingBooking()
	paying := withPayment(b, domain.PaymentStatusPending)
	paid := withPayment(b, domain.PaymentStatusCompleted)
	confirmed := withPayment(b, domain.PaymentStatusCompleted)
	confirmed.Status = domain.BookingStatusConfirmed

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusNone, domain.PaymentStatusPending, "pay-1").Return(paying, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusPending, domain.PaymentStatusCompleted, "pay-1").Return(paid, nil)
	f.locker.On("AcquireListingLock", mock.Anything, "listing-1", mock.Anything).Return("lock-token", nil)
	f.locker.On("ReleaseListingLock", mock.Anything, "listing-1", "lock-token").Return(nil)
	f.bookings.On("ConfirmPending", mock.Anything, "b-1").Return(confirmed, nil)
	f.emitter.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Type == notify.TypePaymentConfirmed
	})).Return()
	f.emitter.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Type == notify.TypeBookingConfirmed
	})).Return()
	f.emitter.On("EmitBookingEvent", mock.Anything, mock.MatchedBy(func(ev notify.BookingEvent) bool {
		return ev.Type == "booking_confirmed"
	})).Return()

	err := f.rec.Handle(context.Background(), Event{Type: EventCompleted, BookingID: "b-1", PaymentRef: "pay-1"})

	require.NoError(t, err)
	f.bookings.AssertExpectations(t)
	f.emitter.AssertExpectations(t)
}

func TestHandle_CompletedAfterLostRaceCancelsAndQueuesRefund(t *testing.T) {
	f := newFixture()
	b := pendingBooking()
	paying := withPayment(b, domain.PaymentStatusPending)
	paid := withPayment(b, domain.PaymentStatusCompleted)
	cancelled := withPayment(b, domain.PaymentStatusCompleted)
	cancelled.Status = domain.BookingStatusCancelled

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusNone, domain.PaymentStatusPending, "pay-1").Return(paying, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusPending, domain.PaymentStatusCompleted, "pay-1").Return(paid, nil)
	f.locker.On("AcquireListingLock", mock.Anything, "listing-1", mock.Anything).Return("lock-token", nil)
	f.locker.On("ReleaseListingLock", mock.Anything, "listing-1", "lock-token").Return(nil)
	f.bookings.On("ConfirmPending", mock.Anything, "b-1").Return(nil, domain.Conflict("dates conflict with an existing booking"))
	f.bookings.On("UpdateStatus", mock.Anything, "b-1", domain.BookingStatusPending, domain.BookingStatusCancelled).Return(cancelled, nil)
	f.emitter.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Type == notify.TypePaymentConfirmed
	})).Return()
	f.emitter.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Type == notify.TypeRefundRequired && n.RecipientUserID == "customer-1"
	})).Return()
	f.emitter.On("EmitBookingEvent", mock.Anything, mock.MatchedBy(func(ev notify.BookingEvent) bool {
		return ev.Type == "refund_required"
	})).Return()

	err := f.rec.Handle(context.Background(), Event{Type: EventCompleted, BookingID: "b-1", PaymentRef: "pay-1"})

	require.NoError(t, err)
	f.bookings.AssertExpectations(t)
	f.emitter.AssertExpectations(t)
}

func TestHandle_CompletedForConfirmedBookingSkipsConfirm(t *testing.T) {
	f := newFixture()
	b := withPayment(pendingBooking(), domain.PaymentStatusPending)
	b.Status = domain.BookingStatusConfirmed
	paid := withPayment(b, domain.PaymentStatusCompleted)
	paid.Status = domain.BookingStatusConfirmed

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventCompleted).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusPending, domain.PaymentStatusCompleted, "pay-1").Return(paid, nil)
	f.emitter.On("Notify", mock.Anything, mock.Anything).Return()

	err := f.rec.Handle(context.Background(), Event{Type: EventCompleted, BookingID: "b-1", PaymentRef: "pay-1"})

	require.NoError(t, err)
	f.bookings.AssertNotCalled(t, "ConfirmPending", mock.Anything, mock.Anything)
}

func TestHandle_CompletedForRefundedPaymentIgnored(t *testing.T) {
	f := newFixture()
	b := withPayment(pendingBooking(), domain.PaymentStatusRefunded)

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-2", EventCompleted).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)

	err := f.rec.Handle(context.Background(), Event{Type: EventCompleted, BookingID: "b-1", PaymentRef: "pay-2"})

	require.NoError(t, err)
	f.bookings.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_FailedLeavesBookingPending(t *testing.T) {
	f := newFixture()
	b := pendingBooking()
	paying := withPayment(b, domain.PaymentStatusPending)
	failed := withPayment(b, domain.PaymentStatusFailed)

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventFailed).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusNone, domain.PaymentStatusPending, "pay-1").Return(paying, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusPending, domain.PaymentStatusFailed, "pay-1").Return(failed, nil)
	f.emitter.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Type == notify.TypePaymentFailed
	})).Return()

	err := f.rec.Handle(context.Background(), Event{Type: EventFailed, BookingID: "b-1", PaymentRef: "pay-1"})

	require.NoError(t, err)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.emitter.AssertExpectations(t)
}

func TestHandle_RefundedRecordsMoneyMovementOnly(t *testing.T) {
	f := newFixture()
	b := withPayment(pendingBooking(), domain.PaymentStatusCompleted)
	b.Status = domain.BookingStatusCancelled
	refunded := withPayment(b, domain.PaymentStatusRefunded)
	refunded.Status = domain.BookingStatusCancelled

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventRefunded).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)
	f.bookings.On("UpdatePayment", mock.Anything, "b-1", domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, "pay-1").Return(refunded, nil)
	f.emitter.On("Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Type == notify.TypePaymentRefunded
	})).Return()

	err := f.rec.Handle(context.Background(), Event{Type: EventRefunded, BookingID: "b-1", PaymentRef: "pay-1", AmountCents: 30000})

	require.NoError(t, err)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_RefundedBeforeCaptureIgnored(t *testing.T) {
	f := newFixture()
	b := pendingBooking()

	f.bookings.On("RecordPaymentEvent", mock.Anything, "b-1", "pay-1", EventRefunded).Return(true, nil)
	f.bookings.On("GetByID", mock.Anything, "b-1").Return(b, nil)

	err := f.rec.Handle(context.Background(), Event{Type: EventRefunded, BookingID: "b-1", PaymentRef: "pay-1"})

	require.NoError(t, err)
	f.bookings.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
