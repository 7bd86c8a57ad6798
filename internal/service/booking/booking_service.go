package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rentora/rentora/internal/availability"
	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/pricing"
	"github.com/rentora/rentora/internal/repository"
)

const maxSpecialRequestsLen = 2000

type BookingUseCase interface {
	Reserve(ctx context.Context, input ReserveInput) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, actorID, bookingID string, target domain.BookingStatus) (*domain.Booking, error)
	GetBooking(ctx context.Context, actorID, bookingID string) (*domain.Booking, error)
	ListCustomerBookings(ctx context.Context, customerID string) ([]domain.Booking, error)
	ListAvailability(ctx context.Context, listingID string, from, to time.Time) (*Availability, error)
	Sweep(ctx context.Context) (SweepResult, error)
}

type Clock interface {
	Now() time.Time
}

type Cache interface {
	GetListing(ctx context.Context, id string) (*domain.Listing, error)
	SetListing(ctx context.Context, listing *domain.Listing) error
	AcquireListingLock(ctx context.Context, listingID string, ttl time.Duration) (string, error)
	ReleaseListingLock(ctx context.Context, listingID, token string) error
}

type Emitter interface {
	Notify(ctx context.Context, n notify.Notification)
	EmitBookingEvent(ctx context.Context, ev notify.BookingEvent)
}

type ReserveInput struct {
	CustomerID      string
	ListingID       string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	SpecialRequests string
}

type Availability struct {
	BookedRanges  []domain.DateRange
	BlackoutDates []domain.BlackoutEntry
}

type SweepResult struct {
	Started   int
	Completed int
}

type Service struct {
	bookings    repository.BookingRepository
	listings    repository.ListingRepository
	oracle      *availability.Oracle
	cache       Cache
	emitter     Emitter
	clock       Clock
	loc         *time.Location
	horizonDays int
	lockTTL     time.Duration
	log         zerolog.Logger
}

type Option func(*Service)

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) { s.lockTTL = ttl }
}

func NewService(
	bookings repository.BookingRepository,
	listings repository.ListingRepository,
	oracle *availability.Oracle,
	cache Cache,
	emitter Emitter,
	clk Clock,
	loc *time.Location,
	horizonDays int,
	log zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		bookings:    bookings,
		listings:    listings,
		oracle:      oracle,
		cache:       cache,
		emitter:     emitter,
		clock:       clk,
		loc:         loc,
		horizonDays: horizonDays,
		lockTTL:     10 * time.Second,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve validates the request, checks availability and creates a PENDING
// booking inside the per-listing critical section. A PENDING booking does not
// hold capacity: overlapping reservations may coexist until one of them is
// confirmed.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (*domain.Booking, error) {
	if input.CustomerID == "" {
		return nil, domain.Unauthenticated("customer identity is required")
	}
	if err := availability.ValidateInterval(input.CheckIn, input.CheckOut, s.loc); err != nil {
		return nil, err
	}
	today := pricing.TruncateToDay(s.clock.Now(), s.loc)
	if input.CheckIn.Before(today) {
		return nil, domain.Validation("check-in cannot be in the past")
	}
	if s.horizonDays > 0 && input.CheckIn.After(today.AddDate(0, 0, s.horizonDays)) {
		return nil, domain.Validation("check-in is more than %d days ahead", s.horizonDays)
	}
	if input.Guests < 1 {
		return nil, domain.Validation("guests must be at least 1")
	}
	if len(input.SpecialRequests) > maxSpecialRequestsLen {
		return nil, domain.Validation("special requests must be at most %d characters", maxSpecialRequestsLen)
	}

	listing, err := s.getListing(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.Active {
		return nil, domain.Inactive("listing is not active")
	}

	result, err := s.oracle.Check(ctx, input.ListingID, input.CheckIn, input.CheckOut)
	if err != nil {
		return nil, err
	}
	if err := availabilityError(result); err != nil {
		return nil, err
	}

	// Critical section. The store re-reads the listing and re-runs the oracle
	// under a row lock, so everything before this point was only a fast-fail.
	unlock, err := s.lockListing(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b := &domain.Booking{
		ID:              uuid.NewString(),
		ListingID:       input.ListingID,
		CustomerID:      input.CustomerID,
		CheckIn:         input.CheckIn,
		CheckOut:        input.CheckOut,
		Guests:          input.Guests,
		SpecialRequests: input.SpecialRequests,
	}
	nights := pricing.Nights(input.CheckIn, input.CheckOut)
	if err := s.bookings.CreatePending(ctx, b, nights); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", b.ID).
		Str("booking_number", b.BookingNumberString()).
		Str("listing_id", b.ListingID).
		Int64("total_price_cents", b.TotalPriceCents).
		Msg("booking created")

	s.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: listing.OwnerID,
		BookingID:       b.ID,
		Type:            notify.TypeNewBooking,
		Title:           "New Booking Request",
		Body:            fmt.Sprintf("New booking request #%s for %s", b.BookingNumberString(), listing.Title),
		OccurredAt:      s.clock.Now(),
	})
	s.emitBookingEvent(ctx, "booking_created", b)
	return b, nil
}

// UpdateStatus performs a customer- or owner-driven transition. System-only
// transitions (IN_PROGRESS, COMPLETED) are the sweeper's job and rejected
// here as forbidden.
func (s *Service) UpdateStatus(ctx context.Context, actorID, bookingID string, target domain.BookingStatus) (*domain.Booking, error) {
	if actorID == "" {
		return nil, domain.Unauthenticated("actor identity is required")
	}
	if !target.Valid() {
		return nil, domain.Validation("unknown booking status %q", target)
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.GetByID(ctx, b.ListingID)
	if err != nil {
		return nil, err
	}

	role, ok := s.roleFor(actorID, b, listing)
	if !ok {
		// Strangers learn nothing about the booking, not even that it exists.
		return nil, domain.NotFound("booking not found")
	}
	if !domain.TransitionExists(b.Status, target) {
		return nil, domain.InvalidTransition(b.Status, target)
	}
	if !domain.CanTransition(role, b.Status, target) {
		return nil, domain.Forbidden("not allowed to perform this transition")
	}

	switch target {
	case domain.BookingStatusConfirmed:
		return s.confirm(ctx, b, listing, role)
	case domain.BookingStatusCancelled:
		return s.cancel(ctx, b, listing, role)
	default:
		return nil, domain.InvalidTransition(b.Status, target)
	}
}

func (s *Service) confirm(ctx context.Context, b *domain.Booking, listing *domain.Listing, role domain.Role) (*domain.Booking, error) {
	unlock, err := s.lockListing(ctx, b.ListingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated, err := s.bookings.ConfirmPending(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", updated.ID).
		Str("role", string(role)).
		Msg("booking confirmed")

	s.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: updated.CustomerID,
		BookingID:       updated.ID,
		Type:            notify.TypeBookingConfirmed,
		Title:           "Booking Confirmed",
		Body:            fmt.Sprintf("Booking #%s has been confirmed", updated.BookingNumberString()),
		OccurredAt:      s.clock.Now(),
	})
	s.emitBookingEvent(ctx, "booking_confirmed", updated)
	return updated, nil
}

func (s *Service) cancel(ctx context.Context, b *domain.Booking, listing *domain.Listing, role domain.Role) (*domain.Booking, error) {
	updated, err := s.bookings.UpdateStatus(ctx, b.ID, b.Status, domain.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}

	// The counterpart gets notified: owner when the customer cancels, customer
	// when the owner rejects or cancels.
	recipient := listing.OwnerID
	if role == domain.RoleOwner {
		recipient = updated.CustomerID
	}
	s.emitter.Notify(ctx, notify.Notification{
		RecipientUserID: recipient,
		BookingID:       updated.ID,
		Type:            notify.TypeBookingCancelled,
		Title:           "Booking Cancelled",
		Body:            fmt.Sprintf("Booking #%s has been cancelled", updated.BookingNumberString()),
		OccurredAt:      s.clock.Now(),
	})
	s.emitBookingEvent(ctx, "booking_cancelled", updated)
	return updated, nil
}

func (s *Service) GetBooking(ctx context.Context, actorID, bookingID string) (*domain.Booking, error) {
	if actorID == "" {
		return nil, domain.Unauthenticated("actor identity is required")
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.GetByID(ctx, b.ListingID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.roleFor(actorID, b, listing); !ok {
		return nil, domain.NotFound("booking not found")
	}
	return b, nil
}

func (s *Service) ListCustomerBookings(ctx context.Context, customerID string) ([]domain.Booking, error) {
	if customerID == "" {
		return nil, domain.Unauthenticated("customer identity is required")
	}
	return s.bookings.ListByCustomer(ctx, customerID)
}

func (s *Service) ListAvailability(ctx context.Context, listingID string, from, to time.Time) (*Availability, error) {
	exists, err := s.listings.Exists(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NotFound("listing not found")
	}

	today := pricing.TruncateToDay(s.clock.Now(), s.loc)
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = today.AddDate(0, 0, s.horizonDays)
	}
	if !from.Before(to) {
		return nil, domain.Validation("from must be before to")
	}

	ranges, err := s.bookings.BookedRanges(ctx, listingID, from, to)
	if err != nil {
		return nil, err
	}
	blackouts, err := s.listings.Blackouts(ctx, listingID, from, to)
	if err != nil {
		return nil, err
	}
	return &Availability{BookedRanges: ranges, BlackoutDates: blackouts}, nil
}

// Sweep advances time-driven transitions. Both updates are conditional on the
// current status, so running the sweeper twice with the same clock is a no-op.
// Promotion runs first so a booking whose whole stay has passed moves through
// IN_PROGRESS to COMPLETED within a single sweep.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()

	started, err := s.bookings.SweepInProgress(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}
	for i := range started {
		s.emitBookingEvent(ctx, "booking_in_progress", &started[i])
	}

	completed, err := s.bookings.SweepCompleted(ctx, now)
	if err != nil {
		return SweepResult{Started: len(started)}, err
	}
	for i := range completed {
		s.emitBookingEvent(ctx, "booking_completed", &completed[i])
	}

	return SweepResult{Started: len(started), Completed: len(completed)}, nil
}

func (s *Service) roleFor(actorID string, b *domain.Booking, listing *domain.Listing) (domain.Role, bool) {
	switch actorID {
	case b.CustomerID:
		return domain.RoleCustomer, true
	case listing.OwnerID:
		return domain.RoleOwner, true
	}
	return "", false
}

func (s *Service) getListing(ctx context.Context, id string) (*domain.Listing, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetListing(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetListing(ctx, listing)
	}
	return listing, nil
}

const lockRetryInterval = 50 * time.Millisecond

// lockListing serialises the critical section per listing. It waits for the
// lock until the caller's deadline; a deadline hit before entry has no side
// effects.
func (s *Service) lockListing(ctx context.Context, listingID string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, domain.DeadlineExceeded("deadline exceeded before entering critical section")
		}
		token, err := s.cache.AcquireListingLock(ctx, listingID, s.lockTTL)
		if err != nil {
			return nil, domain.Unavailable("acquire listing lock", err)
		}
		if token != "" {
			release := func() {
				if err := s.cache.ReleaseListingLock(context.WithoutCancel(ctx), listingID, token); err != nil {
					s.log.Warn().Err(err).Str("listing_id", listingID).Msg("failed to release listing lock")
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

func (s *Service) emitBookingEvent(ctx context.Context, eventType string, b *domain.Booking) {
	s.emitter.EmitBookingEvent(ctx, notify.BookingEvent{
		Type:          eventType,
		BookingID:     b.ID,
		BookingNumber: b.BookingNumberString(),
		ListingID:     b.ListingID,
		CustomerID:    b.CustomerID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		OccurredAt:    s.clock.Now(),
	})
}

func availabilityError(result availability.Result) error {
	switch result.State {
	case availability.ConflictBooking:
		return domain.Conflict("dates conflict with an existing booking")
	case availability.BlackedOut:
		return domain.Blackout(result.Reason)
	}
	return nil
}

var _ BookingUseCase = (*Service)(nil)
