package domain

// Role identifies who is asking for a status transition.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleSystem   Role = "system"
)

type transition struct {
	from BookingStatus
	to   BookingStatus
}

// allowedTransitions is the full status state machine. The system role covers
// the sweeper and the payment reconciler; it may also cancel a pending booking
// when a payment-driven confirm loses the availability race.
var allowedTransitions = map[transition][]Role{
	{BookingStatusPending, BookingStatusConfirmed}:    {RoleOwner, RoleSystem},
	{BookingStatusPending, BookingStatusCancelled}:    {RoleCustomer, RoleOwner, RoleSystem},
	{BookingStatusConfirmed, BookingStatusInProgress}: {RoleSystem},
	{BookingStatusInProgress, BookingStatusCompleted}: {RoleSystem},
	{BookingStatusConfirmed, BookingStatusCancelled}:  {RoleCustomer, RoleOwner},
}

// CanTransition reports whether role may move a booking from one status to
// another. Temporal preconditions (check-in reached, check-out reached,
// availability re-check) are enforced by the caller; this covers only the
// shape of the state machine and the authorization matrix.
func CanTransition(role Role, from, to BookingStatus) bool {
	roles, ok := allowedTransitions[transition{from, to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// TransitionExists reports whether any role may perform from→to. Used to
// distinguish invalid_transition from forbidden.
func TransitionExists(from, to BookingStatus) bool {
	_, ok := allowedTransitions[transition{from, to}]
	return ok
}

var allowedPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusNone:      {PaymentStatusPending},
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	// A failed attempt may be retried.
	PaymentStatusFailed: {PaymentStatusPending},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, t := range allowedPaymentTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
