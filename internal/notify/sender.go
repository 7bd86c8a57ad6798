package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Sender delivers notifications pulled off the topic by the worker. Delivery
// is a log line for now; a mail or push integration slots in behind the same
// method.
type Sender struct {
	log zerolog.Logger
}

func NewSender(log zerolog.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, n Notification) error {
	s.log.Info().
		Str("recipient", n.RecipientUserID).
		Str("booking_id", n.BookingID).
		Str("type", n.Type).
		Str("title", n.Title).
		Msg("delivering notification")
	return nil
}
