// Package notify delivers operator alerts over Discord and Telegram.
//
// The Notifier is a best-effort sink: delivery failures are logged and
// swallowed, never propagated to the order or journal path. A broken webhook
// must not be able to roll back a submitted order.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string, severity domain.Severity) error
	// Name returns a human-readable identifier for the sender (e.g. "discord").
	Name() string
}

// Notifier dispatches alerts to all registered senders. Implements
// domain.AlertSink.
type Notifier struct {
	senders []Sender
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Notifier that delivers to the given senders.
func New(log zerolog.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		timeout: 10 * time.Second,
		log:     log.With().Str("component", "notifier").Logger(),
	}
}

// SendAlert delivers to every sender. Failures from individual senders are
// logged; a single sender failure does not prevent delivery to the rest, and
// nothing is ever returned to the caller.
func (n *Notifier) SendAlert(ctx context.Context, title, body string, severity domain.Severity) {
	if len(n.senders) == 0 {
		n.log.Debug().Str("title", title).Msg("No notification channels configured")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	for _, s := range n.senders {
		if err := s.Send(ctx, title, body, severity); err != nil {
			n.log.Warn().
				Err(err).
				Str("sender", s.Name()).
				Str("title", title).
				Msg("Alert delivery failed")
			continue
		}
		n.log.Debug().
			Str("sender", s.Name()).
			Str("title", title).
			Msg("Alert sent")
	}
}
