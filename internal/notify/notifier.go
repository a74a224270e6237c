// Package notify delivers operator alerts over one or more channels
// (Telegram, Discord). Events can be filtered by type so an operator sees
// rescue failures without being flooded by every detected opportunity.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans a notification out to every registered sender. A non-empty
// allow list restricts which event types Notify forwards.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over the given senders. An empty events
// slice allows every event type through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to all senders when the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 {
		if _, ok := n.allowed[event]; !ok {
			n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
			return nil
		}
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every channel. One channel failing does not stop
// delivery to the rest; all failures come back joined.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
