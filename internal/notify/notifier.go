// Package notify fans cycle and order alerts out to chat channels.
// Notifications can be filtered by event type and throttled so a venue that
// stays down does not alert on every cycle.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Options tunes a Notifier.
type Options struct {
	// Events restricts Notify to these event types. Empty allows all.
	Events []string
	// Throttle suppresses a repeat of the same event and title within this
	// window. Zero disables throttling.
	Throttle time.Duration
	Now      func() time.Time
}

// Notifier dispatches to every Sender.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	throttle time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotifier creates a Notifier fanning out to senders.
func NewNotifier(senders []Sender, opts Options, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(opts.Events))
	for _, e := range opts.Events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		throttle: opts.Throttle,
		now:      opts.Now,
		logger:   logger.With(slog.String("component", "notifier")),
		last:     make(map[string]time.Time),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends to all senders when the event passes the filter and is not
// throttled.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}
	if n.throttled(event + "|" + title) {
		n.logger.DebugContext(ctx, "notify: event throttled", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll bypasses the event filter and throttle.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) throttled(key string) bool {
	if n.throttle <= 0 {
		return false
	}
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.last[key]; ok && now.Sub(t) < n.throttle {
		return true
	}
	n.last[key] = now
	return false
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
