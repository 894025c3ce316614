// Package broadcast fans a message out to every registered identity at a
// fixed pace, tolerating individual delivery failures.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
)

// Default configuration values
const (
	// DefaultSendInterval paces outbound sends to stay under transport rate limits.
	DefaultSendInterval = 500 * time.Millisecond
)

// Sender delivers one message to one recipient.
type Sender interface {
	SendText(ctx context.Context, identity, text string) error
}

// IdentitySource lists the recipient identities.
type IdentitySource interface {
	ListIdentities() ([]string, error)
}

// Opts holds configuration options for a broadcaster.
type Opts struct {
	Interval time.Duration
}

// Option defines a configuration option for a broadcaster.
type Option func(*Opts)

// WithSendInterval sets the pause between consecutive sends.
func WithSendInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// Broadcaster sends a message to all registered identities.
type Broadcaster struct {
	sender   Sender
	source   IdentitySource
	interval time.Duration
}

// NewBroadcaster creates a broadcaster over the given sender and identity
// source.
func NewBroadcaster(sender Sender, source IdentitySource, opts ...Option) *Broadcaster {
	cfg := Opts{Interval: DefaultSendInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Broadcaster{sender: sender, source: source, interval: cfg.Interval}
}

// Send delivers text to every registered identity, deduplicated, one send
// per interval. Individual failures are counted and logged but never abort
// the remaining sends; cancelling the context stops after the current send
// and the partial counts are returned.
func (b *Broadcaster) Send(ctx context.Context, text string) (models.BroadcastResult, error) {
	slog.Debug("Broadcast Send invoked")
	var result models.BroadcastResult

	identities, err := b.source.ListIdentities()
	if err != nil {
		slog.Error("Broadcast failed to list identities", "error", err)
		return result, err
	}

	seen := make(map[string]bool, len(identities))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for _, identity := range identities {
		if identity == "" || seen[identity] {
			continue
		}
		seen[identity] = true

		if err := b.sender.SendText(ctx, identity, text); err != nil {
			slog.Error("Broadcast delivery failed", "error", err, "identity", identity)
			result.Failed++
			result.FailedRecipients = append(result.FailedRecipients, identity)
		} else {
			result.Sent++
		}

		select {
		case <-ctx.Done():
			slog.Info("Broadcast cancelled", "sent", result.Sent, "failed", result.Failed)
			return result, ctx.Err()
		case <-ticker.C:
		}
	}

	slog.Info("Broadcast completed", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}
