// Package messaging defines the pluggable transport abstraction for the bot
// and the dispatcher that routes inbound events through the dialogue and
// approval components.
package messaging

import (
	"context"
	"errors"

	"github.com/EduConnect/TutorHub/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize is the buffer size for inbound event channels
	DefaultChannelBufferSize = 100
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable message delivery abstraction.
// It supports sending text and photo messages and exposes the inbound event
// stream.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. This allows each transport to implement its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a text message to a recipient identity.
	SendText(ctx context.Context, identity string, text string) error

	// SendPhoto sends a photo with an optional caption to a recipient identity.
	SendPhoto(ctx context.Context, identity string, photoRef string, caption string) error

	// Start begins any background processing (e.g., listening for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of inbound events. Transports emit raw text
	// and photo events; the dispatcher decodes them exactly once.
	Events() <-chan models.Event
}
