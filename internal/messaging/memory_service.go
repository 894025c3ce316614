package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/EduConnect/TutorHub/internal/models"
)

// SentMessage records one outbound message for inspection in tests.
type SentMessage struct {
	To       string
	Body     string
	PhotoRef string
}

// MemoryService is an in-process Service implementation used in tests and
// local development. Outbound messages are recorded; inbound events are
// injected by the caller.
type MemoryService struct {
	mu      sync.Mutex
	sent    []SentMessage
	events  chan models.Event
	stopped bool
}

// NewMemoryService creates an in-process messaging service.
func NewMemoryService() *MemoryService {
	return &MemoryService{events: make(chan models.Event, DefaultChannelBufferSize)}
}

// ValidateAndCanonicalizeRecipient trims whitespace and rejects empty
// recipients.
func (s *MemoryService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	return recipient, nil
}

// SendText records the message.
func (s *MemoryService) SendText(ctx context.Context, identity string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	s.sent = append(s.sent, SentMessage{To: identity, Body: text})
	return nil
}

// SendPhoto records the photo message.
func (s *MemoryService) SendPhoto(ctx context.Context, identity string, photoRef string, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	s.sent = append(s.sent, SentMessage{To: identity, Body: caption, PhotoRef: photoRef})
	return nil
}

// Start is a no-op; events arrive via Inject.
func (s *MemoryService) Start(ctx context.Context) error { return nil }

// Stop closes the event channel.
func (s *MemoryService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.events)
	return nil
}

// Events returns the inbound event channel.
func (s *MemoryService) Events() <-chan models.Event {
	return s.events
}

// Inject feeds an inbound event into the service, as if a user had sent it.
func (s *MemoryService) Inject(ev models.Event) {
	s.events <- ev
}

// Sent returns a copy of all recorded outbound messages.
func (s *MemoryService) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
