package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/twiliomsg"
)

// DefaultChannelTimeout bounds how long an inbound event may wait for a slot
// on the events channel before being dropped.
const DefaultChannelTimeout = 5 * time.Second

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// TwilioService adapts the Twilio WhatsApp transport to the Service
// interface. Inbound messages arrive through the webhook handler, which must
// be mounted on the HTTP server.
type TwilioService struct {
	client  twiliomsg.Sender
	events  chan models.Event
	stopped bool
}

// NewTwilioService creates a TwilioService wrapping the given sender.
func NewTwilioService(client twiliomsg.Sender) *TwilioService {
	return &TwilioService{
		client: client,
		events: make(chan models.Event, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number. It removes all non-numeric characters and requires at least
// 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendText sends a text message via Twilio.
func (s *TwilioService) SendText(ctx context.Context, identity string, text string) error {
	slog.Debug("TwilioService SendText invoked", "to", identity, "body_length", len(text))
	canonical, err := s.ValidateAndCanonicalizeRecipient(identity)
	if err != nil {
		slog.Error("TwilioService SendText recipient invalid", "error", err, "to", identity)
		return err
	}
	if err := s.client.SendMessage(ctx, "+"+canonical, text); err != nil {
		slog.Error("TwilioService SendText error", "error", err, "to", canonical)
		return err
	}
	return nil
}

// SendPhoto sends a photo via Twilio. The photo reference must be a URL
// Twilio can fetch.
func (s *TwilioService) SendPhoto(ctx context.Context, identity string, photoRef string, caption string) error {
	slog.Debug("TwilioService SendPhoto invoked", "to", identity)
	canonical, err := s.ValidateAndCanonicalizeRecipient(identity)
	if err != nil {
		return err
	}
	return s.client.SendMediaMessage(ctx, "+"+canonical, photoRef, caption)
}

// Start is a no-op; inbound messages arrive via the webhook handler.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService Start invoked (webhook driven, nothing to start)")
	return nil
}

// Stop closes the event channel.
func (s *TwilioService) Stop() error {
	slog.Info("TwilioService Stop invoked")
	if !s.stopped {
		s.stopped = true
		close(s.events)
	}
	return nil
}

// Events returns the inbound event channel.
func (s *TwilioService) Events() <-chan models.Event {
	return s.events
}

// WebhookHandler handles Twilio inbound message callbacks. Mount it at the
// path configured in the Twilio console.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService webhook form parse failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	identity, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("TwilioService webhook sender invalid", "error", err, "from", from)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ev := models.Event{
		Identity: identity,
		Kind:     models.EventText,
		Text:     r.FormValue("Body"),
		Time:     time.Now().Unix(),
	}
	if mediaURL := r.FormValue("MediaUrl0"); mediaURL != "" {
		ev.Kind = models.EventPhoto
		ev.Text = mediaURL
	}

	s.emit(ev)
	w.WriteHeader(http.StatusOK)
}

// emit forwards an event without blocking the webhook indefinitely.
func (s *TwilioService) emit(ev models.Event) {
	select {
	case s.events <- ev:
		slog.Debug("TwilioService inbound event forwarded", "identity", ev.Identity, "kind", ev.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService events channel blocked, dropping event", "identity", ev.Identity, "timeout", DefaultChannelTimeout)
	}
}
