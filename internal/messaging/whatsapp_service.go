package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService adapts the whatsmeow transport to the Service interface.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client
	events   chan models.Event
	stopped  bool
}

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: make(chan models.Event, DefaultChannelBufferSize),
	}

	// A full Client (not a mock) also feeds inbound events.
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number to its digits-only JID user form.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
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
	return canonical, nil
}

// SendText sends a text message.
func (s *WhatsAppService) SendText(ctx context.Context, identity string, text string) error {
	slog.Debug("WhatsAppService SendText invoked", "to", identity, "body_length", len(text))
	canonical, err := s.ValidateAndCanonicalizeRecipient(identity)
	if err != nil {
		slog.Error("WhatsAppService SendText recipient invalid", "error", err, "to", identity)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, text); err != nil {
		slog.Error("WhatsAppService SendText error", "error", err, "to", canonical)
		return err
	}
	return nil
}

// SendPhoto sends a locally stored image with a caption.
func (s *WhatsAppService) SendPhoto(ctx context.Context, identity string, photoRef string, caption string) error {
	slog.Debug("WhatsAppService SendPhoto invoked", "to", identity)
	canonical, err := s.ValidateAndCanonicalizeRecipient(identity)
	if err != nil {
		return err
	}
	return s.client.SendImage(ctx, canonical, photoRef, caption)
}

// Start begins listening for inbound WhatsApp events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}
	return nil
}

// Stop stops background processing and closes the event channel.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	if !s.stopped {
		s.stopped = true
		close(s.events)
	}
	return nil
}

// Events returns the inbound event channel.
func (s *WhatsAppService) Events() <-chan models.Event {
	return s.events
}

// handleEvents registers the whatsmeow event handler and feeds inbound
// messages into the event channel.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, msg)
		}
	})
	slog.Debug("WhatsAppService event handler registered")

	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage converts an inbound WhatsApp message into a raw
// text or photo event.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}
	identity := evt.Info.Sender.User

	ev := models.Event{
		Identity: identity,
		Time:     evt.Info.Timestamp.Unix(),
	}

	switch {
	case evt.Message.Conversation != nil:
		ev.Kind = models.EventText
		ev.Text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		ev.Kind = models.EventText
		ev.Text = *evt.Message.ExtendedTextMessage.Text
	case evt.Message.ImageMessage != nil:
		path, err := s.waClient.DownloadImage(ctx, evt.Message.ImageMessage)
		if err != nil {
			slog.Error("WhatsAppService failed to download inbound photo", "error", err, "from", identity)
			return
		}
		ev.Kind = models.EventPhoto
		ev.Text = path
	default:
		slog.Debug("WhatsAppService ignoring unsupported message type", "from", identity)
		return
	}

	select {
	case s.events <- ev:
		slog.Debug("WhatsAppService inbound event forwarded", "from", identity, "kind", ev.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService events channel blocked, dropping event", "from", identity, "timeout", DefaultChannelTimeout)
	}
}
