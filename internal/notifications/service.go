package notifications

import (
	"context"

	"go.uber.org/zap"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/notifications/ws"
)

// Emitter is what the negotiation services depend on. Emit is
// fire-and-forget: channel failures are logged and swallowed, never
// surfaced to the caller of the primary transition.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Channel delivers an event over one transport
type Channel interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Service fans an event out to every configured channel plus connected
// websocket clients.
type Service struct {
	channels []Channel
	hub      *ws.Hub
	logger   *zap.Logger
}

// NewService creates a notification service
func NewService(hub *ws.Hub, logger *zap.Logger, channels ...Channel) *Service {
	return &Service{channels: channels, hub: hub, logger: logger}
}

func (s *Service) Emit(ctx context.Context, event Event) {
	for _, ch := range s.channels {
		if err := ch.Send(ctx, event); err != nil {
			s.logger.Warn("notification channel failed",
				zap.String("channel", ch.Name()),
				zap.String("event", event.Type),
				zap.String("entity_id", event.EntityID.String()),
				zap.Error(err))
		}
	}

	if s.hub != nil {
		msg := ws.Message{
			Type:   event.Type,
			DealID: event.DealID.String(),
			Data:   event.Data,
		}
		for _, orgID := range event.RecipientOrgIDs {
			s.hub.PushToOrg(orgID, msg)
		}
	}
}

// NopEmitter drops every event; used when notifications are disabled.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, event Event) {}
