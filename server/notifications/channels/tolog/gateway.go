package tolog

import (
	"context"

	"github.com/google/uuid"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

// Gateway writes outbound messages to the log instead of a provider. It accepts
// everything and hands out random sending keys, which makes it usable as a
// development stand-in for any channel.
type Gateway struct {
	logger *logger.Logger
}

func NewGateway(l *logger.Logger) *Gateway {
	return &Gateway{logger: l}
}

func (g *Gateway) Send(_ context.Context, msg notifications.OutboundMessage) (string, error) {
	key := uuid.New().String()
	g.logger.Infof("%s to %s [notification %s, key %s]: %s", msg.Channel, msg.To, msg.NotificationID, key, msg.Body)
	return key, nil
}
