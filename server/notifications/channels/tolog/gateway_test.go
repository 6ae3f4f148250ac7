package tolog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications/channels/tolog"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

func TestSendReturnsUniqueKeys(t *testing.T) {
	g := tolog.NewGateway(logger.Discard())
	msg := notifications.OutboundMessage{NotificationID: "n-1", Channel: notifications.ChannelSMS, To: "27821234567", Body: "hello"}

	k1, err := g.Send(context.Background(), msg)
	require.NoError(t, err)
	k2, err := g.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.NotEmpty(t, k1)
	assert.NotEqual(t, k1, k2)
}
