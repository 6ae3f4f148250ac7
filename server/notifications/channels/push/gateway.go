package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gregdel/pushover"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

const (
	DefaultTitle     = "Grassroot"
	apiSuccessStatus = 1
)

// Config is the [pushover] section of the server config.
type Config struct {
	APIToken string `mapstructure:"api_token"`
	Title    string `mapstructure:"title"`
}

func (c Config) Enabled() bool {
	return c.APIToken != ""
}

// Gateway delivers PUSH notifications through Pushover. The recipient address is
// the user's Pushover key and the sending key is the Pushover request id.
type Gateway struct {
	p      *pushover.Pushover
	title  string
	logger *logger.Logger
}

func NewGateway(l *logger.Logger, config Config) *Gateway {
	title := config.Title
	if title == "" {
		title = DefaultTitle
	}
	return &Gateway{
		p:      pushover.New(config.APIToken),
		title:  title,
		logger: l,
	}
}

func (g *Gateway) Send(_ context.Context, msg notifications.OutboundMessage) (string, error) {
	pMsg := pushover.NewMessageWithTitle(msg.Body, g.title)
	pReceiver := pushover.NewRecipient(msg.To)
	resp, err := g.p.SendMessage(pMsg, pReceiver)
	if err != nil {
		return "", classify(err)
	}

	if resp.Status != apiSuccessStatus {
		return "", notifications.Permanent(fmt.Errorf("pushover refused message, request: %s, status: %d, errors: %v", resp.ID, resp.Status, resp.Errors))
	}

	g.logger.Debugf("notification %s pushed, request %s", msg.NotificationID, resp.ID)
	return resp.ID, nil
}

func classify(err error) error {
	var apiErrs pushover.Errors
	switch {
	case errors.Is(err, pushover.ErrHTTPPushover):
		return notifications.Transient(err)
	case errors.As(err, &apiErrs):
		return notifications.Permanent(err)
	case strings.Contains(err.Error(), "pushover"):
		// validation errors of the pushover client carry a "pushover" prefix
		return notifications.Permanent(err)
	}
	return notifications.Transient(err)
}
