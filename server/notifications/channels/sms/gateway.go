package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxResponseSize = 64 * 1024
)

// Config is the [sms] section of the server config.
type Config struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Sender   string        `mapstructure:"sender"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

type sendResponse struct {
	MessageKey string `json:"message_key"`
	Error      string `json:"error"`
}

// Gateway submits messages to an HTTP SMS provider. The provider answers with
// {"message_key": "..."}; the same key comes back on its delivery receipts.
type Gateway struct {
	config Config
	client *http.Client
	logger *logger.Logger
}

func NewGateway(l *logger.Logger, config Config) *Gateway {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Gateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: l,
	}
}

func (g *Gateway) Send(ctx context.Context, msg notifications.OutboundMessage) (string, error) {
	form := url.Values{}
	form.Set("username", g.config.Username)
	form.Set("password", g.config.Password)
	form.Set("from", g.config.Sender)
	form.Set("to", msg.To)
	form.Set("text", msg.Body)
	form.Set("ref", msg.NotificationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", notifications.Permanent(fmt.Errorf("failed to build sms request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", notifications.Transient(fmt.Errorf("sms gateway unreachable: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", notifications.Transient(fmt.Errorf("failed to read sms gateway response: %w", err))
	}

	res := sendResponse{}
	decodeErr := json.Unmarshal(body, &res)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return "", notifications.Transient(fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, describe(res, body)))
	case resp.StatusCode >= http.StatusBadRequest:
		return "", notifications.Permanent(fmt.Errorf("sms gateway rejected message with %d: %s", resp.StatusCode, describe(res, body)))
	case decodeErr != nil:
		return "", notifications.Transient(fmt.Errorf("can't decode sms gateway response: %v", decodeErr))
	}

	g.logger.Debugf("notification %s submitted to %s, key %s", msg.NotificationID, msg.To, res.MessageKey)
	return res.MessageKey, nil
}

func describe(res sendResponse, body []byte) string {
	if res.Error != "" {
		return res.Error
	}
	return strings.TrimSpace(string(body))
}
